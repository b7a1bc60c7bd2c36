//go:build !linux

package board

import "fmt"

func newCDev() (opener, error) {
	return nil, fmt.Errorf("%w: %q requires linux", ErrUnsupported, CDev)
}
