// Package board opens the GPIO lines of the controller board by name.
package board

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"pushstep.io/input"
)

var (
	ErrNoLine      = errors.New("board: no such line")
	ErrDuplicate   = errors.New("board: line requested twice")
	ErrUnsupported = errors.New("board: backend not supported")
)

// Line is an opened output line.
type Line interface {
	Out(l gpio.Level) error
	Close() error
	String() string
}

// Backend selects the GPIO implementation.
type Backend string

const (
	// Periph uses the periph.io host drivers.
	Periph Backend = "periph"
	// CDev uses the Linux GPIO character device.
	CDev Backend = "cdev"
)

// Config names the lines of the board.
type Config struct {
	Backend   Backend
	Indicator string
	Enable    string
	Dir       string
	Step      string
	// Button is optional.
	Button          string
	ButtonActiveLow bool
	Debounce        time.Duration
}

// DefaultConfig is the wiring of the i.MX7D reference board.
func DefaultConfig() Config {
	return Config{
		Backend:         Periph,
		Indicator:       "GPIO2_IO02",
		Enable:          "GPIO1_IO10",
		Dir:             "GPIO6_IO12",
		Step:            "GPIO6_IO13",
		Button:          "GPIO6_IO14",
		ButtonActiveLow: true,
		Debounce:        input.DefaultDebounce,
	}
}

type opener interface {
	// Output opens a line as an output driven to initial.
	Output(name string, initial gpio.Level) (Line, error)
	// Button opens a line as a button sending events on ch. The
	// returned function releases the line.
	Button(name string, cfg input.Config, ch chan<- input.Event) (func() error, error)
}

type Board struct {
	Indicator Line
	// Enable is the active-low driver enable line. It is high
	// (disabled) after Open.
	Enable Line
	Dir    Line
	Step   Line

	mu         sync.Mutex
	lines      []Line
	stopButton func() error
	closed     bool
}

// Open the lines of the board. Button events are sent on ch.
func Open(cfg Config, ch chan<- input.Event) (*Board, error) {
	var o opener
	var err error
	switch cfg.Backend {
	case Periph, "":
		o, err = newPeriph()
	case CDev:
		o, err = newCDev()
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupported, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return open(o, cfg, ch)
}

func open(o opener, cfg Config, ch chan<- input.Event) (*Board, error) {
	b := new(Board)
	outputs := []struct {
		dst     *Line
		name    string
		initial gpio.Level
	}{
		{&b.Indicator, cfg.Indicator, gpio.Low},
		{&b.Enable, cfg.Enable, gpio.High},
		{&b.Dir, cfg.Dir, gpio.Low},
		{&b.Step, cfg.Step, gpio.Low},
	}
	seen := make(map[string]bool)
	for _, name := range []string{cfg.Indicator, cfg.Enable, cfg.Dir, cfg.Step, cfg.Button} {
		if name == "" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		seen[name] = true
	}
	for _, out := range outputs {
		if out.name == "" {
			b.Close()
			return nil, fmt.Errorf("%w: empty name", ErrNoLine)
		}
		l, err := o.Output(out.name, out.initial)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("board: open %s: %w", out.name, err)
		}
		*out.dst = l
		b.lines = append(b.lines, l)
	}
	if cfg.Button != "" {
		icfg := input.Config{
			Button:    input.Action,
			ActiveLow: cfg.ButtonActiveLow,
			Debounce:  cfg.Debounce,
		}
		stop, err := o.Button(cfg.Button, icfg, ch)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("board: open button %s: %w", cfg.Button, err)
		}
		b.stopButton = stop
	}
	return b, nil
}

// Close releases every line. It is safe to call more than once.
func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	if b.stopButton != nil {
		err = multierr.Append(err, b.stopButton())
	}
	for i := len(b.lines) - 1; i >= 0; i-- {
		l := b.lines[i]
		if cerr := l.Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("board: close %s: %w", l, cerr))
		}
	}
	b.lines = nil
	return err
}
