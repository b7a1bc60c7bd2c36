// Package spilink implements a write-only link to a device on a
// SPI bus.
package spilink

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

var (
	// ErrConfiguration is wrapped by errors from Configure when the
	// link or the bus rejects a parameter.
	ErrConfiguration = errors.New("spilink: configuration rejected")
	// ErrIO is wrapped by errors from Transfer on bus faults.
	ErrIO = errors.New("spilink: transfer failed")
	// ErrNotConfigured is returned by Transfer before Configure.
	ErrNotConfigured = errors.New("spilink: not configured")
)

// Justification is the bit order of words on the wire.
type Justification int

const (
	MSBFirst Justification = iota
	LSBFirst
)

func (j Justification) String() string {
	switch j {
	case MSBFirst:
		return "MSB-first"
	case LSBFirst:
		return "LSB-first"
	default:
		return fmt.Sprintf("Justification(%d)", int(j))
	}
}

// Config describes the bus parameters of a link.
type Config struct {
	Mode          spi.Mode
	Freq          physic.Frequency
	Bits          int
	Justification Justification
}

// DefaultConfig is the configuration expected by TMC21xx drivers.
var DefaultConfig = Config{
	Mode:          spi.Mode3,
	Freq:          1 * physic.MegaHertz,
	Bits:          8,
	Justification: MSBFirst,
}

type Link struct {
	mu     sync.Mutex
	port   spi.Port
	closer io.Closer
	conn   spi.Conn
	maxTx  int
	closed bool
}

// Open the SPI bus by name, or the first available bus if
// name is empty.
func Open(name string) (*Link, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("spilink: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("spilink: open %q: %w", name, err)
	}
	return New(p), nil
}

// Names lists the buses known to the registry.
func Names() []string {
	var names []string
	for _, r := range spireg.All() {
		names = append(names, r.Name)
	}
	return names
}

// New wraps an open port. The port is closed by Close if it
// implements io.Closer.
func New(p spi.Port) *Link {
	l := &Link{port: p}
	if c, ok := p.(io.Closer); ok {
		l.closer = c
	}
	return l
}

func (l *Link) String() string {
	return l.port.String()
}

// Configure the bus parameters. It must be called exactly once
// before Transfer.
func (l *Link) Configure(c Config) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case l.closed:
		return fmt.Errorf("%w: link closed", ErrConfiguration)
	case l.conn != nil:
		return fmt.Errorf("%w: already configured", ErrConfiguration)
	case c.Freq <= 0:
		return fmt.Errorf("%w: frequency %v", ErrConfiguration, c.Freq)
	case c.Bits <= 0:
		return fmt.Errorf("%w: word size %d", ErrConfiguration, c.Bits)
	}
	mode := c.Mode
	switch c.Justification {
	case MSBFirst:
		mode &^= spi.LSBFirst
	case LSBFirst:
		mode |= spi.LSBFirst
	default:
		return fmt.Errorf("%w: %v", ErrConfiguration, c.Justification)
	}
	sc, err := l.port.Connect(c.Freq, mode, c.Bits)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConfiguration, l.port, err)
	}
	l.conn = sc
	l.maxTx = 0
	if lim, ok := sc.(conn.Limits); ok {
		l.maxTx = lim.MaxTxSize()
	}
	return nil
}

// Transfer writes b to the bus in a single transaction.
func (l *Link) Transfer(b []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("%w: link closed", ErrIO)
	}
	if l.conn == nil {
		return ErrNotConfigured
	}
	if len(b) == 0 {
		return nil
	}
	if l.maxTx > 0 && len(b) > l.maxTx {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrIO, len(b), l.maxTx)
	}
	if err := l.conn.Tx(b, nil); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrIO, l.port, err)
	}
	return nil
}

// Close releases the port. It is safe to call more than once.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	l.conn = nil
	if l.closer == nil {
		return nil
	}
	if err := l.closer.Close(); err != nil {
		return fmt.Errorf("spilink: close %s: %w", l.port, err)
	}
	return nil
}
