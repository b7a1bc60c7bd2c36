package board

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
	"pushstep.io/input"
)

type periphOpener struct{}

func newPeriph() (opener, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("board: %w", err)
	}
	return periphOpener{}, nil
}

// periphLine adapts a periph pin to Line. Closing halts the pin.
type periphLine struct {
	gpio.PinIO
}

func (l periphLine) Close() error {
	return l.Halt()
}

func (periphOpener) Output(name string, initial gpio.Level) (Line, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLine, name)
	}
	if err := p.Out(initial); err != nil {
		return nil, err
	}
	return periphLine{p}, nil
}

func (periphOpener) Button(name string, cfg input.Config, ch chan<- input.Event) (func() error, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoLine, name)
	}
	stop, err := input.Watch(p, cfg, ch)
	if err != nil {
		return nil, err
	}
	return func() error {
		stop()
		return p.Halt()
	}, nil
}
