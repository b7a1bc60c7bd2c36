//go:build linux

package board

import (
	"sync"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/gpio"
	"pushstep.io/input"
)

const consumer = "pushstep"

type cdevOpener struct{}

func newCDev() (opener, error) {
	return cdevOpener{}, nil
}

type cdevLine struct {
	name string
	l    *gpiocdev.Line
}

func (c *cdevLine) Out(lvl gpio.Level) error {
	return c.l.SetValue(value(lvl))
}

func (c *cdevLine) Close() error {
	return c.l.Close()
}

func (c *cdevLine) String() string {
	return c.name
}

func value(lvl gpio.Level) int {
	if lvl {
		return 1
	}
	return 0
}

func (cdevOpener) Output(name string, initial gpio.Level) (Line, error) {
	chip, offset, err := gpiocdev.FindLine(name)
	if err != nil {
		return nil, err
	}
	l, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsOutput(value(initial)),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		return nil, err
	}
	return &cdevLine{name: name, l: l}, nil
}

func (cdevOpener) Button(name string, cfg input.Config, ch chan<- input.Event) (func() error, error) {
	chip, offset, err := gpiocdev.FindLine(name)
	if err != nil {
		return nil, err
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = input.DefaultDebounce
	}
	bias := gpiocdev.WithPullDown
	if cfg.ActiveLow {
		bias = gpiocdev.WithPullUp
	}
	quit := make(chan struct{})
	handler := func(evt gpiocdev.LineEvent) {
		pressed := evt.Type == gpiocdev.LineEventRisingEdge
		if cfg.ActiveLow {
			pressed = !pressed
		}
		select {
		case ch <- input.Event{Button: cfg.Button, Pressed: pressed}:
		case <-quit:
		}
	}
	l, err := gpiocdev.RequestLine(chip, offset,
		bias,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(handler),
		gpiocdev.WithConsumer(consumer),
	)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() error {
		var err error
		once.Do(func() {
			close(quit)
			err = l.Close()
		})
		return err
	}, nil
}
