// package input implements a debounced push button driver.
package input

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

type Event struct {
	Button  Button
	Pressed bool
}

type Button int

const (
	// Action is the push button that triggers a move.
	Action Button = iota
	// Synthetic keys only generated by the debug console.
	Status
)

func (b Button) String() string {
	switch b {
	case Action:
		return "action"
	case Status:
		return "status"
	default:
		return fmt.Sprintf("Button(%d)", int(b))
	}
}

// Pin is the subset of [gpio.PinIn] used for edge detection.
type Pin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

// Config describes how a button is wired.
type Config struct {
	Button Button
	// ActiveLow buttons read low when pressed.
	ActiveLow bool
	Debounce  time.Duration
}

const (
	DefaultDebounce = 10 * time.Millisecond
	// pollTimeout bounds the time spent waiting for an edge before
	// checking for Close.
	pollTimeout = 100 * time.Millisecond
)

// Watch configures pin for edge detection and sends an event on
// ch for every debounced change. The returned function stops the
// watcher and waits for it to exit.
func Watch(pin Pin, cfg Config, ch chan<- Event) (func(), error) {
	pull := gpio.PullDown
	if cfg.ActiveLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	quit := make(chan struct{})
	done := make(chan struct{})
	active := gpio.High
	if cfg.ActiveLow {
		active = gpio.Low
	}
	go func() {
		defer close(done)
		pressed := false
		newPressed := false
		for {
			select {
			case <-quit:
				return
			default:
			}
			// Wait for an edge, or for the debounce timeout
			// if an edge is pending.
			timeout := debounce
			if newPressed == pressed {
				timeout = pollTimeout
			}
			if pin.WaitForEdge(timeout) {
				newPressed = pin.Read() == active
				continue
			}
			// Debounce timeout; ok to send event.
			if newPressed != pressed {
				pressed = newPressed
				select {
				case ch <- Event{Button: cfg.Button, Pressed: pressed}:
				case <-quit:
					return
				}
			}
		}
	}()
	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(quit)
		<-done
	}, nil
}
