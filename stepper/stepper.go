// Package stepper generates step/direction pulses for stepper
// motor drivers.
package stepper

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
)

var (
	ErrInvalidMove = errors.New("stepper: invalid move")
	// ErrStopped is returned by Pulse when it is interrupted
	// before emitting every step.
	ErrStopped = errors.New("stepper: stopped")
)

// Line is a digital output. It is implemented by [gpio.PinOut].
type Line interface {
	Out(l gpio.Level) error
}

// Direction of rotation, as seen by the driver's DIR input.
type Direction bool

const (
	Forward  Direction = false
	Backward Direction = true
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// Move describes a pulse train.
type Move struct {
	Dir   Direction
	Steps int
	// Delay between step edges. A full step period is
	// twice the delay.
	Delay time.Duration
}

// Duration of the pulse train.
func (m Move) Duration() time.Duration {
	return time.Duration(m.Steps) * 2 * m.Delay
}

func (m Move) validate() error {
	if m.Steps <= 0 {
		return fmt.Errorf("%w: %d steps", ErrInvalidMove, m.Steps)
	}
	if m.Delay < 0 {
		return fmt.Errorf("%w: negative delay %v", ErrInvalidMove, m.Delay)
	}
	return nil
}

// Pulser drives the step and direction inputs of a driver.
type Pulser struct {
	Step Line
	Dir  Line
}

// Pulse sets the direction and emits m.Steps pulses on the step
// line. It blocks for the duration of the move. When quit is
// closed, Pulse returns ErrStopped after completing the current
// pulse. The step line is low when Pulse returns.
func (p *Pulser) Pulse(quit <-chan struct{}, m Move) error {
	if err := m.validate(); err != nil {
		return err
	}
	if err := p.Dir.Out(gpio.Level(m.Dir)); err != nil {
		return fmt.Errorf("stepper: set direction: %w", err)
	}
	for i := 0; i < m.Steps; i++ {
		select {
		case <-quit:
			return fmt.Errorf("%w after %d of %d steps", ErrStopped, i, m.Steps)
		default:
		}
		if err := p.Step.Out(gpio.High); err != nil {
			return fmt.Errorf("stepper: step %d: %w", i, err)
		}
		time.Sleep(m.Delay)
		if err := p.Step.Out(gpio.Low); err != nil {
			return fmt.Errorf("stepper: step %d: %w", i, err)
		}
		time.Sleep(m.Delay)
	}
	return nil
}

// SetEnabled drives the active-low enable input of a driver.
func SetEnabled(en Line, on bool) error {
	lvl := gpio.High
	if on {
		lvl = gpio.Low
	}
	if err := en.Out(lvl); err != nil {
		return fmt.Errorf("stepper: enable=%v: %w", on, err)
	}
	return nil
}
