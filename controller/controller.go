// Package controller runs the stepper actuation loop and maps push
// button events to moves.
package controller

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.uber.org/multierr"
	"periph.io/x/conn/v3/gpio"
	"pushstep.io/input"
	"pushstep.io/stepper"
)

// Pins are the output lines used by the controller.
type Pins struct {
	Indicator stepper.Line
	Enable    stepper.Line
	Step      stepper.Line
	Dir       stepper.Line
}

type Config struct {
	// Button is the button handled by HandleEvent.
	Button input.Button
	// Coarse is the move of the actuation loop.
	Coarse stepper.Move
	// Fine is the move triggered by a button press.
	Fine stepper.Move
	// Idle is the pause between actuation loop moves.
	Idle time.Duration
	// Motor is false when the driver could not be configured. Moves
	// are then replaced by waits of the same duration and the driver
	// stays disabled.
	Motor   bool
	Verbose bool
}

func DefaultConfig() Config {
	return Config{
		Button: input.Action,
		Coarse: stepper.Move{Steps: 100, Delay: 100 * time.Millisecond},
		Fine:   stepper.Move{Steps: 100, Delay: 10 * time.Millisecond},
		Idle:   1000 * time.Millisecond,
		Motor:  true,
	}
}

// State of the actuation loop.
type State int

const (
	IndicatorOff State = iota
	IndicatorOn
)

func (s State) String() string {
	if s == IndicatorOn {
		return "IndicatorOn"
	}
	return "IndicatorOff"
}

// Controller owns the indicator, enable, step and direction lines.
// The actuation loop and HandleEvent serialize their moves so pulse
// trains never interleave.
type Controller struct {
	cfg    Config
	pins   Pins
	pulser stepper.Pulser

	// mu guards the lines and state.
	mu    sync.Mutex
	state State

	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	stopErr   error
}

func New(pins Pins, cfg Config) *Controller {
	return &Controller{
		cfg:    cfg,
		pins:   pins,
		pulser: stepper.Pulser{Step: pins.Step, Dir: pins.Dir},
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start enables the motor driver and starts the actuation loop.
func (c *Controller) Start() error {
	var err error
	c.startOnce.Do(func() {
		if c.cfg.Motor {
			c.mu.Lock()
			err = stepper.SetEnabled(c.pins.Enable, true)
			c.mu.Unlock()
			if err != nil {
				close(c.done)
				return
			}
		} else {
			log.Printf("controller: motor driver unavailable; running without motor control")
		}
		go c.run()
	})
	return err
}

// Stop the actuation loop and disable the motor driver. An
// in-flight pulse completes before Stop returns.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.startOnce.Do(func() { close(c.done) })
		<-c.done
		c.mu.Lock()
		defer c.mu.Unlock()
		err := c.setIndicator(false)
		if c.cfg.Motor {
			err = multierr.Append(err, stepper.SetEnabled(c.pins.Enable, false))
		}
		if err != nil {
			c.stopErr = fmt.Errorf("controller: stop: %w", err)
		}
	})
	return c.stopErr
}

// HandleEvent reacts to press and release events of the
// configured button. It reports whether the event was handled.
// A press blocks until its move completes. Events after Stop are
// ignored.
func (c *Controller) HandleEvent(e input.Event) bool {
	if e.Button != c.cfg.Button {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.quit:
		// Stopped; the lines are left as Stop set them.
		return true
	default:
	}
	if err := c.setIndicator(e.Pressed); err != nil {
		log.Printf("controller: %v", err)
		return true
	}
	if e.Pressed {
		if err := c.move(c.cfg.Fine); err != nil && !errors.Is(err, stepper.ErrStopped) {
			log.Printf("controller: button move: %v", err)
		}
	}
	return true
}

// State returns the current state of the indicator.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		if err := c.cycle(); err != nil && !errors.Is(err, stepper.ErrStopped) {
			// Try again next cycle.
			log.Printf("controller: actuation: %v", err)
		}
		idle := time.NewTimer(c.cfg.Idle)
		select {
		case <-c.quit:
			idle.Stop()
			return
		case <-idle.C:
		}
	}
}

// cycle runs the IndicatorOn phase and turns the indicator off.
func (c *Controller) cycle() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.quit:
		return stepper.ErrStopped
	default:
	}
	if err := c.setIndicator(true); err != nil {
		return err
	}
	merr := c.move(c.cfg.Coarse)
	if err := c.setIndicator(false); err != nil && merr == nil {
		return err
	}
	return merr
}

func (c *Controller) move(m stepper.Move) error {
	if c.cfg.Motor {
		return c.pulser.Pulse(c.quit, m)
	}
	t := time.NewTimer(m.Duration())
	defer t.Stop()
	select {
	case <-c.quit:
		return stepper.ErrStopped
	case <-t.C:
		return nil
	}
}

func (c *Controller) setIndicator(on bool) error {
	if c.cfg.Verbose {
		log.Printf("controller: setting LED value to %v", on)
	}
	if err := c.pins.Indicator.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	if on {
		c.state = IndicatorOn
	} else {
		c.state = IndicatorOff
	}
	return nil
}
