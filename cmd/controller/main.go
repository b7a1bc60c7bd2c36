// command controller drives a stepper motor through a TMC2130 driver,
// with a push button for manual moves.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/multierr"
	"pushstep.io/board"
	"pushstep.io/console"
	"pushstep.io/controller"
	"pushstep.io/driver/tmc2130"
	"pushstep.io/input"
	"pushstep.io/spilink"
)

// Version is set by the Go linker with -ldflags='-X main.Version=...'.
var Version string

var (
	spiPort       = flag.String("spi", "SPI3.0", "SPI bus of the motor driver")
	ledPin        = flag.String("led", "GPIO2_IO02", "indicator LED line")
	buttonPin     = flag.String("button", "GPIO6_IO14", "push button line, empty for none")
	enablePin     = flag.String("enable", "GPIO1_IO10", "motor driver enable line (active low)")
	dirPin        = flag.String("dir", "GPIO6_IO12", "motor direction line")
	stepPin       = flag.String("step", "GPIO6_IO13", "motor step line")
	gpioBackend   = flag.String("gpio", string(board.Periph), "GPIO backend, periph or cdev")
	consoleDev    = flag.String("console", "", "debug console serial device, or - for standard input")
	requireDriver = flag.Bool("require-driver", false, "exit if the motor driver cannot be configured")
	verbose       = flag.Bool("v", false, "verbose logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "controller: %v\n", err)
		os.Exit(2)
	}
}

func run() error {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	ver := Version
	if ver == "" {
		ver = "devel"
	}
	log.Printf("controller: version %s", ver)
	if err := lockMemory(); err != nil {
		log.Printf("controller: lock memory: %v", err)
	}

	motor := true
	link, err := spilink.Open(*spiPort)
	if *verbose {
		log.Printf("controller: SPI buses: %s", strings.Join(spilink.Names(), ", "))
	}
	if err == nil {
		err = initDriver(link)
		if err == nil {
			defer func() {
				if err := link.Close(); err != nil {
					log.Printf("controller: %v", err)
				}
			}()
		}
	} else if names := spilink.Names(); len(names) > 0 {
		err = fmt.Errorf("%w (available: %s)", err, strings.Join(names, ", "))
	}
	if err != nil {
		if *requireDriver {
			return err
		}
		log.Printf("controller: %v; running without motor control", err)
		motor = false
	}

	events := make(chan input.Event, 10)
	bcfg := board.DefaultConfig()
	bcfg.Backend = board.Backend(*gpioBackend)
	bcfg.Indicator = *ledPin
	bcfg.Enable = *enablePin
	bcfg.Dir = *dirPin
	bcfg.Step = *stepPin
	bcfg.Button = *buttonPin
	b, err := board.Open(bcfg, events)
	if err != nil {
		return err
	}

	cfg := controller.DefaultConfig()
	cfg.Motor = motor
	cfg.Verbose = *verbose
	c := controller.New(controller.Pins{
		Indicator: b.Indicator,
		Enable:    b.Enable,
		Step:      b.Step,
		Dir:       b.Dir,
	}, cfg)
	if err := c.Start(); err != nil {
		return multierr.Append(err, b.Close())
	}
	quit := make(chan struct{})
	if *consoleDev != "" {
		if err := startConsole(*consoleDev, events, quit); err != nil {
			log.Printf("controller: %v", err)
		}
	}
	go func() {
		for e := range events {
			if !c.HandleEvent(e) && *verbose {
				log.Printf("controller: ignoring %v event", e.Button)
			}
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, shutdownSignals...)
	s := <-sigs
	log.Printf("controller: %v; stopping", s)
	close(quit)
	return multierr.Combine(c.Stop(), b.Close())
}

// initDriver configures the SPI link and the motor driver registers.
// The link is closed if either fails; otherwise the caller owns it.
func initDriver(link *spilink.Link) (err error) {
	defer func() {
		if err != nil {
			err = multierr.Append(err, link.Close())
		}
	}()
	if err := link.Configure(spilink.DefaultConfig); err != nil {
		return err
	}
	d := &tmc2130.Device{Bus: link}
	if err := d.Configure(); err != nil {
		return err
	}
	log.Printf("controller: motor driver configured on %s", link)
	return nil
}

func startConsole(dev string, events chan<- input.Event, quit <-chan struct{}) error {
	var rw io.ReadWriter = struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	var closer io.Closer
	if dev != "-" {
		s, err := console.Open(dev)
		if err != nil {
			return err
		}
		rw, closer = s, s
	}
	go func() {
		if closer != nil {
			defer closer.Close()
		}
		if err := console.Run(rw, rw, events, quit); err != nil {
			log.Printf("console: %v", err)
		}
	}()
	return nil
}
