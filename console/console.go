// Package console implements a line based command console that
// injects synthetic button events, for driving the controller
// without hardware buttons.
package console

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"strings"

	"github.com/tarm/serial"
	"pushstep.io/input"
)

const baudRate = 115200

// Open a serial console. If dev is empty, the platform defaults are
// tried in order.
func Open(dev string) (io.ReadWriteCloser, error) {
	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyGS0", "/dev/ttyUSB0")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("console: no device specified")
	}
	var firstErr error
	for _, dev := range devices {
		s, err := serial.OpenPort(&serial.Config{Name: dev, Baud: baudRate})
		if err == nil {
			return s, nil
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("console: %s: %w", dev, err)
		}
	}
	return nil, firstErr
}

const help = `commands:
  press [button]    press and hold a button
  release [button]  release a button
  click [button]    press and release a button
  help              this text
buttons: action (default), status
`

// Run reads commands from r until EOF, and sends the resulting
// events on ch. Replies are written to w. Run returns when quit is
// closed while an event is pending.
func Run(r io.Reader, w io.Writer, ch chan<- input.Event, quit <-chan struct{}) error {
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if line == "help" {
			if _, err := io.WriteString(w, help); err != nil {
				return err
			}
			continue
		}
		evts, err := Command(line)
		if err != nil {
			log.Printf("console: %v", err)
			fmt.Fprintf(w, "%v\n", err)
			continue
		}
		for _, e := range evts {
			select {
			case ch <- e:
			case <-quit:
				return nil
			}
		}
	}
	return s.Err()
}

func click(btn input.Button) []input.Event {
	return []input.Event{
		{Button: btn, Pressed: true},
		{Button: btn, Pressed: false},
	}
}

// Command parses a single console command into events.
func Command(cmd string) ([]input.Event, error) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil, nil
	}
	btn := input.Action
	switch len(fields) {
	case 1:
	case 2:
		b, err := parseButton(fields[1])
		if err != nil {
			return nil, err
		}
		btn = b
	default:
		return nil, fmt.Errorf("too many arguments: %s", cmd)
	}
	switch fields[0] {
	case "press":
		return []input.Event{{Button: btn, Pressed: true}}, nil
	case "release":
		return []input.Event{{Button: btn, Pressed: false}}, nil
	case "click":
		return click(btn), nil
	default:
		return nil, fmt.Errorf("unrecognized command: %s", cmd)
	}
}

func parseButton(name string) (input.Button, error) {
	switch name {
	case "action":
		return input.Action, nil
	case "status":
		return input.Status, nil
	default:
		return 0, fmt.Errorf("unknown button: %s", name)
	}
}
