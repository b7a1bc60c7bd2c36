// Package tmc2130 implements the SPI register interface of the TMC2130
// stepper motor driver.
package tmc2130

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Bus transfers bytes to the driver. Every call is a separate
// SPI transaction.
type Bus interface {
	Transfer(b []byte) error
}

type Device struct {
	Bus     Bus
	scratch [5]byte
}

// ErrAddress is returned for register addresses outside the
// 7-bit address space.
var ErrAddress = errors.New("tmc2130: invalid register address")

// Register addresses.
const (
	GCONF      = 0x00
	IHOLD_IRUN = 0x10
	CHOPCONF   = 0x6c
)

const (
	// WRITE is set in the address byte of write accesses.
	WRITE = 0x80

	// GCONF settings.
	I_scale_analog = 0b1 << 0

	// IHOLD_IRUN fields.
	ihold_shift      = 0
	irun_shift       = 8
	iholddelay_shift = 16

	// CHOPCONF fields.
	toff_shift  = 0
	hstrt_shift = 4
	hend_shift  = 7
	tbl_shift   = 15
	mres_shift  = 24
)

// Settings.
const (
	// Use the voltage on AIN as current reference.
	gconf = I_scale_analog

	// Standstill and run current, in 1/32 of full scale.
	ihold     = 0x10
	irun      = 0x10
	iholdIrun = irun<<irun_shift | ihold<<ihold_shift

	// Off time and driver enable.
	toff = 8
	// Hysteresis low value.
	hend = 2
	// Comparator blank time of 24 clocks.
	tbl = 1
	// Native 256 microstep resolution.
	mres     = 0
	chopconf = mres<<mres_shift | tbl<<tbl_shift | hend<<hend_shift | toff<<toff_shift
)

// Payload is a register value in natural (big-endian) byte
// order.
type Payload [4]byte

// Value returns the payload for a register value.
func Value(v uint32) Payload {
	var p Payload
	binary.BigEndian.PutUint32(p[:], v)
	return p
}

func (p Payload) Uint32() uint32 {
	return binary.BigEndian.Uint32(p[:])
}

// Reverse returns the payload in reverse byte order, which is
// the order the driver receives it in.
func (p Payload) Reverse() Payload {
	return Payload{p[3], p[2], p[1], p[0]}
}

// Command is a register write.
type Command struct {
	Addr    uint8
	Payload Payload
}

// Frame returns the two transfers that make up the write: the
// address byte with the write flag, and the reversed payload.
func (c Command) Frame() (cmd byte, data Payload) {
	return c.Addr | WRITE, c.Payload.Reverse()
}

func (c Command) String() string {
	return fmt.Sprintf("%#04x=%#010x", c.Addr, c.Payload.Uint32())
}

// InitSequence returns the register writes performed by Configure,
// in order.
func InitSequence() []Command {
	return []Command{
		{GCONF, Value(gconf)},
		{IHOLD_IRUN, Value(iholdIrun)},
		{CHOPCONF, Value(chopconf)},
	}
}

// Configure the driver for analog current reference, half
// current and native microstepping. It stops at the first failed
// write, leaving the remaining registers untouched.
func (d *Device) Configure() error {
	for _, c := range InitSequence() {
		if err := d.WriteRegister(c.Addr, c.Payload); err != nil {
			return fmt.Errorf("tmc2130: set %s: %w", regName(c.Addr), err)
		}
	}
	return nil
}

// WriteRegister writes a payload to a register. The address byte
// and the payload are sent as two separate transfers.
func (d *Device) WriteRegister(addr uint8, p Payload) error {
	if addr&WRITE != 0 {
		return fmt.Errorf("%w: %#04x", ErrAddress, addr)
	}
	cmd, data := Command{addr, p}.Frame()
	wr := d.scratch[:1]
	wr[0] = cmd
	if err := d.Bus.Transfer(wr); err != nil {
		return fmt.Errorf("address %#04x: %w", addr, err)
	}
	wr = d.scratch[1:5]
	copy(wr, data[:])
	if err := d.Bus.Transfer(wr); err != nil {
		return fmt.Errorf("payload %#04x: %w", addr, err)
	}
	return nil
}

func regName(addr uint8) string {
	switch addr {
	case GCONF:
		return "GCONF"
	case IHOLD_IRUN:
		return "IHOLD/IRUN"
	case CHOPCONF:
		return "CHOPCONF"
	default:
		return fmt.Sprintf("%#04x", addr)
	}
}
