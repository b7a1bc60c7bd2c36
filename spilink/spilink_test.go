package spilink

import (
	"errors"
	"slices"
	"testing"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

type fakePort struct {
	connectErr error
	txErr      error
	maxTx      int
	freq       physic.Frequency
	mode       spi.Mode
	bits       int
	txs        [][]byte
	closes     int
}

func (p *fakePort) String() string { return "fake0.0" }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.freq, p.mode, p.bits = f, mode, bits
	if p.maxTx > 0 {
		return &limitedConn{fakeConn{p}}, nil
	}
	return &fakeConn{p}, nil
}

func (p *fakePort) Close() error {
	p.closes++
	return nil
}

type fakeConn struct {
	p *fakePort
}

func (c *fakeConn) String() string { return c.p.String() }
func (c *fakeConn) Duplex() conn.Duplex { return conn.Full }
func (c *fakeConn) TxPackets([]spi.Packet) error { return errors.New("unsupported") }

func (c *fakeConn) Tx(w, r []byte) error {
	if c.p.txErr != nil {
		return c.p.txErr
	}
	c.p.txs = append(c.p.txs, slices.Clone(w))
	return nil
}

type limitedConn struct {
	fakeConn
}

func (c *limitedConn) MaxTxSize() int { return c.p.maxTx }

func TestConfigure(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		mode spi.Mode
		ok   bool
	}{
		{"Default", DefaultConfig, spi.Mode3, true},
		{"LSBFirst", Config{Mode: spi.Mode0, Freq: physic.MegaHertz, Bits: 8, Justification: LSBFirst}, spi.Mode0 | spi.LSBFirst, true},
		{"ZeroFrequency", Config{Mode: spi.Mode3, Bits: 8}, 0, false},
		{"ZeroBits", Config{Mode: spi.Mode3, Freq: physic.MegaHertz}, 0, false},
		{"BadJustification", Config{Mode: spi.Mode3, Freq: physic.MegaHertz, Bits: 8, Justification: 7}, 0, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := new(fakePort)
			l := New(p)
			err := l.Configure(test.cfg)
			if !test.ok {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("Configure(%+v) = %v, want ErrConfiguration", test.cfg, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if p.mode != test.mode || p.freq != test.cfg.Freq || p.bits != test.cfg.Bits {
				t.Errorf("connected with (%v, %v, %d), want (%v, %v, %d)",
					p.freq, p.mode, p.bits, test.cfg.Freq, test.mode, test.cfg.Bits)
			}
		})
	}
}

func TestConfigureRejectedByBus(t *testing.T) {
	busErr := errors.New("unsupported frequency")
	l := New(&fakePort{connectErr: busErr})
	err := l.Configure(DefaultConfig)
	if !errors.Is(err, ErrConfiguration) || !errors.Is(err, busErr) {
		t.Errorf("Configure = %v, want ErrConfiguration wrapping %v", err, busErr)
	}
}

func TestConfigureTwice(t *testing.T) {
	l := New(new(fakePort))
	if err := l.Configure(DefaultConfig); err != nil {
		t.Fatal(err)
	}
	if err := l.Configure(DefaultConfig); !errors.Is(err, ErrConfiguration) {
		t.Errorf("second Configure = %v, want ErrConfiguration", err)
	}
}

func TestTransfer(t *testing.T) {
	p := new(fakePort)
	l := New(p)
	if err := l.Transfer([]byte{1}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Transfer before Configure = %v, want ErrNotConfigured", err)
	}
	if err := l.Configure(DefaultConfig); err != nil {
		t.Fatal(err)
	}
	for _, tx := range [][]byte{{0x80}, {1, 2, 3, 4}, nil} {
		if err := l.Transfer(tx); err != nil {
			t.Fatal(err)
		}
	}
	want := [][]byte{{0x80}, {1, 2, 3, 4}}
	if !slices.EqualFunc(p.txs, want, slices.Equal) {
		t.Errorf("transfers %x, want %x", p.txs, want)
	}
}

func TestTransferErrors(t *testing.T) {
	busErr := errors.New("device disconnected")
	p := &fakePort{txErr: busErr}
	l := New(p)
	if err := l.Configure(DefaultConfig); err != nil {
		t.Fatal(err)
	}
	if err := l.Transfer([]byte{0x80}); !errors.Is(err, ErrIO) || !errors.Is(err, busErr) {
		t.Errorf("Transfer = %v, want ErrIO wrapping %v", err, busErr)
	}

	p = &fakePort{maxTx: 2}
	l = New(p)
	if err := l.Configure(DefaultConfig); err != nil {
		t.Fatal(err)
	}
	if err := l.Transfer([]byte{1, 2, 3}); !errors.Is(err, ErrIO) {
		t.Errorf("oversized Transfer = %v, want ErrIO", err)
	}
	if len(p.txs) != 0 {
		t.Errorf("oversized transfer reached the bus: %x", p.txs)
	}
}

func TestClose(t *testing.T) {
	p := new(fakePort)
	l := New(p)
	if err := l.Configure(DefaultConfig); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := l.Close(); err != nil {
			t.Fatal(err)
		}
	}
	if p.closes != 1 {
		t.Errorf("port closed %d times, want 1", p.closes)
	}
	if err := l.Transfer([]byte{1}); !errors.Is(err, ErrIO) {
		t.Errorf("Transfer after Close = %v, want ErrIO", err)
	}
}
