package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormalize(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if opts.BaudRate != 115200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Errorf("defaults = %+v", opts)
	}

	bad := []PortOptions{
		{DataBits: 9},
		{StopBits: 3},
		{Parity: "mark"},
	}
	for _, o := range bad {
		if _, err := o.Normalize(); err == nil {
			t.Errorf("Normalize(%+v) accepted invalid options", o)
		}
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, Parity: "even"}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if mode.BaudRate != 57600 || mode.Parity != serial.EvenParity || mode.DataBits != 8 {
		t.Errorf("mode = %+v", mode)
	}

	for in, want := range map[string]string{"n": "N", " none ": "N", "EVEN": "E", "odd": "O"} {
		opts, err := PortOptions{Parity: in}.Normalize()
		if err != nil {
			t.Errorf("Normalize(parity %q): %v", in, err)
			continue
		}
		if opts.Parity != want {
			t.Errorf("Normalize(parity %q) = %q, want %q", in, opts.Parity, want)
		}
	}
}

func TestPortOptionsStopBits(t *testing.T) {
	one, err := PortOptions{StopBits: 1}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	two, err := PortOptions{StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode: %v", err)
	}
	if one.StopBits != serial.OneStopBit || two.StopBits != serial.TwoStopBits {
		t.Errorf("stop bits = %v, %v", one.StopBits, two.StopBits)
	}
}
