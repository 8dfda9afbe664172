package serialmux

import (
	"io"

	"go.bug.st/serial"
)

// SerialPorter is the part of a serial port a mux uses. serial.Port, the
// in-memory MockSerialPort and TestableSerialPort all satisfy it.
type SerialPorter interface {
	io.ReadWriteCloser
}

// NewRealSerialMux opens path with opts and wraps it in a mux.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
