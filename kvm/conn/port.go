package conn

import (
	"io"

	"go.bug.st/serial"
)

// Port is the slice of a serial port the connection manager needs.
type Port interface {
	io.ReadWriteCloser
	Drain() error
}

// Opener opens a port at a rate. Options takes one so tests can
// substitute a scripted device for real hardware.
type Opener func(path string, baud int) (Port, error)

// Open opens a real serial port.
func Open(path string, baud int) (Port, error) {
	return serial.Open(path, &serial.Mode{BaudRate: baud})
}
