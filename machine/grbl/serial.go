package grbl

import (
	"fmt"

	"github.com/mastercactapus/engrave/spjs"
	"github.com/tarm/serial"
)

// DefaultBaud is the baud rate of grbl 1.1.
const DefaultBaud = 115200

// OpenSerial opens a local serial port and starts a controller on it.
func OpenSerial(name string, baud int, cfg Config) (*Controller, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	p, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return NewController(p, cfg), nil
}

// OpenSPJS starts a controller on a port of a Serial Port JSON Server.
func OpenSPJS(sp *spjs.SPJS, name string, baud int, cfg Config) *Controller {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return NewController(sp.OpenPort(name, baud), cfg)
}
