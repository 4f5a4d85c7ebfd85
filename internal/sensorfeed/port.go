package sensorfeed

import (
	"io"

	"go.bug.st/serial"

	"github.com/banshee-data/lanepilot/internal/radar"
)

// Porter is the minimal interface the feed needs from a serial port.
// It lets tests substitute an in-memory port for real hardware.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// OpenPort opens the serial port at path with opts.
func OpenPort(path string, opts PortOptions) (serial.Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	return serial.Open(path, mode)
}

// Open opens the serial port at path and wraps it in a Feed publishing to
// slot.
func Open(path string, opts PortOptions, slot *Slot[radar.Batch]) (*Feed[serial.Port], error) {
	port, err := OpenPort(path, opts)
	if err != nil {
		return nil, err
	}
	return NewFeed(port, slot), nil
}
