package serialport

import (
	"io"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultReadTimeout bounds a single Read on a real port. The line
// deadline is checked between reads.
const DefaultReadTimeout = 100 * time.Millisecond

// Port is the subset of a serial port used by Conn.
type Port interface {
	io.ReadWriteCloser
	// ResetInputBuffer discards unread input.
	ResetInputBuffer() error
}

// Open opens a serial device at 8N1 with the given baud rate.
func Open(path string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", path)
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, pkgerrors.Wrapf(err, "failed to set read timeout on %s", path)
	}
	return p, nil
}
