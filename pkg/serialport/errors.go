package serialport

import "errors"

var (
	// ErrCommsTimeout is returned when no complete line arrives before the deadline.
	ErrCommsTimeout = errors.New("comms timeout")

	// ErrClosed is returned when the port reports end of file.
	ErrClosed = errors.New("port closed")
)
