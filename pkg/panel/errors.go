package panel

import "errors"

var (
	// ErrProtocolDesync is returned when the panel acknowledgement does not
	// match the command. The link cannot recover without a restart.
	ErrProtocolDesync = errors.New("panel protocol desync")

	// ErrTooManyLines is returned when more lines are submitted than there are slots.
	ErrTooManyLines = errors.New("too many display lines")

	// ErrBadSlot is returned for a slot outside the display.
	ErrBadSlot = errors.New("display slot out of range")
)
