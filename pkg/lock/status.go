package lock

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/types"
)

const statusTokens = 6

// Status queries the lock, door and handle sensors.
//
// The reply is "OK status <lock> <door> <handle> <position>".
func (l *Link) Status() (types.PhysicalStatus, error) {
	reply, err := l.SendCommand("status")
	if err != nil {
		return types.PhysicalStatus{}, err
	}
	return ParseStatus(reply)
}

// ParseStatus parses a status reply line.
func ParseStatus(reply string) (types.PhysicalStatus, error) {
	var s types.PhysicalStatus

	parts := strings.Fields(reply)
	if len(parts) != statusTokens {
		return s, fmt.Errorf("%w: got %d tokens in %q", ErrMalformedStatus, len(parts), reply)
	}
	if parts[0] != "OK" || parts[1] != "status" {
		return s, fmt.Errorf("%w: unexpected prefix in %q", ErrMalformedStatus, reply)
	}

	var err error
	if s.Lock, s.Manual, err = types.ParseLockState(parts[2]); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if s.Door, err = types.ParseDoorState(parts[3]); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if s.Handle, err = types.ParseHandleState(parts[4]); err != nil {
		return s, fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if s.EncoderPosition, err = strconv.Atoi(parts[5]); err != nil {
		return s, fmt.Errorf("%w: bad encoder position %q", ErrMalformedStatus, parts[5])
	}

	logrus.WithFields(logrus.Fields{
		"lock":     s.LockToken(),
		"door":     s.Door,
		"handle":   s.Handle,
		"position": s.EncoderPosition,
	}).Trace("lock status")

	return s, nil
}

// FormatStatus renders s the way the firmware reports it.
func FormatStatus(s types.PhysicalStatus) string {
	return "OK status " + strings.Join(s.Tokens(), " ")
}
