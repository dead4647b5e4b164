package lock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedStatus is returned when a status reply does not have the
	// expected shape. It is transient; the next poll may succeed.
	ErrMalformedStatus = errors.New("malformed lock status")
)

// ReplyError is a reply line that did not start with "OK". The raw line is
// kept so callers can decide how severe the rejection is.
type ReplyError struct {
	Command string
	Reply   string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("lock rejected %q: %s", e.Command, e.Reply)
}

// IsNotCalibrated reports whether err is a rejection because the actuator
// has not been calibrated yet.
func IsNotCalibrated(err error) bool {
	var re *ReplyError
	if !errors.As(err, &re) {
		return false
	}
	return strings.Contains(re.Reply, "not calibrated")
}
