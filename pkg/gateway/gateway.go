// Package gateway connects the door to the remote monitoring gateway: it
// pushes the door status and pulls actions requested remotely.
package gateway

import (
	"context"
	"errors"

	"github.com/makerspace/doorctl/pkg/types"
)

// ErrNotConnected is returned by transports that have lost their link.
var ErrNotConnected = errors.New("gateway not connected")

// Status is the door status reported to the gateway.
type Status struct {
	EncoderPosition int          `json:"encoderPosition"`
	Handle          string       `json:"handle"`
	Door            string       `json:"door"`
	LockStatus      string       `json:"lockStatus"`
	Space           string       `json:"space"`
	State           string       `json:"state"`
	LockedRange     *types.Range `json:"lockedRange,omitempty"`
	UnlockedRange   *types.Range `json:"unlockedRange,omitempty"`
}

// NewStatus builds a Status from a sensor snapshot.
func NewStatus(s types.PhysicalStatus, state string, spaceOpen bool, cal *types.CalibrationRange) Status {
	st := Status{
		EncoderPosition: s.EncoderPosition,
		Handle:          s.Handle.String(),
		Door:            s.Door.String(),
		LockStatus:      s.LockToken(),
		Space:           "closed",
		State:           state,
	}
	if spaceOpen {
		st.Space = "open"
	}
	if cal != nil {
		locked, unlocked := cal.Locked, cal.Unlocked
		st.LockedRange = &locked
		st.UnlockedRange = &unlocked
	}
	return st
}

// Equal reports whether two statuses carry the same information.
func (s Status) Equal(o Status) bool {
	return s.EncoderPosition == o.EncoderPosition &&
		s.Handle == o.Handle &&
		s.Door == o.Door &&
		s.LockStatus == o.LockStatus &&
		s.Space == o.Space &&
		s.State == o.State &&
		rangeEqual(s.LockedRange, o.LockedRange) &&
		rangeEqual(s.UnlockedRange, o.UnlockedRange)
}

func rangeEqual(a, b *types.Range) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Transport moves statuses and actions between the door and the gateway.
type Transport interface {
	PushStatus(ctx context.Context, s Status) error
	// PullAction returns the pending action, or "" if there is none.
	PullAction(ctx context.Context) (string, error)
	Close() error
}
