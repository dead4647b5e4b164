package types

import (
	"fmt"
	"strconv"
	"strings"
)

// LockState is the actuator state reported by the lock firmware.
type LockState int

const (
	LockUnknown LockState = iota
	LockLocked
	LockUnlocked
	// LockManual means an operator is physically overriding the actuator.
	// The sub-state is carried in PhysicalStatus.Manual.
	LockManual
)

const manualPrefix = "manual_"

func (s LockState) String() string {
	switch s {
	case LockLocked:
		return "locked"
	case LockUnlocked:
		return "unlocked"
	case LockManual:
		return "manual"
	case LockUnknown:
		return "unknown"
	}
	return fmt.Sprintf("LockState(%d)", int(s))
}

// DoorState is the door sensor reading.
type DoorState int

const (
	DoorClosed DoorState = iota
	DoorOpen
)

func (s DoorState) String() string {
	if s == DoorOpen {
		return "open"
	}
	return "closed"
}

// HandleState is the handle sensor reading. The lock can only engage
// while the handle is raised.
type HandleState int

const (
	HandleRaised HandleState = iota
	HandleLowered
)

func (s HandleState) String() string {
	if s == HandleLowered {
		return "lowered"
	}
	return "raised"
}

// PhysicalStatus is one snapshot of the lock, door and handle sensors.
type PhysicalStatus struct {
	Lock            LockState   `json:"lock"`
	Manual          string      `json:"manual,omitempty"`
	Door            DoorState   `json:"door"`
	Handle          HandleState `json:"handle"`
	EncoderPosition int         `json:"encoderPosition"`
}

// Lockable reports whether the door and handle allow the bolt to engage.
func (s PhysicalStatus) Lockable() bool {
	return s.Door == DoorClosed && s.Handle == HandleRaised
}

// EffectiveLock folds a manual override into locked or unlocked.
// "manual_locked" counts as locked; every other manual sub-state as unlocked.
func (s PhysicalStatus) EffectiveLock() LockState {
	if s.Lock != LockManual {
		return s.Lock
	}
	if s.Manual == "locked" {
		return LockLocked
	}
	return LockUnlocked
}

// LockToken returns the wire token of the lock state.
func (s PhysicalStatus) LockToken() string {
	if s.Lock == LockManual {
		return manualPrefix + s.Manual
	}
	return s.Lock.String()
}

// Tokens renders the status as the trailing four tokens of a status reply.
func (s PhysicalStatus) Tokens() []string {
	return []string{
		s.LockToken(),
		s.Door.String(),
		s.Handle.String(),
		strconv.Itoa(s.EncoderPosition),
	}
}

// ParseLockState parses a lock token as sent by the firmware.
func ParseLockState(token string) (LockState, string, error) {
	switch {
	case token == "locked":
		return LockLocked, "", nil
	case token == "unlocked":
		return LockUnlocked, "", nil
	case token == "unknown":
		return LockUnknown, "", nil
	case strings.HasPrefix(token, manualPrefix) && len(token) > len(manualPrefix):
		return LockManual, strings.TrimPrefix(token, manualPrefix), nil
	}
	return LockUnknown, "", fmt.Errorf("unknown lock state %q", token)
}

// ParseDoorState parses a door token.
func ParseDoorState(token string) (DoorState, error) {
	switch token {
	case "open":
		return DoorOpen, nil
	case "closed":
		return DoorClosed, nil
	}
	return DoorClosed, fmt.Errorf("unknown door state %q", token)
}

// ParseHandleState parses a handle token.
func ParseHandleState(token string) (HandleState, error) {
	switch token {
	case "raised":
		return HandleRaised, nil
	case "lowered":
		return HandleLowered, nil
	}
	return HandleRaised, fmt.Errorf("unknown handle state %q", token)
}

// ButtonEdges holds one poll worth of button presses. Each flag is an
// edge, so it is consumed once.
type ButtonEdges struct {
	Green bool `json:"green"`
	White bool `json:"white"`
	Red   bool `json:"red"`
	Leave bool `json:"leave"`
}

// Any reports whether at least one button was pressed.
func (b ButtonEdges) Any() bool {
	return b.Green || b.White || b.Red || b.Leave
}

// SwipeEvent is a card presented to the reader.
type SwipeEvent struct {
	CardID string `json:"cardId"`
}

// Range is an inclusive interval of encoder positions.
type Range struct {
	Low  int `json:"low"`
	High int `json:"high"`
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Low, r.High)
}

// CalibrationRange holds the encoder intervals learned by calibration.
type CalibrationRange struct {
	Locked   Range `json:"locked"`
	Unlocked Range `json:"unlocked"`
}
