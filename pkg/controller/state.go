package controller

import "fmt"

// State is the controller's position in the door workflow.
type State int

const (
	StateInitial State = iota
	StateLocking
	StateLocked
	StateUnlocking
	StateTimedUnlocking
	StateTimedUnlock
	StateUnlocked
	StateAlertUnlocked
	StateOpen
	StateOpening
	StateWaitForClose
	StateWaitForEnter
	StateWaitForHandle
	StateWaitForLeave
	StateWaitForLeaveUnlock
	StateWaitForLock
	StateWaitForOpen
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateLocking:
		return "Locking"
	case StateLocked:
		return "Locked"
	case StateUnlocking:
		return "Unlocking"
	case StateTimedUnlocking:
		return "TimedUnlocking"
	case StateTimedUnlock:
		return "TimedUnlock"
	case StateUnlocked:
		return "Unlocked"
	case StateAlertUnlocked:
		return "AlertUnlocked"
	case StateOpen:
		return "Open"
	case StateOpening:
		return "Opening"
	case StateWaitForClose:
		return "WaitForClose"
	case StateWaitForEnter:
		return "WaitForEnter"
	case StateWaitForHandle:
		return "WaitForHandle"
	case StateWaitForLeave:
		return "WaitForLeave"
	case StateWaitForLeaveUnlock:
		return "WaitForLeaveUnlock"
	case StateWaitForLock:
		return "WaitForLock"
	case StateWaitForOpen:
		return "WaitForOpen"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	name := string(b)
	for st := StateInitial; st <= StateWaitForOpen; st++ {
		if st.String() == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", name)
}
