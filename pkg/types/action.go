package types

import "fmt"

// Action is a command requested from outside the controller, either
// pulled from the remote gateway or posted to the local API.
type Action string

const (
	ActionCalibrate Action = "calibrate"
	ActionLock      Action = "lock"
	ActionUnlock    Action = "unlock"
)

// ParseAction validates an action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionCalibrate, ActionLock, ActionUnlock:
		return a, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}
