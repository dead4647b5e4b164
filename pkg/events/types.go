package events

import "encoding/json"

// Event names.
const (
	// StateChanged is published on every controller state transition.
	StateChanged = "controller.state"
	// FaultRaised is published when the controller enters fault handling.
	FaultRaised = "controller.fault"
	// CardSwiped is published with the outcome of every card check.
	CardSwiped = "controller.card"
)

// Event is one server-sent event.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StateChangedEvent is the payload of StateChanged.
type StateChangedEvent struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Deadline int64  `json:"deadline,omitempty"`
	Ts       int64  `json:"ts"`
}

// FaultRaisedEvent is the payload of FaultRaised.
type FaultRaisedEvent struct {
	Reason string `json:"reason"`
	Detail string `json:"detail"`
	Mode   string `json:"mode"`
	Ts     int64  `json:"ts"`
}

// CardSwipedEvent is the payload of CardSwiped.
type CardSwipedEvent struct {
	CardID  string `json:"cardId"`
	Outcome string `json:"outcome"`
	Name    string `json:"name,omitempty"`
	Ts      int64  `json:"ts"`
}

// DecodeAs decodes the payload of e into T. Empty data yields the zero value.
//
//	payload, err := events.DecodeAs[events.StateChangedEvent](ev)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
