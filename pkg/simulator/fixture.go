// Package simulator replaces the lock, panel and card reader with an
// in-memory door driven from the keyboard. It behaves like the firmware:
// the lock refuses to engage while the door is open or the handle is
// lowered, and refuses everything until calibrated.
package simulator

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/panel"
	"github.com/makerspace/doorctl/pkg/types"
)

// Button names one keypad button.
type Button int

const (
	Green Button = iota
	White
	Red
	Leave
)

// DefaultCalibration is the range reported by a simulated calibration.
var DefaultCalibration = types.CalibrationRange{
	Locked:   types.Range{Low: 480, High: 520},
	Unlocked: types.Range{Low: -20, High: 20},
}

// Fixture is a simulated door. All methods are safe for concurrent use.
type Fixture struct {
	mu sync.Mutex

	status     types.PhysicalStatus
	calibrated bool
	pending    types.ButtonEdges
	swipes     chan types.SwipeEvent

	commands   []string
	violations []string

	large     [panel.NumSlots]string
	small     [panel.SmallRows]string
	color     panel.Color
	clock     string
	pattern   cardreader.Pattern
	sounds    []cardreader.Sound
	intensity cardreader.Intensity
	cardIDs   []string
	nextCard  int

	// Fault injection. A non-nil error is returned by the matching call.
	StatusErr error
	LockErr   error
	UnlockErr error
	CalErr    error
	PanelErr  error
	ButtonErr error
}

// New returns a closed, uncalibrated door. cardIDs are presented in turn
// by SwipeNext.
func New(cardIDs ...string) *Fixture {
	return &Fixture{
		status: types.PhysicalStatus{
			Lock:   types.LockUnknown,
			Door:   types.DoorClosed,
			Handle: types.HandleRaised,
		},
		swipes:  make(chan types.SwipeEvent, 8),
		cardIDs: cardIDs,
	}
}

// NewCalibrated returns a closed door locked by a calibrated actuator.
func NewCalibrated(cardIDs ...string) *Fixture {
	f := New(cardIDs...)
	f.calibrated = true
	f.status.Lock = types.LockLocked
	f.status.EncoderPosition = 500
	return f
}

// Status implements the lock link.
func (f *Fixture) Status() (types.PhysicalStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return types.PhysicalStatus{}, f.StatusErr
	}
	return f.status, nil
}

// SetVerbosity implements the lock link.
func (f *Fixture) SetVerbosity(level int) error {
	f.record(fmt.Sprintf("set_verbosity %d", level))
	return nil
}

// Lock implements the lock link.
func (f *Fixture) Lock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "lock")
	if !f.status.Lockable() {
		f.violations = append(f.violations, fmt.Sprintf("lock with door %s and handle %s", f.status.Door, f.status.Handle))
	}
	switch {
	case f.LockErr != nil:
		return f.LockErr
	case !f.calibrated:
		return &lock.ReplyError{Command: "lock", Reply: "ERROR: not calibrated"}
	case !f.status.Lockable():
		return &lock.ReplyError{Command: "lock", Reply: "ERROR: door is open"}
	}
	f.status.Lock = types.LockLocked
	f.status.Manual = ""
	f.status.EncoderPosition = 500
	return nil
}

// Unlock implements the lock link.
func (f *Fixture) Unlock() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "unlock")
	switch {
	case f.UnlockErr != nil:
		return f.UnlockErr
	case !f.calibrated:
		return &lock.ReplyError{Command: "unlock", Reply: "ERROR: not calibrated"}
	}
	f.status.Lock = types.LockUnlocked
	f.status.Manual = ""
	f.status.EncoderPosition = 0
	return nil
}

// Calibrate implements the lock link.
func (f *Fixture) Calibrate() (*types.CalibrationRange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, "calibrate")
	if f.CalErr != nil {
		return nil, f.CalErr
	}
	f.calibrated = true
	f.status.Lock = types.LockUnlocked
	f.status.EncoderPosition = 0
	r := DefaultCalibration
	return &r, nil
}

// Clear implements the panel link.
func (f *Fixture) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanelErr != nil {
		return f.PanelErr
	}
	f.large = [panel.NumSlots]string{}
	f.small = [panel.SmallRows]string{}
	return nil
}

// WriteLine implements the panel link.
func (f *Fixture) WriteLine(slot int, text string, color panel.Color, large, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanelErr != nil {
		return f.PanelErr
	}
	if large {
		if slot < 0 || slot >= panel.NumSlots {
			return fmt.Errorf("%w: %d", panel.ErrBadSlot, slot)
		}
		f.large[slot] = text
		f.color = color
		return nil
	}
	if slot < 0 || slot >= panel.SmallRows {
		return fmt.Errorf("%w: %d", panel.ErrBadSlot, slot)
	}
	f.small[slot] = text
	return nil
}

// WriteLines implements the panel link.
func (f *Fixture) WriteLines(lines []string, color panel.Color) error {
	slots, err := panel.Layout(lines)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanelErr != nil {
		return f.PanelErr
	}
	changed := f.large != slots || f.color != color
	f.large = slots
	f.color = color
	if changed {
		logrus.WithFields(logrus.Fields{
			"color": color,
			"text":  strings.Join(lines, " / "),
		}).Info("display")
	}
	return nil
}

// PollButtons implements the panel link. Each press is reported once.
func (f *Fixture) PollButtons() (types.ButtonEdges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ButtonErr != nil {
		return types.ButtonEdges{}, f.ButtonErr
	}
	e := f.pending
	f.pending = types.ButtonEdges{}
	return e, nil
}

// SetClock implements the panel link.
func (f *Fixture) SetClock(hhmm string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PanelErr != nil {
		return f.PanelErr
	}
	f.clock = hhmm
	return nil
}

// SetPattern implements the reader indicator.
func (f *Fixture) SetPattern(p cardreader.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pattern = p
	return nil
}

// PlaySound implements the reader indicator.
func (f *Fixture) PlaySound(s cardreader.Sound) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds = append(f.sounds, s)
	return nil
}

// Swipes is the swipe inbox for the controller.
func (f *Fixture) Swipes() <-chan types.SwipeEvent {
	return f.swipes
}

// Press queues a button press for the next poll.
func (f *Fixture) Press(b Button) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch b {
	case Green:
		f.pending.Green = true
	case White:
		f.pending.White = true
	case Red:
		f.pending.Red = true
	case Leave:
		f.pending.Leave = true
	}
}

// Swipe presents a card.
func (f *Fixture) Swipe(cardID string) {
	select {
	case f.swipes <- types.SwipeEvent{CardID: cardID}:
	default:
		logrus.WithField("card", cardID).Warn("simulated swipe inbox full")
	}
}

// SwipeNext presents the next configured card, cycling through them.
func (f *Fixture) SwipeNext() {
	f.mu.Lock()
	if len(f.cardIDs) == 0 {
		f.mu.Unlock()
		logrus.Warn("no simulated cards configured")
		return
	}
	id := f.cardIDs[f.nextCard%len(f.cardIDs)]
	f.nextCard++
	f.mu.Unlock()
	f.Swipe(id)
}

// SetDoor sets the door sensor.
func (f *Fixture) SetDoor(d types.DoorState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Door = d
}

// SetHandle sets the handle sensor.
func (f *Fixture) SetHandle(h types.HandleState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Handle = h
}

// ToggleDoor opens a closed door and closes an open one.
func (f *Fixture) ToggleDoor() types.DoorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Door == types.DoorOpen {
		f.status.Door = types.DoorClosed
	} else {
		f.status.Door = types.DoorOpen
	}
	return f.status.Door
}

// ToggleHandle raises a lowered handle and lowers a raised one.
func (f *Fixture) ToggleHandle() types.HandleState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status.Handle == types.HandleLowered {
		f.status.Handle = types.HandleRaised
	} else {
		f.status.Handle = types.HandleLowered
	}
	return f.status.Handle
}

// SetManual puts the actuator in manual override; sub is e.g. "locked".
func (f *Fixture) SetManual(sub string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Lock = types.LockManual
	f.status.Manual = sub
}

// Uncalibrate makes the actuator forget its calibration.
func (f *Fixture) Uncalibrate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calibrated = false
	f.status.Lock = types.LockUnknown
}

// Commands returns the lock commands issued so far.
func (f *Fixture) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.commands)
}

// Violations lists lock commands issued while the door could not lock.
func (f *Fixture) Violations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.violations)
}

// Screen returns the large-font slots and their color.
func (f *Fixture) Screen() ([panel.NumSlots]string, panel.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.large, f.color
}

// ScreenText returns the non-empty large-font slots joined by spaces.
func (f *Fixture) ScreenText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var parts []string
	for _, s := range f.large {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// SmallRow returns one small-font row.
func (f *Fixture) SmallRow(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.small[i]
}

// Clock returns the time shown on the panel.
func (f *Fixture) Clock() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

// Pattern returns the current reader LED pattern.
func (f *Fixture) Pattern() cardreader.Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pattern
}

// Sounds returns the sounds played so far.
func (f *Fixture) Sounds() []cardreader.Sound {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sounds)
}

// SetIntensity records the reader LED brightness.
func (f *Fixture) SetIntensity(i cardreader.Intensity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intensity = i
	return nil
}

// Intensity returns the last brightness set.
func (f *Fixture) Intensity() cardreader.Intensity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intensity
}

func (f *Fixture) record(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}
