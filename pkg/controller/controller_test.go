package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/doorctl/pkg/authority"
	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/panel"
	"github.com/makerspace/doorctl/pkg/simulator"
	"github.com/makerspace/doorctl/pkg/types"
)

func TestStartupLocksClosedDoor(t *testing.T) {
	h := newLockedHarness(t, monday)

	assert.Equal(t, []string{"set_verbosity 1", "lock"}, h.dev.Commands())
	slots, color := h.dev.Screen()
	assert.Equal(t, "Locked", slots[2])
	assert.Equal(t, panel.Orange, color)
	assert.Equal(t, cardreader.PatternReady, h.dev.Pattern())
	assert.Equal(t, "12:00", h.dev.Clock())
	assert.True(t, h.notes.has(":lock: Door is locked"))
	assert.Contains(t, h.events.names, events.StateChanged)
	require.NotEmpty(t, h.gw.statuses)
	assert.Equal(t, "locked", h.gw.statuses[len(h.gw.statuses)-1].LockStatus)
}

func TestStartupWithOpenDoorWaits(t *testing.T) {
	dev := simulator.NewCalibrated()
	dev.SetDoor(types.DoorOpen)
	h := newHarness(t, dev, monday, FaultExit)

	h.tick()
	assert.Equal(t, StateWaitForClose, h.c.state)
	h.tick()
	assert.Equal(t, "Please close the door", dev.ScreenText())

	dev.SetDoor(types.DoorClosed)
	dev.SetHandle(types.HandleLowered)
	h.tick()
	assert.Equal(t, "Please raise the handle", dev.ScreenText())

	dev.SetHandle(types.HandleRaised)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Empty(t, dev.Violations())
}

func TestValidSwipeUnlocks(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.Swipe("0000000042")
	h.tick()
	assert.Equal(t, StateUnlocking, h.c.state)
	assert.Equal(t, monday.Add(30*time.Second), h.c.deadline)
	assert.Equal(t, cardreader.PatternEnter, h.dev.Pattern())
	assert.True(t, h.notes.has(":key: Valid card swiped, unlocking"))
	assert.Equal(t, []string{"Granted entry"}, h.audit.messages())
	require.NotNil(t, h.audit.entries[0].userID)
	assert.Equal(t, 42, *h.audit.entries[0].userID)

	h.advance(time.Second)
	h.tick()
	assert.Equal(t, StateWaitForOpen, h.c.state)
	assert.Equal(t, monday.Add(30*time.Second), h.c.deadline)
	assert.Equal(t, []string{"lock", "unlock"}, h.lockCommands())

	h.tick()
	assert.Equal(t, "Welcome Ada", h.dev.ScreenText())

	h.dev.SetDoor(types.DoorOpen)
	h.tick()
	assert.Equal(t, StateWaitForEnter, h.c.state)
	h.tick()
	assert.Equal(t, "Please close the door", h.dev.ScreenText())

	h.dev.SetDoor(types.DoorClosed)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

func TestSwipeWithoutEntryRelocks(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Swipe("0000000042")
	h.tick()
	h.tick()
	require.Equal(t, StateWaitForOpen, h.c.state)

	h.advance(31 * time.Second)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
}

func TestDeniedSwipes(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.Swipe("0000000007")
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, cardreader.PatternNoEntry, h.dev.Pattern())
	assert.Equal(t, "Denied entry: Bob", h.dev.ScreenText())
	assert.True(t, h.notes.has(":bandit: Unauthorized card swiped"))
	assert.Equal(t, []string{"Denied entry"}, h.audit.messages())

	h.advance(11 * time.Second)
	h.tick()
	assert.Equal(t, "Locked", h.dev.ScreenText())

	h.dev.Swipe("0000000099")
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, cardreader.PatternNoEntry, h.dev.Pattern())
	slots, color := h.dev.Screen()
	assert.Equal(t, "Unknown card", slots[1])
	assert.Equal(t, "0000000099", slots[3])
	assert.Equal(t, panel.Yellow, color)
	assert.Equal(t, []string{"0000000099"}, h.auth.reported)
	assert.Equal(t, "Denied entry for 0000000099", h.audit.messages()[1])
	assert.Equal(t, []string{"lock"}, h.lockCommands())
}

func TestAuthorityFailureDeniesWithErrorSignal(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.auth.err = fmt.Errorf("%w: connection refused", authority.ErrService)

	h.dev.Swipe("0000000042")
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, cardreader.PatternError, h.dev.Pattern())
	assert.True(t, h.notes.has(":computer_rage: Internal error checking card"))
	assert.Empty(t, h.auth.reported)
	assert.Empty(t, h.audit.entries)
	assert.Equal(t, []string{"lock"}, h.lockCommands())
}

func TestGreenTimedUnlock(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.Press(simulator.Green)
	h.tick()
	assert.Equal(t, StateTimedUnlocking, h.c.state)
	h.tick()
	assert.Equal(t, StateTimedUnlock, h.c.state)
	assert.Equal(t, monday.Add(15*time.Minute), h.c.deadline)
	h.tick()
	_, color := h.dev.Screen()
	assert.Equal(t, "Open", h.dev.ScreenText())
	assert.Equal(t, panel.Green, color)

	h.advance(10*time.Minute + time.Second)
	h.tick()
	slots, color := h.dev.Screen()
	assert.Equal(t, "Open for", slots[1])
	assert.Equal(t, "5 minutes", slots[3])
	assert.Equal(t, panel.Orange, color)
	assert.Equal(t, cardreader.PatternWarnClosing, h.dev.Pattern())

	h.advance(4*time.Minute + 30*time.Second)
	h.tick()
	assert.Equal(t, "Open for 29 seconds", h.dev.ScreenText())

	h.advance(30 * time.Second)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, []string{"lock", "unlock", "lock"}, h.lockCommands())
}

func TestTimedUnlockExpiresWithDoorOpen(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Press(simulator.Green)
	h.tick()
	h.tick()

	h.dev.SetDoor(types.DoorOpen)
	h.advance(16 * time.Minute)
	h.tick()
	assert.Equal(t, StateWaitForClose, h.c.state)
	h.tick()
	assert.Equal(t, StateWaitForClose, h.c.state)

	h.dev.SetDoor(types.DoorClosed)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

func TestRedEndsTimedUnlock(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Press(simulator.Green)
	h.tick()
	h.tick()

	h.dev.Press(simulator.Red)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.True(t, h.c.deadline.IsZero())
}

func TestLeaveKeepsDoorUnlockedUntilClosed(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.Press(simulator.Leave)
	h.tick()
	assert.Equal(t, StateWaitForLeaveUnlock, h.c.state)
	assert.True(t, h.notes.has("Leave button"))

	h.tick()
	assert.Equal(t, []string{"lock", "unlock"}, h.lockCommands())
	assert.Equal(t, "Goodbye", h.dev.ScreenText())

	h.dev.SetDoor(types.DoorOpen)
	h.advance(time.Second)
	h.tick()
	assert.Equal(t, StateWaitForLeave, h.c.state)
	assert.Equal(t, monday.Add(6*time.Second), h.c.deadline)

	// Deadline passes with the door still open: prompt, never lock.
	h.advance(6 * time.Second)
	h.tick()
	h.tick()
	assert.Equal(t, StateWaitForLeave, h.c.state)
	assert.Equal(t, "Please close the door", h.dev.ScreenText())
	assert.Equal(t, []string{"lock", "unlock"}, h.lockCommands())

	h.dev.SetDoor(types.DoorClosed)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

func TestLeaveWithoutOpeningRelocks(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Press(simulator.Leave)
	h.tick()
	h.tick()

	h.advance(6 * time.Second)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
}

func TestEntryLeftOpenAlerts(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Swipe("0000000042")
	h.tick()
	h.tick()
	h.dev.SetDoor(types.DoorOpen)
	h.tick()
	require.Equal(t, StateWaitForEnter, h.c.state)

	h.advance(5*time.Minute + time.Second)
	h.tick()
	assert.Equal(t, StateAlertUnlocked, h.c.state)
	assert.Equal(t, 1, h.notes.count("left unlocked"))

	h.tick()
	_, color := h.dev.Screen()
	assert.Equal(t, panel.Red, color)
	assert.Equal(t, "Door is not locked! Close the door and raise the handle", h.dev.ScreenText())

	h.advance(31 * time.Second)
	h.tick()
	assert.Equal(t, StateAlertUnlocked, h.c.state)
	assert.Equal(t, 2, h.notes.count("left unlocked"))

	h.dev.SetDoor(types.DoorClosed)
	h.dev.SetHandle(types.HandleLowered)
	h.tick()
	assert.Equal(t, StateWaitForLock, h.c.state)

	h.dev.SetHandle(types.HandleRaised)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

func TestHandleLoweredAfterEntry(t *testing.T) {
	h := newLockedHarness(t, monday)
	h.dev.Swipe("0000000042")
	h.tick()
	h.tick()
	h.dev.SetDoor(types.DoorOpen)
	h.tick()

	h.dev.SetDoor(types.DoorClosed)
	h.dev.SetHandle(types.HandleLowered)
	h.tick()
	assert.Equal(t, StateWaitForHandle, h.c.state)
	h.tick()
	assert.Equal(t, "Please raise the handle", h.dev.ScreenText())

	h.advance(6 * time.Minute)
	h.tick()
	assert.Equal(t, StateAlertUnlocked, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

var thursday = time.Date(2024, 1, 4, 16, 0, 0, 0, time.UTC)

func TestLeaveUnlockIssuedOnce(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.Press(simulator.Leave)
	h.tick()
	h.tick()
	require.Equal(t, StateWaitForLeaveUnlock, h.c.state)

	// Knob held in the locked position.
	for i := 0; i < 3; i++ {
		h.dev.SetManual("locked")
		h.tick()
	}
	assert.Equal(t, StateWaitForLeaveUnlock, h.c.state)
	assert.Equal(t, []string{"lock", "unlock"}, h.lockCommands())
}

func TestWhiteOpensOnThursday(t *testing.T) {
	h := newLockedHarness(t, thursday)

	h.dev.Press(simulator.White)
	h.tick()
	assert.Equal(t, StateOpening, h.c.state)
	h.tick()
	assert.Equal(t, StateOpen, h.c.state)
	assert.True(t, h.c.spaceOpen)
	assert.True(t, h.notes.has("announce open"))

	h.tick()
	assert.Equal(t, "Open", h.dev.ScreenText())
	assert.Equal(t, cardreader.PatternOpen, h.dev.Pattern())

	// Cards are only recorded while open.
	h.dev.Swipe("0000000042")
	h.tick()
	assert.Equal(t, StateOpen, h.c.state)
	assert.True(t, h.notes.has("Valid card swiped while open"))

	h.dev.SetDoor(types.DoorOpen)
	h.dev.Press(simulator.Red)
	h.tick()
	assert.Equal(t, StateOpen, h.c.state)
	assert.Equal(t, "Please close the door", h.dev.ScreenText())

	h.dev.SetDoor(types.DoorClosed)
	h.dev.Press(simulator.Red)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.False(t, h.c.spaceOpen)
	assert.True(t, h.notes.has("announce closed"))
	assert.Empty(t, h.dev.Violations())
}

func TestOpenEndsAtMidnight(t *testing.T) {
	h := newLockedHarness(t, thursday)
	h.dev.Press(simulator.White)
	h.tick()
	h.tick()
	require.Equal(t, StateOpen, h.c.state)

	h.advance(8 * time.Hour)
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.True(t, h.notes.has("announce closed"))
}

func TestWhiteRefusedOutsideOpenEvening(t *testing.T) {
	for _, start := range []time.Time{monday, thursday.Add(-2 * time.Hour)} {
		h := newLockedHarness(t, start)
		h.dev.Press(simulator.White)
		h.tick()
		assert.Equal(t, StateLocked, h.c.state)
		slots, color := h.dev.Screen()
		assert.Equal(t, "It is not", slots[1])
		assert.Equal(t, "Thursday yet", slots[3])
		assert.Equal(t, panel.Red, color)
	}
}

func TestCalibratesUnknownLock(t *testing.T) {
	dev := simulator.New()
	h := newHarness(t, dev, monday, FaultExit)

	h.tick()
	assert.Equal(t, StateInitial, h.c.state)
	assert.Equal(t, []string{"calibrate"}, h.lockCommands())
	require.NotNil(t, h.c.calibration)
	assert.Equal(t, simulator.DefaultCalibration, *h.c.calibration)
	assert.Contains(t, dev.Sounds(), cardreader.SoundUncalibrated)
	assert.True(t, h.notes.has("Calibrating lock"))
	assert.Equal(t, "CALIBRATING", dev.ScreenText())

	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, []string{"calibrate", "lock"}, h.lockCommands())

	snap := h.c.Snapshot()
	require.NotNil(t, snap.Calibration)
	assert.Equal(t, simulator.DefaultCalibration.Locked, snap.Calibration.Locked)
	require.NotEmpty(t, h.gw.statuses)
	assert.NotNil(t, h.gw.statuses[len(h.gw.statuses)-1].LockedRange)
}

func TestLockRejectedAsUncalibratedCalibrates(t *testing.T) {
	dev := simulator.NewCalibrated()
	h := newHarness(t, dev, monday, FaultExit)
	h.tick()
	require.Equal(t, StateLocking, h.c.state)

	dev.LockErr = &lock.ReplyError{Command: "lock", Reply: "ERROR: not calibrated"}
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.Equal(t, []string{"lock", "calibrate"}, h.lockCommands())

	dev.LockErr = nil
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
}

func TestLockStillUncalibratedIsFatal(t *testing.T) {
	dev := simulator.NewCalibrated()
	h := newHarness(t, dev, monday, FaultExit)
	h.tick()
	require.Equal(t, StateLocking, h.c.state)

	dev.LockErr = &lock.ReplyError{Command: "lock", Reply: "ERROR: not calibrated"}
	h.tick()
	require.Equal(t, StateLocking, h.c.state)

	err := h.c.Tick(context.Background())
	var fe *FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "could not lock the door", fe.Reason)
	assert.Equal(t, []string{"lock", "calibrate", "lock"}, h.lockCommands())
}

func TestManualOverride(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.SetManual("unlocked")
	h.tick()
	assert.Equal(t, StateUnlocked, h.c.state)
	h.tick()
	assert.Equal(t, "Unlocked", h.dev.ScreenText())

	h.dev.SetManual("locked")
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Equal(t, []string{"lock"}, h.lockCommands())
}

func TestMalformedStatusIsTransient(t *testing.T) {
	h := newLockedHarness(t, monday)

	h.dev.StatusErr = fmt.Errorf("%w: got 4 tokens", lock.ErrMalformedStatus)
	h.dev.Press(simulator.Green)
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.True(t, h.notes.has("Lock status is unknown"))
	assert.False(t, h.c.Snapshot().StatusValid)
	assert.Equal(t, types.LockUnknown, h.c.Snapshot().Status.Lock)

	h.dev.StatusErr = nil
	h.tick()
	assert.Equal(t, StateTimedUnlocking, h.c.state)
	assert.Equal(t, []string{"lock"}, h.lockCommands())
}

func TestGatewayActions(t *testing.T) {
	h := newLockedHarness(t, monday)

	// The action is taken before the state handler, so the unlock is
	// issued in the same tick.
	h.gw.actions = []string{"unlock"}
	h.tick()
	assert.Equal(t, StateTimedUnlock, h.c.state)
	assert.Equal(t, monday.Add(30*time.Second), h.c.deadline)
	assert.True(t, h.notes.has(":unlock: Door is unlocked"))
	assert.Equal(t, []string{"lock", "unlock"}, h.lockCommands())

	h.dev.SetDoor(types.DoorOpen)
	h.gw.actions = []string{"lock"}
	h.tick()
	assert.True(t, h.notes.has(":stop: Door is open, cannot lock"))
	assert.Equal(t, StateTimedUnlock, h.c.state)

	h.dev.SetDoor(types.DoorClosed)
	h.gw.actions = []string{"dance"}
	h.tick()
	assert.True(t, h.notes.has(":question: Unknown action 'dance'"))

	h.gw.actions = []string{"lock"}
	h.tick()
	h.tick()
	assert.Equal(t, StateLocked, h.c.state)
	assert.Empty(t, h.dev.Violations())
}

func TestGatewayUnlockClosesSpace(t *testing.T) {
	h := newLockedHarness(t, thursday)
	h.dev.Press(simulator.White)
	h.tick()
	h.tick()
	require.Equal(t, StateOpen, h.c.state)
	require.True(t, h.c.spaceOpen)

	h.gw.actions = []string{"unlock"}
	h.tick()
	assert.Equal(t, StateTimedUnlock, h.c.state)
	assert.False(t, h.c.spaceOpen)
	assert.True(t, h.notes.has("announce closed"))

	h.advance(31 * time.Second)
	h.tick()
	h.tick()
	require.Equal(t, StateLocked, h.c.state)
	assert.False(t, h.c.Snapshot().SpaceOpen)
	require.NotEmpty(t, h.gw.statuses)
	assert.Equal(t, "closed", h.gw.statuses[len(h.gw.statuses)-1].Space)
}

func TestLocalActionsTakePriority(t *testing.T) {
	h := newLockedHarness(t, monday)

	require.NoError(t, h.c.Submit(types.ActionCalibrate))
	h.gw.actions = []string{"unlock"}
	h.tick()
	assert.Equal(t, StateLocking, h.c.state)
	assert.Equal(t, []string{"lock", "calibrate"}, h.lockCommands())
	assert.Equal(t, []string{"unlock"}, h.gw.actions)

	for i := 0; i < actionQueueSize; i++ {
		require.NoError(t, h.c.Submit(types.ActionLock))
	}
	assert.ErrorIs(t, h.c.Submit(types.ActionLock), ErrBusy)
}

func TestNeverLocksWhileOpen(t *testing.T) {
	h := newLockedHarness(t, thursday)
	rnd := rand.New(rand.NewSource(1))
	cards := []string{"0000000042", "0000000007", "0000000099"}

	for i := 0; i < 5000; i++ {
		switch rnd.Intn(12) {
		case 0:
			h.dev.Press(simulator.Green)
		case 1:
			h.dev.Press(simulator.White)
		case 2:
			h.dev.Press(simulator.Red)
		case 3:
			h.dev.Press(simulator.Leave)
		case 4:
			h.dev.ToggleDoor()
		case 5:
			h.dev.ToggleHandle()
		case 6:
			h.dev.Swipe(cards[rnd.Intn(len(cards))])
		case 7:
			h.advance(time.Duration(rnd.Intn(600)) * time.Second)
		}
		h.advance(100 * time.Millisecond)
		require.NoError(t, h.c.Tick(context.Background()), "tick %d in %s", i, h.c.state)
	}
	assert.Empty(t, h.dev.Violations())
}
