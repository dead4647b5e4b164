package controller

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/panel"
	"github.com/makerspace/doorctl/pkg/types"
)

var (
	msgCloseDoor   = []string{"Please close", "the door"}
	msgRaiseHandle = []string{"Please raise", "the handle"}
	msgNotLocked   = []string{"Door is not locked!", "Close the door", "and raise the handle"}
	msgGoodbye     = []string{"Goodbye"}
)

// step runs the handler of the current state.
func (c *Controller) step(ctx context.Context) error {
	switch c.state {
	case StateInitial:
		return c.handleInitial()
	case StateLocking:
		return c.handleLocking(ctx)
	case StateLocked:
		return c.handleLocked(ctx)
	case StateUnlocking:
		return c.handleUnlocking(ctx, StateWaitForOpen)
	case StateTimedUnlocking:
		return c.handleUnlocking(ctx, StateTimedUnlock)
	case StateOpening:
		return c.handleUnlocking(ctx, StateOpen)
	case StateTimedUnlock:
		return c.handleTimedUnlock(ctx)
	case StateUnlocked:
		return c.handleUnlocked()
	case StateAlertUnlocked:
		return c.handleAlertUnlocked()
	case StateOpen:
		return c.handleOpen(ctx)
	case StateWaitForClose:
		return c.handleWaitForClose()
	case StateWaitForEnter:
		return c.handleWaitForEnter()
	case StateWaitForHandle:
		return c.handleWaitForHandle()
	case StateWaitForLeave:
		return c.handleWaitForLeave()
	case StateWaitForLeaveUnlock:
		return c.handleWaitForLeaveUnlock(ctx)
	case StateWaitForLock:
		return c.handleWaitForLock()
	case StateWaitForOpen:
		return c.handleWaitForOpen()
	}
	return c.fatal(ctx, "unhandled state", fmt.Errorf("state %d", int(c.state)))
}

func (c *Controller) handleInitial() error {
	c.setPattern(cardreader.PatternReady)
	c.clearDeadline()
	if !c.status.Lockable() {
		c.setState(StateWaitForClose)
		return nil
	}
	c.setState(StateLocking)
	return nil
}

func (c *Controller) handleLocking(ctx context.Context) error {
	if !c.status.Lockable() {
		c.setState(StateWaitForClose)
		return nil
	}
	c.display.setStatus([]string{"Locking"}, panel.Orange)

	err := c.deps.Lock.Lock()
	switch {
	case err == nil:
	case lock.IsNotCalibrated(err) && !c.relockCalibrated:
		// Stay in Locking; the next tick locks the calibrated actuator.
		c.relockCalibrated = true
		return c.calibrate(ctx)
	default:
		return c.fatal(ctx, "could not lock the door", err)
	}

	c.closeSpace()
	c.clearDeadline()
	c.visitor = ""
	c.setPattern(cardreader.PatternReady)
	c.deps.Notifier.SetStatus(":lock: Door is locked")
	c.setState(StateLocked)
	return nil
}

func (c *Controller) handleLocked(ctx context.Context) error {
	c.display.setStatus([]string{"Locked"}, panel.Orange)
	c.setPattern(cardreader.PatternReady)

	if c.status.EffectiveLock() == types.LockUnlocked {
		logrus.Warn("lock reports unlocked while locked")
		c.deps.Notifier.SetStatus(":unlock: Door was unlocked manually")
		c.setStateFor(StateUnlocked, c.opts.Timing.EnterUnlockedWarn)
		return nil
	}

	switch {
	case c.buttons.White:
		if !c.isOpenEvening() {
			c.showTemp([]string{"It is not", "Thursday yet"}, panel.Red)
			return nil
		}
		c.setState(StateOpening)
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.swipe != nil:
		if c.checkCard(ctx, c.swipe.CardID, true) {
			c.setStateFor(StateUnlocking, c.opts.Timing.EnterTime)
		}
	case c.buttons.Leave:
		c.deps.Notifier.Send(":exit: The Leave button has been pressed")
		c.setStateFor(StateWaitForLeaveUnlock, c.opts.Timing.LeaveTime)
	}
	return nil
}

// handleUnlocking serves Unlocking, TimedUnlocking and Opening, which
// differ only in where they go once the bolt is retracted.
func (c *Controller) handleUnlocking(ctx context.Context, next State) error {
	if err := c.deps.Lock.Unlock(); err != nil {
		return c.fatal(ctx, "could not unlock the door", err)
	}
	if next == StateOpen {
		c.clearDeadline()
		c.spaceOpen = true
		c.deps.Notifier.AnnounceOpen()
	}
	c.setState(next)
	return nil
}

func (c *Controller) handleTimedUnlock(ctx context.Context) error {
	switch {
	case c.buttons.Red || c.deadline.IsZero() || c.expired():
		c.clearDeadline()
		c.relock()
		return nil
	case c.buttons.Leave:
		c.deps.Notifier.Send(":exit: The Leave button has been pressed")
		c.setStateFor(StateWaitForLeave, c.opts.Timing.LeaveTime)
		return nil
	case c.buttons.Green:
		c.deadline = c.now().Add(c.opts.Timing.UnlockPeriod)
		logrus.WithField("deadline", c.deadline.Format(time.TimeOnly)).Info("unlock extended")
	}

	if c.swipe != nil {
		c.checkCard(ctx, c.swipe.CardID, false)
	}

	left := c.deadline.Sub(c.now())
	if left <= c.opts.Timing.UnlockWarn {
		c.setPattern(cardreader.PatternWarnClosing)
		c.display.setStatus([]string{"Open for", formatRemaining(left)}, panel.Orange)
		return nil
	}
	c.setPattern(cardreader.PatternOpen)
	c.display.setStatus([]string{"Open"}, panel.Green)
	return nil
}

func (c *Controller) handleWaitForOpen() error {
	switch {
	case c.status.Door == types.DoorOpen:
		c.setStateFor(StateWaitForEnter, c.opts.Timing.EnterUnlockedWarn)
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.expired():
		c.clearDeadline()
		c.relock()
	default:
		lines := []string{"Welcome"}
		if c.visitor != "" {
			lines = append(lines, c.visitor)
		}
		c.display.setStatus(lines, panel.Green)
	}
	return nil
}

func (c *Controller) handleWaitForEnter() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
	case c.status.Door == types.DoorClosed:
		c.setStateFor(StateWaitForHandle, c.opts.Timing.EnterUnlockedWarn)
	case c.expired():
		c.alertUnlocked()
	default:
		c.display.setStatus(msgCloseDoor, panel.Orange)
	}
	return nil
}

func (c *Controller) handleWaitForHandle() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
	case c.status.Door == types.DoorOpen:
		c.setStateFor(StateWaitForEnter, c.opts.Timing.EnterUnlockedWarn)
	case c.expired():
		c.alertUnlocked()
	default:
		c.display.setStatus(msgRaiseHandle, panel.Orange)
	}
	return nil
}

func (c *Controller) handleUnlocked() error {
	switch {
	case c.status.EffectiveLock() == types.LockLocked:
		c.clearDeadline()
		c.deps.Notifier.SetStatus(":lock: Door is locked")
		c.setState(StateLocked)
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.buttons.Red:
		if c.status.Lockable() {
			c.clearDeadline()
			c.setState(StateLocking)
			return nil
		}
		c.showTemp(msgCloseDoor, panel.Red)
	case c.status.Door == types.DoorOpen:
		c.setStateFor(StateWaitForEnter, c.opts.Timing.EnterUnlockedWarn)
	case c.expired():
		c.alertUnlocked()
	default:
		c.display.setStatus([]string{"Unlocked"}, panel.Orange)
	}
	return nil
}

func (c *Controller) handleAlertUnlocked() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
		return nil
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
		return nil
	case c.status.Door == types.DoorClosed:
		c.clearDeadline()
		c.setState(StateWaitForLock)
		return nil
	case c.expired():
		c.deps.Notifier.Send(":warning: The door has been left unlocked")
		c.deadline = c.now().Add(c.opts.Timing.UnlockedAlertInterval)
	}
	c.setPattern(cardreader.PatternError)
	c.display.setStatus(msgNotLocked, panel.Red)
	return nil
}

func (c *Controller) handleOpen(ctx context.Context) error {
	c.setPattern(cardreader.PatternOpen)
	c.display.setStatus([]string{"Open"}, panel.Green)

	if c.swipe != nil {
		c.checkCard(ctx, c.swipe.CardID, false)
	}

	switch {
	case c.buttons.Red:
		if !c.status.Lockable() {
			c.showTemp(msgCloseDoor, panel.Red)
			return nil
		}
		c.closeSpace()
		c.setState(StateLocking)
	case !c.isOpenEvening():
		if !c.status.Lockable() {
			return nil
		}
		logrus.Info("open evening is over")
		c.closeSpace()
		c.setState(StateLocking)
	}
	return nil
}

func (c *Controller) handleWaitForClose() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
	case c.status.Door == types.DoorClosed:
		c.display.setStatus(msgRaiseHandle, panel.Orange)
	default:
		c.display.setStatus(msgCloseDoor, panel.Orange)
	}
	return nil
}

func (c *Controller) handleWaitForLock() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
	case c.status.Door == types.DoorOpen:
		c.setState(StateWaitForClose)
	default:
		c.display.setStatus(msgRaiseHandle, panel.Orange)
	}
	return nil
}

func (c *Controller) handleWaitForLeaveUnlock(ctx context.Context) error {
	if !c.leaveUnlockSent && c.status.EffectiveLock() != types.LockUnlocked {
		if err := c.deps.Lock.Unlock(); err != nil {
			return c.fatal(ctx, "could not unlock the door", err)
		}
		c.leaveUnlockSent = true
	}

	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case c.status.Door == types.DoorOpen:
		c.setStateFor(StateWaitForLeave, c.opts.Timing.LeaveTime)
	case c.expired():
		c.clearDeadline()
		c.relock()
	default:
		c.setPattern(cardreader.PatternOpen)
		c.display.setStatus(msgGoodbye, panel.Green)
	}
	return nil
}

func (c *Controller) handleWaitForLeave() error {
	switch {
	case c.buttons.Green:
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.UnlockPeriod)
	case !c.expired():
		c.display.setStatus(msgGoodbye, panel.Green)
	case c.status.Lockable():
		c.clearDeadline()
		c.setState(StateLocking)
	default:
		c.display.setStatus(msgCloseDoor, panel.Orange)
	}
	return nil
}

// relock locks if the door allows it and otherwise waits for it to close.
func (c *Controller) relock() {
	if c.status.Lockable() {
		c.setState(StateLocking)
		return
	}
	c.setState(StateWaitForClose)
}

func (c *Controller) alertUnlocked() {
	logrus.Warn("door left unlocked")
	c.deps.Notifier.Send(":warning: The door has been left unlocked")
	c.setStateFor(StateAlertUnlocked, c.opts.Timing.UnlockedAlertInterval)
}

func (c *Controller) closeSpace() {
	if !c.spaceOpen {
		return
	}
	c.spaceOpen = false
	c.deps.Notifier.AnnounceClosed()
}

func (c *Controller) showTemp(lines []string, color panel.Color) {
	c.display.showTemp(lines, color, c.now().Add(c.opts.Timing.TempStatus))
}

func (c *Controller) setPattern(p cardreader.Pattern) {
	if c.deps.Reader == nil {
		return
	}
	if err := c.deps.Reader.SetPattern(p); err != nil {
		logrus.WithError(err).Warn("failed to set reader LEDs")
	}
}

func (c *Controller) playSound(s cardreader.Sound) {
	if c.deps.Reader == nil {
		return
	}
	if err := c.deps.Reader.PlaySound(s); err != nil {
		logrus.WithError(err).Warn("failed to sound reader buzzer")
	}
}

// isOpenEvening applies the weekly open evening rule in the site time zone.
func (c *Controller) isOpenEvening() bool {
	t := c.now().In(c.opts.Location)
	return t.Weekday() == c.opts.OpenWeekday && t.Hour() >= c.opts.OpenHour
}

// formatRemaining renders the time left as whole minutes while more than
// one minute remains, otherwise as seconds.
func formatRemaining(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 0 {
		secs = 0
	}
	mins := int(math.Ceil(float64(secs) / 60))
	if mins > 1 {
		return fmt.Sprintf("%d minutes", mins)
	}
	return fmt.Sprintf("%d seconds", secs)
}
