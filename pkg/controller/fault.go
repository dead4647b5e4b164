package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/cardreader"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/panel"
)

// FatalError is returned by Tick and Run when the controller cannot go on
// and the process must exit for its supervisor to restart it.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

type fault struct {
	reason string
	detail string
	until  time.Time
	shown  int
}

// calibrate runs the actuator calibration. Success leaves the bolt
// retracted; failure is fatal.
func (c *Controller) calibrate(ctx context.Context) error {
	logrus.Warn("lock is not calibrated, calibrating")
	c.playSound(cardreader.SoundUncalibrated)
	c.display.setStatus([]string{"CALIBRATING"}, panel.Red)
	c.deps.Notifier.SetStatus("Calibrating lock")

	r, err := c.deps.Lock.Calibrate()
	if err != nil {
		return c.fatal(ctx, "could not calibrate the lock", err)
	}
	if r != nil {
		c.calibration = r
		logrus.WithFields(logrus.Fields{
			"locked":   r.Locked,
			"unlocked": r.Unlocked,
		}).Info("lock calibrated")
	} else {
		logrus.Info("lock calibrated without ranges")
	}
	return nil
}

// fatal shows the fault on the panel, notifies, and escalates according
// to the fault mode. In FaultExit mode it sounds the alarm and returns a
// *FatalError; in FaultWait mode it starts the restart countdown and
// returns nil.
func (c *Controller) fatal(_ context.Context, reason string, err error) error {
	label, detail := "ERROR:", err.Error()
	var re *lock.ReplyError
	if errors.As(err, &re) {
		label, detail = "LOCK REPLY:", re.Reply
	}

	logrus.WithError(err).WithField("state", c.state).Error(reason)
	c.fault = &fault{reason: reason, detail: detail}

	c.writeBanner(label, reason, detail)
	c.deps.Notifier.SetStatus(fmt.Sprintf("Fatal error: %s: %s", reason, detail))
	if c.deps.Events != nil {
		c.deps.Events.Publish(events.FaultRaised, events.FaultRaisedEvent{
			Reason: reason,
			Detail: detail,
			Mode:   string(c.opts.FaultMode),
			Ts:     c.now().Unix(),
		})
	}

	switch c.opts.FaultMode {
	case FaultWait:
		c.fault.until = c.now().Add(c.opts.Timing.FaultWait)
		return nil
	case FaultExit:
	}
	c.soundAlarm()
	return &FatalError{Reason: reason, Err: err}
}

func (c *Controller) writeBanner(label, reason, detail string) {
	p := c.deps.Panel
	writes := []func() error{
		p.Clear,
		func() error { return p.WriteLine(0, "FATAL ERROR:", panel.Red, true, false) },
		func() error { return p.WriteLine(2, label, panel.Red, true, false) },
		func() error { return p.WriteLine(5, reason, panel.Red, false, false) },
		func() error { return p.WriteLine(6, detail, panel.Red, false, false) },
	}
	for _, w := range writes {
		if err := w(); err != nil {
			logrus.WithError(err).Error("failed to show fault on panel")
			return
		}
	}
}

func (c *Controller) soundAlarm() {
	t := c.opts.Timing
	for i := 0; i < t.AlarmRepetitions; i++ {
		c.playSound(cardreader.SoundFaulty1)
		c.sleep(t.AlarmShort)
		c.playSound(cardreader.SoundFaulty2)
		c.sleep(t.AlarmLong)
	}
}

// tickFault runs while a fault is shown in FaultWait mode. Swipes are
// dropped; any key or the end of the countdown reinitialises.
func (c *Controller) tickFault(_ context.Context) error {
	if ev := c.takeSwipe(); ev != nil {
		logrus.WithField("card", ev.CardID).Warn("dropping card swipe during fault")
	}

	edges, err := c.deps.Panel.PollButtons()
	if err != nil {
		return &FatalError{Reason: "lost contact with the panel during fault", Err: err}
	}

	left := c.fault.until.Sub(c.now())
	if edges.Any() || left <= 0 {
		logrus.WithField("reason", c.fault.reason).Info("restarting after fault")
		c.restart()
		return nil
	}

	secs := int(left.Round(time.Second).Seconds())
	if secs == c.fault.shown {
		return nil
	}
	c.fault.shown = secs
	text := fmt.Sprintf("Press a key or wait %ds", secs)
	if err := c.deps.Panel.WriteLine(8, text, panel.White, false, true); err != nil {
		return &FatalError{Reason: "lost contact with the panel during fault", Err: err}
	}
	return nil
}

func (c *Controller) restart() {
	c.fault = nil
	c.initialized = false
	c.statusValid = false
	c.spaceOpen = false
	c.visitor = ""
	c.lastClock = ""
	c.clearDeadline()
	c.display.reset()
	if err := c.deps.Panel.Clear(); err != nil {
		logrus.WithError(err).Warn("failed to clear panel")
	}
	c.setState(StateInitial)
}
