// Package controller implements the door access state machine. Each tick
// it reads the lock sensors and the keypad, takes at most one card swipe,
// advances the state machine and issues at most one lock command.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/gateway"
	"github.com/makerspace/doorctl/pkg/lock"
	"github.com/makerspace/doorctl/pkg/types"
)

const actionQueueSize = 4

// ErrBusy is returned by Submit when actions are arriving faster than
// the controller consumes them.
var ErrBusy = errors.New("controller busy, try again")

// Snapshot is a consistent view of the controller for the local API.
type Snapshot struct {
	State       State                   `json:"state"`
	Deadline    *time.Time              `json:"deadline,omitempty"`
	Status      types.PhysicalStatus    `json:"status"`
	StatusValid bool                    `json:"statusValid"`
	Calibration *types.CalibrationRange `json:"calibration,omitempty"`
	SpaceOpen   bool                    `json:"spaceOpen"`
	Display     []string                `json:"display"`
	Fault       string                  `json:"fault,omitempty"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// Controller owns the door state. Only the goroutine running Run (or
// calling Tick) mutates it; Snapshot and Submit are safe from any goroutine.
type Controller struct {
	opts Options
	deps Deps

	state    State
	deadline time.Time

	status      types.PhysicalStatus
	statusValid bool
	buttons     types.ButtonEdges
	swipe       *types.SwipeEvent
	calibration *types.CalibrationRange
	spaceOpen   bool
	visitor     string
	lastClock   string
	initialized bool

	// relockCalibrated is set once Locking recalibrated the actuator.
	relockCalibrated bool
	// leaveUnlockSent is set once WaitForLeaveUnlock issued its unlock.
	leaveUnlockSent bool

	display display
	fault   *fault

	actions chan types.Action

	mu   sync.RWMutex
	snap Snapshot

	now   func() time.Time
	sleep func(time.Duration)
}

// New returns a Controller in the Initial state.
func New(opts Options, deps Deps) *Controller {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.FaultMode == "" {
		opts.FaultMode = FaultExit
	}
	return &Controller{
		opts:    opts,
		deps:    deps,
		state:   StateInitial,
		display: display{panel: deps.Panel},
		actions: make(chan types.Action, actionQueueSize),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// Run ticks until ctx is cancelled or a fault requires the process to exit.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Timing.Tick)
	defer ticker.Stop()

	logrus.WithField("tick", c.opts.Timing.Tick).Info("controller started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("controller stopped")
			return nil
		case <-ticker.C:
			if err := c.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Submit queues an action from the local API.
func (c *Controller) Submit(a types.Action) error {
	select {
	case c.actions <- a:
		return nil
	default:
		return ErrBusy
	}
}

// Snapshot returns the state as of the last completed tick.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Tick runs one iteration. A non-nil error means the process must exit.
func (c *Controller) Tick(ctx context.Context) error {
	defer c.publishSnapshot()

	if c.fault != nil {
		return c.tickFault(ctx)
	}

	if !c.initialized {
		if err := c.deps.Lock.SetVerbosity(c.opts.Verbosity); err != nil {
			return c.fatal(ctx, "could not configure the lock", err)
		}
		c.initialized = true
	}

	st, err := c.deps.Lock.Status()
	switch {
	case errors.Is(err, lock.ErrMalformedStatus):
		logrus.WithError(err).Warn("bad status from lock")
		c.statusValid = false
		c.status.Lock = types.LockUnknown
		c.deps.Notifier.SetStatus(fmt.Sprintf("Lock status is unknown: %v", err))
		return nil
	case err != nil:
		return c.fatal(ctx, "could not read lock status", err)
	}
	c.observe(st)

	if st.Lock == types.LockUnknown {
		if err := c.calibrate(ctx); err != nil {
			return err
		}
		c.closeSpace()
		c.setState(StateInitial)
		return nil
	}

	c.buttons, err = c.deps.Panel.PollButtons()
	if err != nil {
		return c.fatal(ctx, "could not read the keypad", err)
	}
	if c.buttons.Any() {
		logrus.WithFields(logrus.Fields{
			"green": c.buttons.Green,
			"white": c.buttons.White,
			"red":   c.buttons.Red,
			"leave": c.buttons.Leave,
		}).Info("buttons pressed")
	}
	c.swipe = c.takeSwipe()

	c.pushGateway()
	if err := c.takeAction(ctx); err != nil {
		return err
	}

	if err := c.step(ctx); err != nil {
		return err
	}
	if c.fault != nil {
		return nil
	}

	now := c.now()
	c.display.expire(now)
	c.updateClock(now)
	if err := c.display.failed(); err != nil {
		return c.fatal(ctx, "lost contact with the panel", err)
	}
	return nil
}

func (c *Controller) observe(st types.PhysicalStatus) {
	if !c.statusValid || st.Lock != c.status.Lock || st.Manual != c.status.Manual ||
		st.Door != c.status.Door || st.Handle != c.status.Handle {
		logrus.WithFields(logrus.Fields{
			"lock":   st.LockToken(),
			"door":   st.Door,
			"handle": st.Handle,
		}).Info("lock status changed")
	}
	c.status = st
	c.statusValid = true
}

func (c *Controller) takeSwipe() *types.SwipeEvent {
	if c.deps.Swipes == nil {
		return nil
	}
	select {
	case ev := <-c.deps.Swipes:
		logrus.WithField("card", ev.CardID).Info("card swiped")
		return &ev
	default:
		return nil
	}
}

func (c *Controller) pushGateway() {
	if c.deps.Gateway == nil {
		return
	}
	c.deps.Gateway.SetStatus(gateway.NewStatus(c.status, c.state.String(), c.spaceOpen, c.calibration))
}

// takeAction runs one pending action, local ones first.
func (c *Controller) takeAction(ctx context.Context) error {
	var name string
	select {
	case a := <-c.actions:
		name = string(a)
	default:
		if c.deps.Gateway != nil {
			name = c.deps.Gateway.TakeAction()
		}
	}
	if name == "" {
		return nil
	}

	logrus.WithField("action", name).Info("starting action")
	a, err := types.ParseAction(name)
	if err != nil {
		logrus.WithError(err).Warn("ignoring action")
		c.deps.Notifier.Send(fmt.Sprintf(":question: Unknown action '%s'", name))
		return nil
	}

	switch a {
	case types.ActionLock:
		if !c.status.Lockable() {
			c.deps.Notifier.Send(":stop: Door is open, cannot lock")
			return nil
		}
		c.closeSpace()
		c.clearDeadline()
		c.setState(StateLocking)
	case types.ActionUnlock:
		c.closeSpace()
		c.deps.Notifier.Send(":unlock: Door is unlocked")
		c.setStateFor(StateTimedUnlocking, c.opts.Timing.GatewayUnlockPeriod)
	case types.ActionCalibrate:
		if err := c.calibrate(ctx); err != nil {
			return err
		}
		c.closeSpace()
		c.clearDeadline()
		c.setState(StateInitial)
	}
	return nil
}

func (c *Controller) updateClock(now time.Time) {
	hhmm := now.In(c.opts.Location).Format("15:04")
	if hhmm == c.lastClock {
		return
	}
	if err := c.deps.Panel.SetClock(hhmm); err != nil {
		if c.display.err == nil {
			c.display.err = err
		}
		return
	}
	c.lastClock = hhmm
}

func (c *Controller) setState(s State) {
	if s == c.state {
		return
	}
	from := c.state
	c.state = s
	c.leaveUnlockSent = false
	c.relockCalibrated = false

	fields := logrus.Fields{"from": from, "to": s}
	var deadline int64
	if !c.deadline.IsZero() {
		fields["deadline"] = c.deadline.Format(time.TimeOnly)
		deadline = c.deadline.Unix()
	}
	logrus.WithFields(fields).Info("state changed")

	if c.deps.Events != nil {
		c.deps.Events.Publish(events.StateChanged, events.StateChangedEvent{
			From:     from.String(),
			To:       s.String(),
			Deadline: deadline,
			Ts:       c.now().Unix(),
		})
	}
}

// setStateFor moves to s with a fresh deadline d from now.
func (c *Controller) setStateFor(s State, d time.Duration) {
	c.deadline = c.now().Add(d)
	c.setState(s)
}

func (c *Controller) clearDeadline() {
	c.deadline = time.Time{}
}

func (c *Controller) expired() bool {
	return !c.deadline.IsZero() && !c.now().Before(c.deadline)
}

func (c *Controller) publishSnapshot() {
	s := Snapshot{
		State:       c.state,
		Status:      c.status,
		StatusValid: c.statusValid,
		Calibration: c.calibration,
		SpaceOpen:   c.spaceOpen,
		Display:     c.display.shown(),
		UpdatedAt:   c.now(),
	}
	if !c.deadline.IsZero() {
		d := c.deadline
		s.Deadline = &d
	}
	if c.fault != nil {
		s.Fault = c.fault.reason
	}

	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}
