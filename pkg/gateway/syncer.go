package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSyncSpec is how often the status is pushed when nothing changes.
const DefaultSyncSpec = "@every 15s"

// maxPendingActions bounds the actions pulled but not yet taken.
const maxPendingActions = 4

// Syncer decouples the controller from gateway latency. The controller
// hands it the latest status and collects pending actions in order;
// network traffic happens on the Syncer's own goroutine. The Syncer does
// not own the transport; its creator closes it.
type Syncer struct {
	transport Transport
	spec      string

	// syncMu serialises scheduled and change-triggered syncs.
	syncMu sync.Mutex

	mu         sync.Mutex
	status     *Status
	lastPushed *Status
	actions    []string

	changed chan struct{}
}

// NewSyncer returns a Syncer over t. spec is a cron spec for periodic
// pushes; empty means DefaultSyncSpec.
func NewSyncer(t Transport, spec string) *Syncer {
	if spec == "" {
		spec = DefaultSyncSpec
	}
	return &Syncer{
		transport: t,
		spec:      spec,
		changed:   make(chan struct{}, 1),
	}
}

// SetStatus records the latest status. A status different from the last
// pushed one is pushed without waiting for the schedule.
func (s *Syncer) SetStatus(st Status) {
	s.mu.Lock()
	s.status = &st
	changed := s.lastPushed == nil || !s.lastPushed.Equal(st)
	s.mu.Unlock()

	if changed {
		select {
		case s.changed <- struct{}{}:
		default:
		}
	}
}

// TakeAction returns the oldest pending action, or "" when there is none.
func (s *Syncer) TakeAction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions) == 0 {
		return ""
	}
	a := s.actions[0]
	s.actions = s.actions[1:]
	return a
}

// Run syncs until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() { s.Sync(ctx) }); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.changed:
			s.Sync(ctx)
		}
	}
}

// Sync pushes the current status and pulls a pending action once.
func (s *Syncer) Sync(ctx context.Context) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	if st != nil {
		if err := s.transport.PushStatus(ctx, *st); err != nil {
			logrus.WithError(err).Warn("failed to push status to gateway")
		} else {
			s.mu.Lock()
			s.lastPushed = st
			s.mu.Unlock()
			logrus.Trace("gateway status pushed")
		}
	}

	action, err := s.transport.PullAction(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to query gateway for actions")
		return
	}
	if action == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.actions) >= maxPendingActions {
		logrus.WithField("action", action).Warn("too many pending gateway actions, dropping")
		return
	}
	s.actions = append(s.actions, action)
}
