package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/makerspace/doorctl/pkg/authority"
	"github.com/makerspace/doorctl/pkg/gateway"
	"github.com/makerspace/doorctl/pkg/serialport/serialporttest"
	"github.com/makerspace/doorctl/pkg/simulator"
)

// Monday noon.
var monday = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type fakeAuthority struct {
	perms    map[string]*authority.Permission
	err      error
	checked  []string
	reported []string
}

func (a *fakeAuthority) CheckPermission(_ context.Context, cardID string) (*authority.Permission, error) {
	a.checked = append(a.checked, cardID)
	if a.err != nil {
		return nil, a.err
	}
	p, ok := a.perms[cardID]
	if !ok {
		return nil, authority.ErrUnknownCard
	}
	return p, nil
}

func (a *fakeAuthority) ReportUnknownCard(_ context.Context, cardID string) error {
	a.reported = append(a.reported, cardID)
	return nil
}

type auditEntry struct {
	userID  *int
	message string
}

type fakeAudit struct {
	entries []auditEntry
}

func (a *fakeAudit) Enqueue(userID *int, message string) {
	a.entries = append(a.entries, auditEntry{userID: userID, message: message})
}

func (a *fakeAudit) messages() []string {
	var out []string
	for _, e := range a.entries {
		out = append(out, e.message)
	}
	return out
}

type fakeNotifier struct {
	msgs []string
}

func (n *fakeNotifier) SetStatus(s string) { n.msgs = append(n.msgs, s) }
func (n *fakeNotifier) Send(s string)      { n.msgs = append(n.msgs, s) }
func (n *fakeNotifier) AnnounceOpen()      { n.msgs = append(n.msgs, "announce open") }
func (n *fakeNotifier) AnnounceClosed()    { n.msgs = append(n.msgs, "announce closed") }

func (n *fakeNotifier) has(substr string) bool {
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func (n *fakeNotifier) count(substr string) int {
	c := 0
	for _, m := range n.msgs {
		if strings.Contains(m, substr) {
			c++
		}
	}
	return c
}

type fakeGateway struct {
	statuses []gateway.Status
	actions  []string
}

func (g *fakeGateway) SetStatus(s gateway.Status) { g.statuses = append(g.statuses, s) }

func (g *fakeGateway) TakeAction() string {
	if len(g.actions) == 0 {
		return ""
	}
	a := g.actions[0]
	g.actions = g.actions[1:]
	return a
}

type fakeEvents struct {
	mu    sync.Mutex
	names []string
}

func (e *fakeEvents) Publish(name string, _ any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.names = append(e.names, name)
}

type harness struct {
	t      *testing.T
	c      *Controller
	dev    *simulator.Fixture
	auth   *fakeAuthority
	audit  *fakeAudit
	notes  *fakeNotifier
	gw     *fakeGateway
	events *fakeEvents
	clock  *serialporttest.Clock
	sleeps []time.Duration
}

func newHarness(t *testing.T, dev *simulator.Fixture, start time.Time, mode FaultMode) *harness {
	t.Helper()
	h := &harness{
		t:   t,
		dev: dev,
		auth: &fakeAuthority{perms: map[string]*authority.Permission{
			"0000000042": {Allowed: true, Name: "Ada", UserID: 42},
			"0000000007": {Allowed: false, Name: "Bob", UserID: 7},
		}},
		audit:  &fakeAudit{},
		notes:  &fakeNotifier{},
		gw:     &fakeGateway{},
		events: &fakeEvents{},
		clock:  serialporttest.NewClock(start),
	}
	opts := DefaultOptions()
	opts.Location = time.UTC
	opts.FaultMode = mode
	h.c = New(opts, Deps{
		Lock:      dev,
		Panel:     dev,
		Reader:    dev,
		Swipes:    dev.Swipes(),
		Authority: h.auth,
		Audit:     h.audit,
		Notifier:  h.notes,
		Gateway:   h.gw,
		Events:    h.events,
	})
	h.c.now = h.clock.Now
	h.c.sleep = func(d time.Duration) { h.sleeps = append(h.sleeps, d) }
	return h
}

// newLockedHarness returns a controller that has settled in Locked.
func newLockedHarness(t *testing.T, start time.Time) *harness {
	t.Helper()
	h := newHarness(t, simulator.NewCalibrated(), start, FaultExit)
	h.tick()
	h.tick()
	h.tick()
	require.Equal(t, StateLocked, h.c.state)
	return h
}

func (h *harness) tick() {
	h.t.Helper()
	require.NoError(h.t, h.c.Tick(context.Background()))
}

func (h *harness) advance(d time.Duration) {
	h.clock.Advance(d)
}

// lockCommands returns the actuator commands, without configuration.
func (h *harness) lockCommands() []string {
	var out []string
	for _, c := range h.dev.Commands() {
		if !strings.HasPrefix(c, "set_verbosity") {
			out = append(out, c)
		}
	}
	return out
}
