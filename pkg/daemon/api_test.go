package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerspace/doorctl/pkg/config"
	"github.com/makerspace/doorctl/pkg/controller"
	"github.com/makerspace/doorctl/pkg/events"
	"github.com/makerspace/doorctl/pkg/types"
	"github.com/makerspace/doorctl/pkg/utils/ptr"
	"github.com/makerspace/doorctl/pkg/version"
)

type fakeController struct {
	mu      sync.Mutex
	snap    controller.Snapshot
	actions []types.Action
	err     error
}

func (f *fakeController) Snapshot() controller.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) Submit(a types.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.actions = append(f.actions, a)
	return nil
}

func newTestServer(ctrl *fakeController) (*server, *events.EventHub) {
	hub := events.NewEventHub()
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		AuthorityToken: ptr.To("secret"),
		SlackToken:     ptr.To("xoxb-secret"),
		OpenHour:       ptr.To(16),
	}, "")
	return newServer(ctrl, conf, hub), hub
}

func TestGetStatus(t *testing.T) {
	ctrl := &fakeController{snap: controller.Snapshot{
		State:     controller.StateLocked,
		SpaceOpen: true,
		Display:   []string{"Locked"},
	}}
	s, _ := newTestServer(ctrl)

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		State     string   `json:"state"`
		SpaceOpen bool     `json:"spaceOpen"`
		Display   []string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, controller.StateLocked.String(), got.State)
	assert.True(t, got.SpaceOpen)
	assert.Equal(t, []string{"Locked"}, got.Display)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestPostAction(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{name: "unlock", body: `{"action":"unlock"}`, code: http.StatusAccepted},
		{name: "unknown", body: `{"action":"open-sesame"}`, code: http.StatusBadRequest},
		{name: "garbage", body: `not json`, code: http.StatusBadRequest},
		{name: "busy", body: `{"action":"lock"}`, err: controller.ErrBusy, code: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{err: tt.err}
			s, _ := newTestServer(ctrl)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			s.routes().ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	ctrl := &fakeController{}
	s, _ := newTestServer(ctrl)
	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/action", strings.NewReader(`{"action":"calibrate"}`)))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []types.Action{types.ActionCalibrate}, ctrl.actions)
}

func TestGetConfigHidesSecrets(t *testing.T) {
	s, _ := newTestServer(&fakeController{})

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.NotContains(t, body, "secret")
	assert.Contains(t, body, `"openHour": 16`)
}

func TestGetVersion(t *testing.T) {
	s, _ := newTestServer(&fakeController{})

	w := httptest.NewRecorder()
	s.routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var v string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, version.Version, v)
}

func TestEventsStream(t *testing.T) {
	s, hub := newTestServer(&fakeController{})
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(events.StateChanged, events.StateChangedEvent{From: "Locked", To: "Unlocking", Ts: 1})

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "event:"+events.StateChanged, lines[0])
	assert.Contains(t, lines[1], `"to":"Unlocking"`)
}

func TestControllerOptions(t *testing.T) {
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		Timezone:    ptr.To("UTC"),
		OpenWeekday: ptr.To("friday"),
		EnterTime:   ptr.To(config.Duration(45 * time.Second)),
		FaultMode:   ptr.To("wait"),
	}, "")

	opts, err := controllerOptions(conf)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, opts.Location)
	assert.Equal(t, time.Friday, opts.OpenWeekday)
	assert.Equal(t, 15, opts.OpenHour)
	assert.Equal(t, controller.FaultWait, opts.FaultMode)
	assert.Equal(t, 45*time.Second, opts.Timing.EnterTime)
	assert.Equal(t, 5*time.Second, opts.Timing.LeaveTime)
	assert.Equal(t, 10, opts.Timing.AlarmRepetitions)
}

func TestNewTransport(t *testing.T) {
	none := config.NewFileFromConfig(&config.RawFileConfig{GatewayTransport: ptr.To(config.GatewayNone)}, "")
	tr, err := newTransport(none)
	require.NoError(t, err)
	assert.Nil(t, tr)

	httpConf := config.NewFileFromConfig(&config.RawFileConfig{
		GatewayTransport: ptr.To(config.GatewayHTTP),
		GatewayToken:     ptr.To("gw"),
	}, "")
	tr, err = newTransport(httpConf)
	require.NoError(t, err)
	assert.NotNil(t, tr)
}
