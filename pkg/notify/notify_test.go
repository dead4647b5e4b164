package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Sink) []message {
	var out []message
	for {
		select {
		case m := <-s.queue:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestSetStatusDeduplicates(t *testing.T) {
	s := New(Options{})
	s.SetStatus("Locked")
	s.SetStatus("Locked")
	s.SetStatus("Unlocked")
	s.Send("Unlocked")

	assert.Equal(t, []message{
		{channel: "monitoring", text: "Locked"},
		{channel: "monitoring", text: "Unlocked"},
		{channel: "monitoring", text: "Unlocked"},
	}, drain(s))
}

func TestAnnouncementsGoToGeneral(t *testing.T) {
	s := New(Options{})
	s.AnnounceOpen()
	got := drain(s)
	require.Len(t, got, 2)
	assert.Equal(t, "monitoring", got[0].channel)
	assert.Equal(t, "general", got[1].channel)
}

func TestTestModeUsesTestingOnly(t *testing.T) {
	s := New(Options{TestMode: true})
	s.AnnounceClosed()
	s.Send("hello")
	assert.Equal(t, []message{
		{channel: "testing", text: ":sad_panda2: The space is no longer open"},
		{channel: "testing", text: "hello"},
	}, drain(s))
}

func TestRunPostsToSlack(t *testing.T) {
	var mu sync.Mutex
	var got []postMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat.postMessage", r.URL.Path)
		assert.Equal(t, "Bearer xoxb-test", r.Header.Get("Authorization"))
		var m postMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&m))
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := New(Options{BaseURL: srv.URL, Token: "xoxb-test", Active: true, Every: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.AnnounceOpen()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "monitoring", got[0].Channel)
	assert.Equal(t, "general", got[1].Channel)
	assert.Equal(t, ":tada: The space is now open!", got[0].Text)
}

func TestPostReportsSlackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	s := New(Options{BaseURL: srv.URL, Token: "t", Active: true})
	err := s.post(context.Background(), message{channel: "x", text: "y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel_not_found")
}
