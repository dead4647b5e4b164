// Package notify posts door status messages to chat channels.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Slack Web API root.
	DefaultBaseURL = "https://slack.com/api"

	queueSize = 64
)

// Channels names the destinations for messages.
type Channels struct {
	// Monitoring receives every status message.
	Monitoring string
	// General additionally receives open/close announcements.
	General string
	// Testing replaces both in test mode.
	Testing string
}

// Options configures a Sink.
type Options struct {
	BaseURL  string
	Token    string
	Channels Channels
	// TestMode routes everything to the testing channel only.
	TestMode bool
	// Active disables network delivery when false; messages are only logged.
	Active bool
	// Burst and Every bound how fast messages are posted.
	Burst int
	Every time.Duration
}

type message struct {
	channel string
	text    string
}

// Sink delivers messages asynchronously. Calls never block the caller;
// messages beyond the queue capacity are dropped with a warning.
type Sink struct {
	opts       Options
	limiter    *rate.Limiter
	httpClient *http.Client
	queue      chan message

	mu         sync.Mutex
	lastStatus string
}

// New returns a Sink. Run must be started for messages to be delivered.
func New(opts Options) *Sink {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Channels.Monitoring == "" {
		opts.Channels.Monitoring = "monitoring"
	}
	if opts.Channels.General == "" {
		opts.Channels.General = "general"
	}
	if opts.Channels.Testing == "" {
		opts.Channels.Testing = "testing"
	}
	if opts.Burst <= 0 {
		opts.Burst = 3
	}
	if opts.Every <= 0 {
		opts.Every = time.Second
	}
	return &Sink{
		opts:       opts,
		limiter:    rate.NewLimiter(rate.Every(opts.Every), opts.Burst),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		queue:      make(chan message, queueSize),
	}
}

// SetStatus sends status unless it equals the previous status message.
func (s *Sink) SetStatus(status string) {
	s.setStatus(status, false)
}

// Send sends msg unconditionally. It becomes the new status for de-duplication.
func (s *Sink) Send(msg string) {
	s.send(msg, false)
}

// AnnounceOpen tells everyone the space is open.
func (s *Sink) AnnounceOpen() {
	s.setStatus(":tada: The space is now open!", true)
}

// AnnounceClosed tells everyone the space is no longer open.
func (s *Sink) AnnounceClosed() {
	s.setStatus(":sad_panda2: The space is no longer open", true)
}

func (s *Sink) setStatus(status string, includeGeneral bool) {
	s.mu.Lock()
	same := status == s.lastStatus
	s.mu.Unlock()
	if same {
		return
	}
	s.send(status, includeGeneral)
}

func (s *Sink) send(msg string, includeGeneral bool) {
	s.mu.Lock()
	s.lastStatus = msg
	s.mu.Unlock()

	if s.opts.TestMode {
		s.enqueue(s.opts.Channels.Testing, msg)
		return
	}
	s.enqueue(s.opts.Channels.Monitoring, msg)
	if includeGeneral {
		s.enqueue(s.opts.Channels.General, msg)
	}
}

func (s *Sink) enqueue(channel, text string) {
	select {
	case s.queue <- message{channel: channel, text: text}:
	default:
		logrus.WithFields(logrus.Fields{
			"channel": channel,
			"text":    text,
		}).Warn("notification queue full, dropping message")
	}
}

// Run delivers queued messages until ctx is cancelled.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-s.queue:
			if err := s.limiter.Wait(ctx); err != nil {
				return
			}
			if err := s.post(ctx, m); err != nil {
				logrus.WithError(err).WithField("channel", m.channel).Warn("failed to post notification")
			}
		}
	}
}

type postMessage struct {
	Channel   string `json:"channel"`
	IconEmoji string `json:"icon_emoji"`
	Parse     string `json:"parse"`
	Text      string `json:"text"`
}

type postReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Sink) post(ctx context.Context, m message) error {
	logrus.WithField("channel", m.channel).Info(m.text)
	if !s.opts.Active || s.opts.Token == "" {
		return nil
	}

	data, err := json.Marshal(postMessage{
		Channel:   m.channel,
		IconEmoji: ":panopticon:",
		Parse:     "full",
		Text:      m.text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/chat.postMessage", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logrus.Errorf("failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("got %d: %s", resp.StatusCode, body)
	}
	var reply postReply
	if err := json.Unmarshal(body, &reply); err == nil && !reply.OK {
		return fmt.Errorf("slack error: %s", reply.Error)
	}
	return nil
}
