package authority

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultQueueSize is the number of audit entries buffered before new
	// ones are dropped.
	DefaultQueueSize = 256

	defaultAttempts = 3
	defaultBackoff  = 2 * time.Second
)

// LogEntry is one audit record.
type LogEntry struct {
	ID      string
	UserID  *int
	Message string
	Time    time.Time
}

// LogPoster delivers audit entries. *Client implements it.
type LogPoster interface {
	PostLog(ctx context.Context, e LogEntry) error
}

// Forwarder ships audit entries to the authority on its own goroutine.
// Enqueue never blocks the caller; delivery is best effort.
type Forwarder struct {
	poster   LogPoster
	entries  chan LogEntry
	attempts int
	backoff  time.Duration
}

// NewForwarder returns a Forwarder with a queue of size entries.
func NewForwarder(poster LogPoster, size int) *Forwarder {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Forwarder{
		poster:   poster,
		entries:  make(chan LogEntry, size),
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// Enqueue queues a message. userID is nil when no member is associated.
// If the queue is full the entry is dropped with a warning.
func (f *Forwarder) Enqueue(userID *int, message string) {
	e := LogEntry{
		ID:      uuid.NewString(),
		UserID:  userID,
		Message: message,
		Time:    time.Now(),
	}
	select {
	case f.entries <- e:
	default:
		logrus.WithFields(logrus.Fields{
			"id":      e.ID,
			"message": message,
		}).Warn("audit log queue full, dropping entry")
	}
}

// Run delivers entries until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	logrus.Debug("audit log forwarder started")
	for {
		select {
		case <-ctx.Done():
			logrus.WithField("pending", len(f.entries)).Debug("audit log forwarder stopped")
			return
		case e := <-f.entries:
			f.deliver(ctx, e)
		}
	}
}

func (f *Forwarder) deliver(ctx context.Context, e LogEntry) {
	logger := logrus.WithFields(logrus.Fields{
		"id":      e.ID,
		"message": e.Message,
	})
	for attempt := 1; attempt <= f.attempts; attempt++ {
		err := f.poster.PostLog(ctx, e)
		if err == nil {
			logger.Debug("audit entry delivered")
			return
		}
		logger.WithError(err).WithField("attempt", attempt).Warn("failed to deliver audit entry")
		if attempt == f.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff):
		}
	}
	logger.Error("giving up on audit entry")
}
