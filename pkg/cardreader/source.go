package cardreader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/makerspace/doorctl/pkg/types"
)

const (
	// DefaultPollInterval is how often the reader is asked for a card.
	DefaultPollInterval = time.Second
	// RepeatSuppression ignores the same card presented again within this window.
	RepeatSuppression = 5 * time.Second

	inboxSize = 4
)

// CardPoller is the part of the reader the Source polls.
type CardPoller interface {
	ReadCard() (string, error)
}

// Source polls the reader on its own goroutine and queues swipe events
// for the controller.
type Source struct {
	poller   CardPoller
	interval time.Duration
	swipes   chan types.SwipeEvent

	lastCard   string
	lastSeenAt time.Time

	now func() time.Time
}

// NewSource returns a Source polling p every interval.
func NewSource(p CardPoller, interval time.Duration) *Source {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Source{
		poller:   p,
		interval: interval,
		swipes:   make(chan types.SwipeEvent, inboxSize),
		now:      time.Now,
	}
}

// Swipes is the controller's inbox.
func (s *Source) Swipes() <-chan types.SwipeEvent {
	return s.swipes
}

// Run polls until ctx is cancelled.
func (s *Source) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logrus.Debug("card reader poller started")
	for {
		select {
		case <-ctx.Done():
			logrus.Debug("card reader poller stopped")
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Source) poll() {
	id, err := s.poller.ReadCard()
	if err != nil {
		logrus.WithError(err).Warn("failed to poll card reader")
		return
	}
	if id == "" {
		return
	}

	now := s.now()
	if id == s.lastCard && now.Sub(s.lastSeenAt) <= RepeatSuppression {
		return
	}
	s.lastCard = id
	s.lastSeenAt = now

	logrus.WithField("card", id).Info("card swiped")
	select {
	case s.swipes <- types.SwipeEvent{CardID: id}:
	default:
		logrus.WithField("card", id).Warn("swipe inbox full, dropping card")
	}
}
