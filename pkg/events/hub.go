// Package events fans controller events out to local API subscribers.
package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

type subscriber struct {
	// names limits delivery to these events. Empty means all.
	names   map[string]bool
	dropped int
}

func (s *subscriber) wants(name string) bool {
	return len(s.names) == 0 || s.names[name]
}

// EventHub is a broadcast point. Slow subscribers miss events rather
// than stalling the publisher.
type EventHub struct {
	mu   sync.Mutex
	subs map[chan Event]*subscriber
}

func NewEventHub() *EventHub {
	return &EventHub{subs: make(map[chan Event]*subscriber)}
}

// Subscribe registers a subscriber for the named events, or for every
// event when no name is given.
func (h *EventHub) Subscribe(names ...string) chan Event {
	s := &subscriber{}
	if len(names) > 0 {
		s.names = make(map[string]bool, len(names))
		for _, n := range names {
			s.names[n] = true
		}
	}

	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = s
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch and closes it.
func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.subs[ch]
	if !ok {
		return
	}
	if s.dropped > 0 {
		logrus.WithField("dropped", s.dropped).Debug("event subscriber missed events")
	}
	delete(h.subs, ch)
	close(ch)
}

// Subscribers returns the number of subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish sends payload, JSON encoded, to every interested subscriber.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Warn("failed to encode event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, s := range h.subs {
		if !s.wants(name) {
			continue
		}
		select {
		case ch <- msg:
		default:
			if s.dropped == 0 {
				logrus.WithField("event", name).Warn("event subscriber is too slow, dropping events")
			}
			s.dropped++
		}
	}
}
