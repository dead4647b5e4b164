package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAndDecode(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(StateChanged, StateChangedEvent{From: "Locked", To: "Unlocking", Ts: 1})

	ev := <-ch
	assert.Equal(t, StateChanged, ev.Name)
	got, err := DecodeAs[StateChangedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, "Unlocking", got.To)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	for i := 0; i < subscriberBuffer+5; i++ {
		h.Publish(FaultRaised, FaultRaisedEvent{Reason: "x"})
	}
	assert.Len(t, ch, subscriberBuffer)
	h.Unsubscribe(ch)
	assert.Equal(t, 0, h.Subscribers())
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}

func TestSubscribeByName(t *testing.T) {
	h := NewEventHub()
	cards := h.Subscribe(CardSwiped)
	all := h.Subscribe()
	defer h.Unsubscribe(cards)
	defer h.Unsubscribe(all)

	h.Publish(StateChanged, StateChangedEvent{To: "Locked"})
	h.Publish(CardSwiped, CardSwipedEvent{CardID: "0000000042", Outcome: "granted"})

	assert.Len(t, all, 2)
	require.Len(t, cards, 1)
	ev := <-cards
	assert.Equal(t, CardSwiped, ev.Name)
}

func TestNilHubPublish(t *testing.T) {
	var h *EventHub
	assert.NotPanics(t, func() { h.Publish(StateChanged, nil) })
}
