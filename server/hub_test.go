package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubBroadcastDropsForSlowSubscribers(t *testing.T) {
	h := newHub[int]()
	fast := h.Subscribe(4)
	slow := h.Subscribe(1)

	for i := 1; i <= 3; i++ {
		h.Broadcast(i)
	}
	assert.Len(t, fast.ch, 3)
	assert.Len(t, slow.ch, 1)
	assert.Equal(t, 1, <-slow.ch)

	h.Unsubscribe(slow)
	h.Unsubscribe(slow)
	assert.Equal(t, 1, h.Len())
}

func TestHubCloseEndsSubscriptions(t *testing.T) {
	h := newHub[string]()
	sub := h.Subscribe(1)
	h.Close()

	_, ok := <-sub.ch
	assert.False(t, ok)
	assert.Zero(t, h.Len())

	late := h.Subscribe(1)
	_, ok = <-late.ch
	assert.False(t, ok)
	h.Unsubscribe(sub)
}
