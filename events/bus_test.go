package events

import (
	"sync"
	"testing"
	"time"

	"LinkFM/model"

	"github.com/stretchr/testify/assert"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestDispatchReachesAllSubscribers(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	var got []model.EventType

	b.Subscribe(func(e model.Event) {
		mu.Lock()
		got = append(got, e.EventType())
		mu.Unlock()
	})

	b.Dispatch(model.QueueEndEvent{GuildID: 1})
	b.Dispatch(model.TrackStartEvent{GuildID: 1})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.EventType{model.EventQueueEnd, model.EventTrackStart}, got,
		"delivery order must match dispatch order")
}

func TestTypedSubscription(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	var starts, ends int

	b.SubscribeType(model.EventTrackStart, func(e model.Event) {
		mu.Lock()
		starts++
		mu.Unlock()
	})
	b.SubscribeType(model.EventTrackEnd, func(e model.Event) {
		mu.Lock()
		ends++
		mu.Unlock()
	})

	b.Dispatch(model.TrackStartEvent{GuildID: 7})
	b.Dispatch(model.TrackStartEvent{GuildID: 7})
	b.Dispatch(model.TrackEndEvent{GuildID: 7})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return starts == 2 && ends == 1
	})
}

func TestUnsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var mu sync.Mutex
	count := 0

	cancel := b.Subscribe(func(e model.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	b.Dispatch(model.QueueEndEvent{GuildID: 1})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	})

	cancel()
	b.Dispatch(model.QueueEndEvent{GuildID: 1})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
