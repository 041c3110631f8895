package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"LinkFM/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func track(id string) *model.Track {
	return &model.Track{Encoded: id, LastPosition: 42}
}

func TestHistoryEvictsOldest(t *testing.T) {
	const n = 5
	h := NewHistory(n)

	for i := 0; i <= n; i++ {
		h.Put(track(fmt.Sprintf("t%d", i)))
	}

	assert.Equal(t, n, h.Size())
	assert.False(t, h.Contains("t0"), "least-recently inserted entry should be evicted")
	assert.True(t, h.Contains("t5"))
}

func TestHistoryNewestFirst(t *testing.T) {
	h := NewHistory(10)

	h.Put(track("old"))
	h.Put(track("new"))

	handles := h.RawHandles()
	assert.Equal(t, []string{"new", "old"}, handles)

	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", got.Encoded)
}

func TestHistoryResetsPosition(t *testing.T) {
	h := NewHistory(10)

	tr := track("a")
	require.Equal(t, int64(42), tr.LastPosition)
	h.Put(tr)

	got, err := h.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.LastPosition)
}

func TestHistoryGetBlocksUntilPut(t *testing.T) {
	h := NewHistory(10)

	got := make(chan *model.Track, 1)
	go func() {
		tr, err := h.Get(context.Background())
		if err == nil {
			got <- tr
		}
	}()

	select {
	case <-got:
		t.Fatal("get returned on empty history")
	case <-time.After(50 * time.Millisecond):
	}

	h.Put(track("a"))

	select {
	case tr := <-got:
		assert.Equal(t, "a", tr.Encoded)
	case <-time.After(time.Second):
		t.Fatal("get never woke up")
	}
}

func TestHistoryClearWakesWaiters(t *testing.T) {
	h := NewHistory(10)

	errCh := make(chan error, 1)
	go func() {
		_, err := h.Get(context.Background())
		errCh <- err
	}()
	time.Sleep(50 * time.Millisecond)

	h.Clear()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCleared)
	case <-time.After(time.Second):
		t.Fatal("waiter hung through clear")
	}
}

func TestHistoryRandom(t *testing.T) {
	h := NewHistory(10)
	assert.Nil(t, h.Random())

	h.Put(track("a"), track("b"))
	got := h.Random()
	require.NotNil(t, got)
	assert.Contains(t, []string{"a", "b"}, got.Encoded)
	assert.Equal(t, 2, h.Size(), "random must not remove")
}
