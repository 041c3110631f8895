package queue

import (
	"context"
	"math/rand"
	"sync"

	"LinkFM/model"
)

// History is the fixed-capacity track history ring. New entries go in at the
// head so iteration order is most-recent-first; overflow evicts from the tail
// (the oldest entries). Put never blocks. Get pops the head, which is what a
// "previous track" lookup wants, and suspends while empty.
type History struct {
	mu      sync.Mutex
	items   []*model.Track
	maxSize int
	mirror  map[string]int
	getters []*getWaiter[*model.Track]
}

// NewHistory creates a history ring with the given capacity.
func NewHistory(maxSize int) *History {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &History{
		maxSize: maxSize,
		mirror:  make(map[string]int),
	}
}

// Size returns the number of stored tracks.
func (h *History) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.items)
}

// Empty reports whether the history holds nothing.
func (h *History) Empty() bool {
	return h.Size() == 0
}

// Contains reports membership by encoded handle.
func (h *History) Contains(handle string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mirror[handle] > 0
}

// Raw returns a copy of the contents, most recent first.
func (h *History) Raw() []*model.Track {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*model.Track, len(h.items))
	copy(out, h.items)
	return out
}

// RawHandles returns the encoded handles, most recent first.
func (h *History) RawHandles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.items))
	for i, t := range h.items {
		out[i] = t.Encoded
	}
	return out
}

// Put records tracks as the most recent entries. Oldest entries are evicted
// once capacity is exceeded. History entries never resume mid-track, so each
// stored track's position is reset to zero.
func (h *History) Put(tracks ...*model.Track) {
	if len(tracks) == 0 {
		return
	}
	h.mu.Lock()
	for _, t := range tracks {
		t.LastPosition = 0
		h.items = append([]*model.Track{t}, h.items...)
		h.mirror[t.Encoded]++
	}
	for len(h.items) > h.maxSize {
		last := h.items[len(h.items)-1]
		h.items = h.items[:len(h.items)-1]
		if h.mirror[last.Encoded] <= 1 {
			delete(h.mirror, last.Encoded)
		} else {
			h.mirror[last.Encoded]--
		}
	}
	for len(h.getters) > 0 && len(h.items) > 0 {
		w := h.getters[0]
		h.getters = h.getters[1:]
		w.ch <- getResult[*model.Track]{item: h.popLocked()}
	}
	h.mu.Unlock()
}

func (h *History) popLocked() *model.Track {
	item := h.items[0]
	h.items = h.items[1:]
	if h.mirror[item.Encoded] <= 1 {
		delete(h.mirror, item.Encoded)
	} else {
		h.mirror[item.Encoded]--
	}
	return item
}

// Get removes and returns the most recent entry, suspending while empty.
func (h *History) Get(ctx context.Context) (*model.Track, error) {
	h.mu.Lock()
	if len(h.getters) == 0 && len(h.items) > 0 {
		item := h.popLocked()
		h.mu.Unlock()
		return item, nil
	}

	w := &getWaiter[*model.Track]{ch: make(chan getResult[*model.Track], 1)}
	h.getters = append(h.getters, w)
	h.mu.Unlock()

	select {
	case <-ctx.Done():
		h.mu.Lock()
		dropGetter(&h.getters, w)
		h.mu.Unlock()
		select {
		case res := <-w.ch:
			return res.item, res.err
		default:
			return nil, ctx.Err()
		}
	case res := <-w.ch:
		return res.item, res.err
	}
}

// GetAt removes and returns the entry at the given position (0 is the most
// recent).
func (h *History) GetAt(index int) (*model.Track, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if index < 0 || index >= len(h.items) {
		return nil, ErrNotFound
	}
	item := h.items[index]
	h.items = append(h.items[:index], h.items[index+1:]...)
	if h.mirror[item.Encoded] <= 1 {
		delete(h.mirror, item.Encoded)
	} else {
		h.mirror[item.Encoded]--
	}
	return item, nil
}

// Random returns (without removing) a uniformly random entry, or nil when
// empty. Used by autoplay to avoid repeats.
func (h *History) Random() *model.Track {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.items) == 0 {
		return nil
	}
	return h.items[rand.Intn(len(h.items))]
}

// Clear empties the history and wakes blocked waiters with ErrCleared.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = nil
	h.mirror = make(map[string]int)
	for _, w := range h.getters {
		w.ch <- getResult[*model.Track]{err: ErrCleared}
	}
	h.getters = nil
}
