// Package queue provides the concurrent FIFO queue and bounded history ring
// backing player sessions. Both keep an encoded-handle mirror in lockstep
// with the item sequence so membership checks never scan.
package queue

import (
	"context"
	"errors"
	"math/rand"
	"sync"
)

var (
	// ErrNotFound is returned by Remove when the value is not present.
	ErrNotFound = errors.New("value not in queue")

	// ErrCleared wakes blocked waiters when the queue is cleared out from
	// under them.
	ErrCleared = errors.New("queue cleared")
)

// Entry is anything the queue can hold. The handle feeds the membership
// mirror.
type Entry interface {
	EncodedHandle() string
}

type getResult[T any] struct {
	item T
	err  error
}

type getWaiter[T any] struct {
	ch chan getResult[T]
}

type putWaiter[T any] struct {
	items []T
	index int
	ch    chan error
}

// Queue is a FIFO sequence with cooperative blocking semantics: Get suspends
// while empty, Put suspends while full (unless discarding), and blocked
// callers resume in strict FIFO order. Wakeups are direct handoffs performed
// by whichever call made progress, so a late caller can never barge past a
// suspended one. A zero maxSize means unbounded.
type Queue[T Entry] struct {
	mu      sync.Mutex
	items   []T
	maxSize int
	mirror  map[string]int
	getters []*getWaiter[T]
	putters []*putWaiter[T]
}

// New creates a queue. maxSize 0 means unbounded.
func New[T Entry](maxSize int) *Queue[T] {
	return &Queue[T]{
		maxSize: maxSize,
		mirror:  make(map[string]int),
	}
}

// Size returns the number of queued items.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds nothing.
func (q *Queue[T]) Empty() bool {
	return q.Size() == 0
}

// Contains reports membership by encoded handle without scanning.
func (q *Queue[T]) Contains(handle string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mirror[handle] > 0
}

// Raw returns a copy of the current contents, head first.
func (q *Queue[T]) Raw() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// RawHandles returns the encoded handles of the current contents, head first.
func (q *Queue[T]) RawHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	for i, it := range q.items {
		out[i] = it.EncodedHandle()
	}
	return out
}

func (q *Queue[T]) addMirror(items ...T) {
	for _, it := range items {
		q.mirror[it.EncodedHandle()]++
	}
}

func (q *Queue[T]) dropMirror(it T) {
	h := it.EncodedHandle()
	if q.mirror[h] <= 1 {
		delete(q.mirror, h)
	} else {
		q.mirror[h]--
	}
}

func (q *Queue[T]) hasSpace(count int) bool {
	return q.maxSize <= 0 || len(q.items)+count <= q.maxSize
}

func (q *Queue[T]) insertLocked(index int, items ...T) {
	if index < 0 || index >= len(q.items) {
		q.items = append(q.items, items...)
	} else {
		q.items = append(q.items[:index], append(append([]T{}, items...), q.items[index:]...)...)
	}
	q.addMirror(items...)
}

func (q *Queue[T]) popLocked() T {
	item := q.items[0]
	q.items = q.items[1:]
	q.dropMirror(item)
	return item
}

// flushLocked drives every handoff that has become possible: head getters
// receive available items, then head putters whose batches now fit have them
// inserted, repeating until nothing changes. Waiter lists are strictly FIFO.
func (q *Queue[T]) flushLocked() {
	for {
		progress := false
		for len(q.getters) > 0 && len(q.items) > 0 {
			w := q.getters[0]
			q.getters = q.getters[1:]
			w.ch <- getResult[T]{item: q.popLocked()}
			progress = true
		}
		if len(q.putters) > 0 && q.hasSpace(len(q.putters[0].items)) {
			w := q.putters[0]
			q.putters = q.putters[1:]
			q.insertLocked(w.index, w.items...)
			w.ch <- nil
			progress = true
		}
		if !progress {
			return
		}
	}
}

func dropGetter[T any](list *[]*getWaiter[T], target *getWaiter[T]) {
	for i, w := range *list {
		if w == target {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

func dropPutter[T any](list *[]*putWaiter[T], target *putWaiter[T]) {
	for i, w := range *list {
		if w == target {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// Put appends items at the tail, suspending while the queue is full.
func (q *Queue[T]) Put(ctx context.Context, items ...T) error {
	return q.PutAt(ctx, -1, items...)
}

// PutAt inserts items at the given position, shifting later items right. A
// negative index appends. Suspends while the queue is full, resuming in FIFO
// order as space frees up.
func (q *Queue[T]) PutAt(ctx context.Context, index int, items ...T) error {
	if len(items) == 0 {
		return nil
	}

	q.mu.Lock()
	if len(q.putters) == 0 && q.hasSpace(len(items)) {
		q.insertLocked(index, items...)
		q.flushLocked()
		q.mu.Unlock()
		return nil
	}

	w := &putWaiter[T]{items: items, index: index, ch: make(chan error, 1)}
	q.putters = append(q.putters, w)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		q.mu.Lock()
		dropPutter(&q.putters, w)
		q.mu.Unlock()
		// The handoff may have raced the cancellation.
		select {
		case err := <-w.ch:
			return err
		default:
			return ctx.Err()
		}
	case err := <-w.ch:
		return err
	}
}

// PutDiscard inserts items, evicting from the head until they fit. Never
// blocks.
func (q *Queue[T]) PutDiscard(items ...T) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	for !q.hasSpace(len(items)) && len(q.items) > 0 {
		q.popLocked()
	}
	q.insertLocked(-1, items...)
	q.flushLocked()
	q.mu.Unlock()
}

// Get removes and returns the head item, suspending while the queue is
// empty. Suspended callers resume in FIFO order as items arrive.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	q.mu.Lock()
	if len(q.getters) == 0 && len(q.items) > 0 {
		item := q.popLocked()
		q.flushLocked()
		q.mu.Unlock()
		return item, nil
	}

	w := &getWaiter[T]{ch: make(chan getResult[T], 1)}
	q.getters = append(q.getters, w)
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		q.mu.Lock()
		dropGetter(&q.getters, w)
		q.mu.Unlock()
		select {
		case res := <-w.ch:
			return res.item, res.err
		default:
			return zero, ctx.Err()
		}
	case res := <-w.ch:
		return res.item, res.err
	}
}

// GetAt removes and returns the item at the given position without blocking.
func (q *Queue[T]) GetAt(index int) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if index < 0 || index >= len(q.items) {
		return zero, ErrNotFound
	}
	item := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	q.dropMirror(item)
	q.flushLocked()
	return item, nil
}

// Remove deletes the first occurrence of the value, or every occurrence with
// duplicates set. Matching is by encoded handle. Returns how many were
// removed; ErrNotFound when none matched.
func (q *Queue[T]) Remove(value T, duplicates bool) (int, error) {
	handle := value.EncodedHandle()
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.mirror[handle] == 0 {
		return 0, ErrNotFound
	}
	removed := 0
	kept := q.items[:0]
	for _, it := range q.items {
		if it.EncodedHandle() == handle && (duplicates || removed == 0) {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	q.items = kept
	if removed >= q.mirror[handle] {
		delete(q.mirror, handle)
	} else {
		q.mirror[handle] -= removed
	}
	q.flushLocked()
	return removed, nil
}

// Shuffle randomly permutes the contents in place. No-op on an empty queue.
// Holds the queue lock for the duration so it cannot race a Get or Put.
func (q *Queue[T]) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) < 2 {
		return
	}
	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Clear empties the queue and wakes every blocked waiter with ErrCleared so
// nothing hangs forever against a queue that no longer has a future.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.mirror = make(map[string]int)
	for _, w := range q.getters {
		w.ch <- getResult[T]{err: ErrCleared}
	}
	for _, w := range q.putters {
		w.ch <- ErrCleared
	}
	q.getters = nil
	q.putters = nil
}
