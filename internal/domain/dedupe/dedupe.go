// Package dedupe drops repeated deliveries of at-least-once messages.
package dedupe

import (
	"context"
	"sync"
)

// Deduper remembers recently seen message IDs.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool

	// Forget removes id so a delivery that failed downstream can be retried.
	Forget(ctx context.Context, id string)

	Size() int
}

// entry is a node of the insertion-ordered list; head is the newest.
type entry struct {
	id         string
	prev, next *entry
}

// window keeps the last maxSize IDs and evicts the oldest first.
// A maxSize <= 0 keeps every ID forever.
type window struct {
	mu      sync.Mutex
	seen    map[string]*entry
	head    *entry
	tail    *entry
	maxSize int
}

// New creates an in-memory deduper.
func New(opts ...Option) Deduper {
	w := &window{maxSize: 10000}
	for _, opt := range opts {
		opt(w)
	}
	w.seen = make(map[string]*entry)
	return w
}

func (w *window) SeenAndRecord(_ context.Context, id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return true
	}
	if w.maxSize > 0 && len(w.seen) >= w.maxSize {
		w.unlink(w.tail)
	}
	e := &entry{id: id, next: w.head}
	if w.head != nil {
		w.head.prev = e
	}
	w.head = e
	if w.tail == nil {
		w.tail = e
	}
	w.seen[id] = e
	return false
}

func (w *window) Forget(_ context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.seen[id]; ok {
		w.unlink(e)
	}
}

// unlink removes e from both the list and the map. Caller holds mu.
func (w *window) unlink(e *entry) {
	if e == nil {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		w.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		w.tail = e.prev
	}
	delete(w.seen, e.id)
}

func (w *window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
