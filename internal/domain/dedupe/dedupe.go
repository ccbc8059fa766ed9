// Package dedupe remembers webhook deliveries so redelivered submissions are
// answered without being applied twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50000

// State is the outcome of Begin.
type State int

// Delivery states.
const (
	// StateNew means the key was unseen and is now reserved by the caller.
	StateNew State = iota
	// StateInFlight means another request holds the key.
	StateInFlight
	// StateDone means the key completed and its response is available.
	StateDone
)

// Deduper tracks delivery keys through reserve, complete and forget.
type Deduper interface {
	// Begin reserves key if unseen. For StateDone the stored response is returned.
	Begin(ctx context.Context, key string) (State, []byte)

	// Complete stores the response for a reserved key.
	Complete(ctx context.Context, key string, response []byte)

	// Forget drops a reservation so the sender may retry after a failure.
	Forget(ctx context.Context, key string)

	Size() int64
}

type entry struct {
	key      string
	done     bool
	response []byte
}

// inMemoryDeduper keeps at most maxSize keys, evicting the oldest first.
// maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: defaultMaxSize,
		byKey:   make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) Begin(_ context.Context, key string) (State, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		e := el.Value.(*entry)
		if !e.done {
			return StateInFlight, nil
		}
		return StateDone, e.response
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.evictOldest()
	}
	d.byKey[key] = d.order.PushBack(&entry{key: key})
	d.size.Add(1)
	return StateNew, nil
}

func (d *inMemoryDeduper) Complete(_ context.Context, key string, response []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		e := el.Value.(*entry)
		e.done = true
		e.response = append([]byte(nil), response...)
	}
}

func (d *inMemoryDeduper) Forget(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.byKey[key]; ok {
		d.order.Remove(el)
		delete(d.byKey, key)
		d.size.Add(-1)
	}
}

// evictOldest removes the front of the list. Must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	el := d.order.Front()
	if el == nil {
		return
	}
	d.order.Remove(el)
	delete(d.byKey, el.Value.(*entry).key)
	d.size.Add(-1)
}

// Size returns the current number of tracked keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
