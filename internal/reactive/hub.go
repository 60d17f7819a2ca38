package reactive

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// Source is what the hub needs from the store.
type Source interface {
	store.Reader
	Subscribe(l store.Listener) func()
}

// Query reads through the tracker and derives a value.
type Query[T any] func(ctx context.Context, tx *Tracker) (T, error)

// Hub re-runs subscribed queries on its workers whenever a collection they
// read changes.
type Hub struct {
	src     Source
	workers int
	log     *zap.Logger

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64
	queue  []*subscription
	wake   chan struct{}

	stopListening func()
}

type subscription struct {
	id  uint64
	run func(ctx context.Context) (map[model.Collection]struct{}, error)

	// Guarded by Hub.mu.
	deps    map[model.Collection]struct{}
	queued  bool
	running bool
	dirty   bool

	closed atomic.Bool
}

// NewHub creates a hub listening to src. Call Start to run re-executions.
func NewHub(src Source, workers int, log *zap.Logger) *Hub {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		src:     src,
		workers: workers,
		log:     log,
		subs:    make(map[uint64]*subscription),
		wake:    make(chan struct{}, 1),
	}
	h.stopListening = src.Subscribe(h.onChange)
	return h
}

// Start launches the worker goroutines.
func (h *Hub) Start(ctx context.Context) {
	for i := 0; i < h.workers; i++ {
		go h.worker(ctx, i)
	}
	go func() {
		<-ctx.Done()
		h.stopListening()
	}()
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) worker(ctx context.Context, id int) {
	h.log.Debug("reactive worker started", zap.Int("worker", id))
	for {
		sub := h.next()
		if sub == nil {
			select {
			case <-h.wake:
				continue
			case <-ctx.Done():
				h.log.Debug("reactive worker shutting down", zap.Int("worker", id))
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		h.execute(ctx, sub)
	}
}

// next pops the first live subscription and marks it running.
func (h *Hub) next() *subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	for len(h.queue) > 0 {
		sub := h.queue[0]
		h.queue[0] = nil
		h.queue = h.queue[1:]
		sub.queued = false
		if sub.closed.Load() {
			continue
		}
		sub.running = true
		if len(h.queue) > 0 {
			h.signal()
		}
		return sub
	}
	return nil
}

func (h *Hub) execute(ctx context.Context, sub *subscription) {
	deps, err := sub.run(ctx)
	if err != nil {
		h.log.Warn("reactive query failed", zap.Uint64("subscription", sub.id), zap.Error(err))
	}
	h.finish(sub, deps, err != nil)
}

// finish records the query's new dependencies and requeues it if a relevant
// change arrived while it ran. A failed run stopped early, so what it read
// is added to the previous dependencies instead of replacing them.
func (h *Hub) finish(sub *subscription, deps map[model.Collection]struct{}, failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.running = false
	switch {
	case failed:
		for c := range deps {
			sub.deps[c] = struct{}{}
		}
	case deps != nil:
		sub.deps = deps
	}
	if sub.dirty && !sub.closed.Load() {
		sub.dirty = false
		h.enqueue(sub)
	}
}

func (h *Hub) onChange(ch store.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if _, ok := sub.deps[ch.Collection]; !ok {
			continue
		}
		if sub.running {
			sub.dirty = true
			continue
		}
		h.enqueue(sub)
	}
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(sub *subscription) {
	if sub.queued {
		return
	}
	sub.queued = true
	h.queue = append(h.queue, sub)
	h.signal()
}

func (h *Hub) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) register(sub *subscription) {
	// Until the first run reports what it read, any change could matter.
	sub.deps = make(map[model.Collection]struct{}, len(model.Collections))
	for _, c := range model.Collections {
		sub.deps[c] = struct{}{}
	}
	sub.running = true

	h.mu.Lock()
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	h.mu.Unlock()
}

func (h *Hub) unregister(sub *subscription) {
	sub.closed.Store(true)
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
}

// Subscribe runs q once and returns its result, then calls deliver with a
// fresh result after every change to a collection q read. Deliveries for one
// subscription never overlap. The returned func stops delivery; a run in
// progress when it is called completes but its result is dropped.
func Subscribe[T any](ctx context.Context, h *Hub, q Query[T], deliver func(T)) (T, func(), error) {
	sub := &subscription{}
	sub.run = func(ctx context.Context) (map[model.Collection]struct{}, error) {
		tx := newTracker(h.src)
		v, err := q(ctx, tx)
		if err != nil {
			return tx.Touched(), err
		}
		if !sub.closed.Load() {
			deliver(v)
		}
		return tx.Touched(), nil
	}

	h.register(sub)

	tx := newTracker(h.src)
	initial, err := q(ctx, tx)
	if err != nil {
		h.unregister(sub)
		var zero T
		return zero, nil, err
	}
	h.finish(sub, tx.Touched(), false)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { h.unregister(sub) })
	}
	return initial, unsubscribe, nil
}
