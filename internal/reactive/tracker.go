package reactive

import (
	"context"
	"sync"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// Tracker is the read view a query runs against. It records every
// collection the query reads so the hub knows which changes concern it.
type Tracker struct {
	r store.Reader

	mu      sync.Mutex
	touched map[model.Collection]struct{}
}

var _ store.Reader = (*Tracker)(nil)

func newTracker(r store.Reader) *Tracker {
	return &Tracker{r: r, touched: make(map[model.Collection]struct{})}
}

func (t *Tracker) mark(c model.Collection) {
	t.mu.Lock()
	t.touched[c] = struct{}{}
	t.mu.Unlock()
}

// Touched returns the collections read so far.
func (t *Tracker) Touched() map[model.Collection]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[model.Collection]struct{}, len(t.touched))
	for c := range t.touched {
		out[c] = struct{}{}
	}
	return out
}

func (t *Tracker) Get(ctx context.Context, c model.Collection, id int64) (model.Entity, error) {
	t.mark(c)
	return t.r.Get(ctx, c, id)
}

func (t *Tracker) ScanAll(ctx context.Context, c model.Collection) ([]model.Entity, error) {
	t.mark(c)
	return t.r.ScanAll(ctx, c)
}

func (t *Tracker) FindByIndex(ctx context.Context, c model.Collection, keyPath string, values ...any) ([]model.Entity, error) {
	t.mark(c)
	return t.r.FindByIndex(ctx, c, keyPath, values...)
}

func (t *Tracker) MaxHMLog(ctx context.Context, unitID int64) (*model.HMLog, error) {
	t.mark(model.CollectionHMLogs)
	return t.r.MaxHMLog(ctx, unitID)
}

func (t *Tracker) Unsynced(ctx context.Context, c model.Collection) ([]model.Entity, error) {
	t.mark(c)
	return t.r.Unsynced(ctx, c)
}

func (t *Tracker) CountUnsynced(ctx context.Context, c model.Collection) (int64, error) {
	t.mark(c)
	return t.r.CountUnsynced(ctx, c)
}
