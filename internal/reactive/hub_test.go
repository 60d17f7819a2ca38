package reactive

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fms-backend/internal/db/dbtest"
	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

func newTestHub(t *testing.T) (*Hub, store.Store) {
	s := store.NewGormStore(dbtest.New(t), nil)
	h := NewHub(s, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h.Start(ctx)
	return h, s
}

func countHM(unitID int64) Query[int] {
	return func(ctx context.Context, tx *Tracker) (int, error) {
		rows, err := tx.FindByIndex(ctx, model.CollectionHMLogs, "unit_id", unitID)
		return len(rows), err
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func TestSubscribe_InitialAndUpdate(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHub(t)

	_, err := s.Insert(ctx, &model.HMLog{UnitID: 1, Date: "2024-01-01", Shift: model.ShiftDay, HMValue: 10})
	require.NoError(t, err)

	updates := make(chan int, 16)
	initial, unsubscribe, err := Subscribe(ctx, h, countHM(1), func(n int) { updates <- n })
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, 1, initial)

	_, err = s.Insert(ctx, &model.HMLog{UnitID: 1, Date: "2024-01-01", Shift: model.ShiftNight, HMValue: 20})
	require.NoError(t, err)

	assert.Equal(t, 2, receive(t, updates))
}

func TestSubscribe_IgnoresUnrelatedCollections(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHub(t)

	var runs atomic.Int32
	q := func(ctx context.Context, tx *Tracker) (int, error) {
		runs.Add(1)
		rows, err := tx.ScanAll(ctx, model.CollectionUnits)
		return len(rows), err
	}

	updates := make(chan int, 16)
	_, unsubscribe, err := Subscribe(ctx, h, q, func(n int) { updates <- n })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = s.Insert(ctx, &model.HMLog{UnitID: 1, Date: "2024-01-01", Shift: model.ShiftDay, HMValue: 10})
	require.NoError(t, err)
	_, err = s.Insert(ctx, &model.Unit{Code: "DT-001", Model: "P460", Class: "DUMP TRUCK"})
	require.NoError(t, err)

	assert.Equal(t, 1, receive(t, updates))
	assert.Equal(t, int32(2), runs.Load())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHub(t)

	updates := make(chan int, 16)
	_, unsubscribe, err := Subscribe(ctx, h, countHM(1), func(n int) { updates <- n })
	require.NoError(t, err)
	assert.Equal(t, 1, h.Len())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, h.Len())

	_, err = s.Insert(ctx, &model.HMLog{UnitID: 1, Date: "2024-01-01", Shift: model.ShiftDay, HMValue: 10})
	require.NoError(t, err)

	select {
	case n := <-updates:
		t.Fatalf("unexpected delivery %d after unsubscribe", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribe_ObservesLatestAfterBurst(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHub(t)

	updates := make(chan int, 64)
	_, unsubscribe, err := Subscribe(ctx, h, countHM(7), func(n int) { updates <- n })
	require.NoError(t, err)
	defer unsubscribe()

	const writes = 10
	for i := 0; i < writes; i++ {
		_, err := s.Insert(ctx, &model.HMLog{UnitID: 7, Date: "2024-01-01", Shift: model.ShiftDay, HMValue: float64(i)})
		require.NoError(t, err)
	}

	// Intermediate counts may be coalesced but the final state always arrives.
	deadline := time.After(2 * time.Second)
	last := 0
	for last != writes {
		select {
		case last = <-updates:
		case <-deadline:
			t.Fatalf("last delivery was %d, want %d", last, writes)
		}
	}
}

func TestSubscribe_InitialErrorDoesNotRegister(t *testing.T) {
	h, _ := newTestHub(t)

	q := func(ctx context.Context, tx *Tracker) (int, error) {
		_, err := tx.ScanAll(ctx, model.Collection("nope"))
		return 0, err
	}
	_, unsubscribe, err := Subscribe(context.Background(), h, q, func(int) {})
	assert.ErrorIs(t, err, store.ErrUnknownCollection)
	assert.Nil(t, unsubscribe)
	assert.Equal(t, 0, h.Len())
}

func TestSubscribe_KeepsDependenciesAfterFailedRun(t *testing.T) {
	ctx := context.Background()
	h, s := newTestHub(t)

	var runs atomic.Int32
	failed := make(chan struct{})
	q := func(ctx context.Context, tx *Tracker) (int, error) {
		if _, err := tx.ScanAll(ctx, model.CollectionUnits); err != nil {
			return 0, err
		}
		if runs.Add(1) == 2 {
			close(failed)
			return 0, errors.New("transient")
		}
		rows, err := tx.ScanAll(ctx, model.CollectionHMLogs)
		return len(rows), err
	}

	updates := make(chan int, 16)
	_, unsubscribe, err := Subscribe(ctx, h, q, func(n int) { updates <- n })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = s.Insert(ctx, &model.Unit{Code: "DT-001", Model: "P460", Class: "DUMP TRUCK"})
	require.NoError(t, err)
	receive(t, failed)

	_, err = s.Insert(ctx, &model.HMLog{UnitID: 1, Date: "2024-01-01", Shift: model.ShiftDay, HMValue: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, receive(t, updates))
}

func TestTracker_RecordsCollections(t *testing.T) {
	ctx := context.Background()
	s := store.NewGormStore(dbtest.New(t), nil)
	tx := newTracker(s)

	_, err := tx.MaxHMLog(ctx, 1)
	require.NoError(t, err)
	_, err = tx.Get(ctx, model.CollectionUnits, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, map[model.Collection]struct{}{
		model.CollectionHMLogs: {},
		model.CollectionUnits:  {},
	}, tx.Touched())
}
