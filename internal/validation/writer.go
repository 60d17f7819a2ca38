package validation

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"fms-backend/internal/model"
	"fms-backend/internal/store"
)

// Writer is the gated write path: every mutation is validated and stored
// under one lock so a check cannot go stale before its insert.
type Writer struct {
	mu    sync.Mutex
	store store.Store
	v     *Validator
	log   *zap.Logger
	now   func() time.Time
	loc   *time.Location
}

// WriterOption customizes a Writer.
type WriterOption func(*Writer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithLocation sets the zone used to default HM dates.
func WithLocation(loc *time.Location) WriterOption {
	return func(w *Writer) { w.loc = loc }
}

// NewWriter creates a Writer over s.
func NewWriter(s store.Store, v *Validator, log *zap.Logger, opts ...WriterOption) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{store: s, v: v, log: log, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// CreateUnit validates and inserts a new unit.
func (w *Writer) CreateUnit(ctx context.Context, form UnitForm) (model.Unit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.v.ValidateUnitForm(ctx, form, 0); err != nil {
		return model.Unit{}, err
	}

	u := &model.Unit{Code: form.Code, Model: form.Model, Class: form.Class, EGI: form.EGI, Spare: form.Spare}
	if _, err := w.store.Insert(ctx, u); err != nil {
		return model.Unit{}, err
	}
	w.log.Info("unit created", zap.Int64("unit_id", u.ID), zap.String("code", u.Code))
	return *u, nil
}

// UpdateUnit replaces the editable fields of unit id.
func (w *Writer) UpdateUnit(ctx context.Context, id int64, form UnitForm) (model.Unit, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.store.Get(ctx, model.CollectionUnits, id); err != nil {
		return model.Unit{}, err
	}
	if err := w.v.ValidateUnitForm(ctx, form, id); err != nil {
		return model.Unit{}, err
	}

	err := w.store.Update(ctx, model.CollectionUnits, id, map[string]any{
		"code":  form.Code,
		"model": form.Model,
		"class": form.Class,
		"egi":   form.EGI,
		"spare": form.Spare,
	})
	if err != nil {
		return model.Unit{}, err
	}
	w.log.Info("unit updated", zap.Int64("unit_id", id))
	return store.GetAs[model.Unit](ctx, w.store, id)
}

// DeleteUnit removes unit id. Readings and breakdowns referencing it are
// left in place.
func (w *Writer) DeleteUnit(ctx context.Context, id int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.store.Delete(ctx, model.CollectionUnits, id); err != nil {
		return err
	}
	w.log.Info("unit deleted", zap.Int64("unit_id", id))
	return nil
}

// RecordHM validates and inserts an HM reading. Warnings are returned when
// the duplicate policy accepts the reading but flags it.
func (w *Writer) RecordHM(ctx context.Context, form HMEntryForm) (model.HMLog, []string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	form.applyDefaults(w.now().In(w.loc))
	if err := w.v.ValidateHMForm(ctx, form); err != nil {
		return model.HMLog{}, nil, err
	}
	if err := w.v.ValidateHMEntry(ctx, form.UnitID, *form.HMValue); err != nil {
		return model.HMLog{}, nil, err
	}

	var warnings []string
	warning, err := w.v.CheckDuplicateShift(ctx, form.UnitID, form.Date, form.Shift)
	if err != nil {
		return model.HMLog{}, nil, err
	}
	if warning != "" {
		warnings = append(warnings, warning)
	}

	entry := &model.HMLog{
		UnitID:  form.UnitID,
		Date:    form.Date,
		Shift:   form.Shift,
		HMValue: *form.HMValue,
		Synced:  false,
	}
	if _, err := w.store.Insert(ctx, entry); err != nil {
		return model.HMLog{}, nil, err
	}
	w.log.Info("hm recorded",
		zap.Int64("unit_id", entry.UnitID),
		zap.String("date", entry.Date),
		zap.String("shift", string(entry.Shift)),
		zap.Float64("hm", entry.HMValue),
		zap.Int("warnings", len(warnings)),
	)
	return *entry, warnings, nil
}

// ReportBreakdown validates and inserts a breakdown.
func (w *Writer) ReportBreakdown(ctx context.Context, form BreakdownForm) (model.BreakdownLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	form.applyDefaults(now)
	if err := w.v.ValidateBreakdownForm(ctx, form, now); err != nil {
		return model.BreakdownLog{}, err
	}

	entry := &model.BreakdownLog{
		UnitID:      form.UnitID,
		ComponentID: form.ComponentID,
		Start:       form.Start,
		End:         form.End,
		Description: form.Description,
		Category:    form.Category,
		Synced:      false,
	}
	if _, err := w.store.Insert(ctx, entry); err != nil {
		return model.BreakdownLog{}, err
	}
	w.log.Info("breakdown reported",
		zap.Int64("breakdown_id", entry.ID),
		zap.Int64("unit_id", entry.UnitID),
		zap.String("category", string(entry.Category)),
		zap.Bool("open", entry.Open()),
	)
	return *entry, nil
}

// CloseBreakdown records the RFU time of an open breakdown. A zero end
// means now.
func (w *Writer) CloseBreakdown(ctx context.Context, id int64, end time.Time) (model.BreakdownLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, err := store.GetAs[model.BreakdownLog](ctx, w.store, id)
	if err != nil {
		return model.BreakdownLog{}, err
	}
	if !b.Open() {
		return model.BreakdownLog{}, failf("end", "breakdown %d already has an RFU time", id)
	}
	if end.IsZero() {
		end = w.now()
	}
	if end.Before(b.Start) {
		return model.BreakdownLog{}, failf("end", "RFU time cannot be before the breakdown start")
	}

	if err := w.store.Update(ctx, model.CollectionBreakdownLogs, id, map[string]any{"end": end, "synced": false}); err != nil {
		return model.BreakdownLog{}, err
	}
	w.log.Info("breakdown closed", zap.Int64("breakdown_id", id))
	return store.GetAs[model.BreakdownLog](ctx, w.store, id)
}
