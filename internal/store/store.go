package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"fms-backend/internal/model"
)

// Reader is the read side of the local store.
type Reader interface {
	Get(ctx context.Context, c model.Collection, id int64) (model.Entity, error)
	ScanAll(ctx context.Context, c model.Collection) ([]model.Entity, error)
	FindByIndex(ctx context.Context, c model.Collection, keyPath string, values ...any) ([]model.Entity, error)
	// MaxHMLog returns the reading with the highest hm_value for the unit,
	// or nil when the unit has none.
	MaxHMLog(ctx context.Context, unitID int64) (*model.HMLog, error)
	Unsynced(ctx context.Context, c model.Collection) ([]model.Entity, error)
	// CountUnsynced counts what Unsynced would return without loading it.
	CountUnsynced(ctx context.Context, c model.Collection) (int64, error)
}

// Writer is the write side of the local store.
type Writer interface {
	// Insert persists a pointer to a new record and returns its assigned id.
	Insert(ctx context.Context, e model.Entity) (int64, error)
	Update(ctx context.Context, c model.Collection, id int64, changes map[string]any) error
	Delete(ctx context.Context, c model.Collection, id int64) error
	MarkSynced(ctx context.Context, c model.Collection, ids []int64) error
}

// Store defines the interface for all database operations.
type Store interface {
	Reader
	Writer
	// Subscribe registers l for every committed change. The returned func
	// removes it.
	Subscribe(l Listener) func()
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db  *gorm.DB
	log *zap.Logger

	// mu serializes writes and the notifications that follow them.
	mu sync.Mutex

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, log *zap.Logger) Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &gormStore{
		db:        db,
		log:       log,
		listeners: make(map[int]Listener),
	}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Subscribe(l Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.lmu.Lock()
			delete(s.listeners, id)
			s.lmu.Unlock()
		})
	}
}

// emit must be called with s.mu held.
func (s *gormStore) emit(ch Change) {
	s.lmu.RLock()
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	ls := make([]Listener, 0, len(keys))
	for _, k := range keys {
		ls = append(ls, s.listeners[k])
	}
	s.lmu.RUnlock()

	for _, l := range ls {
		l(ch)
	}
}

func (s *gormStore) Insert(ctx context.Context, e model.Entity) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("%w: nil record", ErrSaveFailed)
	}
	spec, err := lookup(e.Collection())
	if err != nil {
		return 0, err
	}
	if reflect.ValueOf(e).Kind() != reflect.Pointer {
		return 0, fmt.Errorf("%w: insert into %s needs a pointer, got %T", ErrSaveFailed, e.Collection(), e)
	}
	if reflect.TypeOf(e) != reflect.TypeOf(spec.newRecord()) {
		return 0, fmt.Errorf("%w: %T does not belong to %s", ErrSaveFailed, e, e.Collection())
	}
	if e.PrimaryKey() != 0 {
		return 0, fmt.Errorf("%w: id is assigned by the store", ErrSaveFailed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		s.log.Warn("insert failed", zap.String("collection", string(e.Collection())), zap.Error(err))
		return 0, fmt.Errorf("%w: insert into %s: %w", ErrSaveFailed, e.Collection(), err)
	}

	id := e.PrimaryKey()
	s.log.Debug("inserted", zap.String("collection", string(e.Collection())), zap.Int64("id", id))
	s.emit(Change{Collection: e.Collection(), Op: OpInsert, IDs: []int64{id}})
	return id, nil
}

func (s *gormStore) Get(ctx context.Context, c model.Collection, id int64) (model.Entity, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}

	rec := spec.newRecord()
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s/%d", ErrNotFound, c, id)
		}
		return nil, fmt.Errorf("get %s/%d: %w", c, id, err)
	}
	return spec.record(rec), nil
}

func (s *gormStore) Update(ctx context.Context, c model.Collection, id int64, changes map[string]any) error {
	spec, err := lookup(c)
	if err != nil {
		return err
	}

	columns := make(map[string]any, len(changes))
	for key, v := range changes {
		col, ok := spec.mutable[key]
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrImmutableField, c, key)
		}
		columns[col] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(columns) == 0 {
		_, err := s.Get(ctx, c, id)
		return err
	}

	res := s.db.WithContext(ctx).Model(spec.newRecord()).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		s.log.Warn("update failed", zap.String("collection", string(c)), zap.Int64("id", id), zap.Error(res.Error))
		return fmt.Errorf("%w: update %s/%d: %w", ErrSaveFailed, c, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%d", ErrNotFound, c, id)
	}

	s.emit(Change{Collection: c, Op: OpUpdate, IDs: []int64{id}})
	return nil
}

func (s *gormStore) Delete(ctx context.Context, c model.Collection, id int64) error {
	spec, err := lookup(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Delete(spec.newRecord(), id)
	if res.Error != nil {
		return fmt.Errorf("delete %s/%d: %w", c, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%d", ErrNotFound, c, id)
	}

	s.log.Debug("deleted", zap.String("collection", string(c)), zap.Int64("id", id))
	s.emit(Change{Collection: c, Op: OpDelete, IDs: []int64{id}})
	return nil
}

func (s *gormStore) ScanAll(ctx context.Context, c model.Collection) ([]model.Entity, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}

	rows := spec.newSlice()
	if err := s.db.WithContext(ctx).Order("id").Find(rows).Error; err != nil {
		return nil, fmt.Errorf("scan %s: %w", c, err)
	}
	return spec.entities(rows), nil
}

func (s *gormStore) FindByIndex(ctx context.Context, c model.Collection, keyPath string, values ...any) ([]model.Entity, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}
	columns, ok := spec.indexes[keyPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, keyPath, c)
	}
	if len(values) != len(columns) {
		return nil, fmt.Errorf("index %s on %s takes %d values, got %d", keyPath, c, len(columns), len(values))
	}

	q := s.db.WithContext(ctx).Model(spec.newRecord())
	for i, col := range columns {
		q = q.Where(col+" = ?", values[i])
	}

	rows := spec.newSlice()
	if err := q.Order("id").Find(rows).Error; err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", c, keyPath, err)
	}
	return spec.entities(rows), nil
}

func (s *gormStore) MaxHMLog(ctx context.Context, unitID int64) (*model.HMLog, error) {
	var logs []model.HMLog
	err := s.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("hm_value DESC").
		Order("id DESC").
		Limit(1).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("max hm for unit %d: %w", unitID, err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

func (s *gormStore) Unsynced(ctx context.Context, c model.Collection) ([]model.Entity, error) {
	spec, err := lookup(c)
	if err != nil {
		return nil, err
	}
	if !spec.syncable {
		return nil, fmt.Errorf("%w: %s", ErrNotSyncable, c)
	}

	rows := spec.newSlice()
	if err := s.db.WithContext(ctx).Where("synced = ?", false).Order("id").Find(rows).Error; err != nil {
		return nil, fmt.Errorf("unsynced %s: %w", c, err)
	}
	return spec.entities(rows), nil
}

func (s *gormStore) CountUnsynced(ctx context.Context, c model.Collection) (int64, error) {
	spec, err := lookup(c)
	if err != nil {
		return 0, err
	}
	if !spec.syncable {
		return 0, fmt.Errorf("%w: %s", ErrNotSyncable, c)
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(spec.newRecord()).Where("synced = ?", false).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count unsynced %s: %w", c, err)
	}
	return n, nil
}

func (s *gormStore) MarkSynced(ctx context.Context, c model.Collection, ids []int64) error {
	spec, err := lookup(c)
	if err != nil {
		return err
	}
	if !spec.syncable {
		return fmt.Errorf("%w: %s", ErrNotSyncable, c)
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := s.db.WithContext(ctx).Model(spec.newRecord()).Where("id IN ?", ids).Update("synced", true)
	if res.Error != nil {
		return fmt.Errorf("%w: mark %s synced: %w", ErrSaveFailed, c, res.Error)
	}

	s.log.Info("marked synced", zap.String("collection", string(c)), zap.Int("count", len(ids)))
	s.emit(Change{Collection: c, Op: OpSync, IDs: append([]int64(nil), ids...)})
	return nil
}
