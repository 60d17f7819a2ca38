package store

import (
	"context"
	"fmt"

	"fms-backend/internal/model"
)

// All loads every row of T's collection.
func All[T model.Entity](ctx context.Context, r Reader) ([]T, error) {
	var zero T
	rows, err := r.ScanAll(ctx, zero.Collection())
	if err != nil {
		return nil, err
	}
	return cast[T](rows)
}

// FindBy runs an index lookup on T's collection.
func FindBy[T model.Entity](ctx context.Context, r Reader, keyPath string, values ...any) ([]T, error) {
	var zero T
	rows, err := r.FindByIndex(ctx, zero.Collection(), keyPath, values...)
	if err != nil {
		return nil, err
	}
	return cast[T](rows)
}

// GetAs loads one row of T's collection.
func GetAs[T model.Entity](ctx context.Context, r Reader, id int64) (T, error) {
	var zero T
	e, err := r.Get(ctx, zero.Collection(), id)
	if err != nil {
		return zero, err
	}
	v, ok := e.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %T in %s", e, zero.Collection())
	}
	return v, nil
}

func cast[T model.Entity](rows []model.Entity) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, e := range rows {
		v, ok := e.(T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("unexpected %T in %s", e, zero.Collection())
		}
		out = append(out, v)
	}
	return out, nil
}
