package store

import (
	"errors"
	"fmt"

	"fms-backend/internal/model"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrSaveFailed        = errors.New("save failed")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownIndex      = errors.New("unknown index")
	ErrImmutableField    = errors.New("field cannot be updated")
	ErrNotSyncable       = errors.New("collection has no sync flag")
)

func unknownCollection(c model.Collection) error {
	return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
}
