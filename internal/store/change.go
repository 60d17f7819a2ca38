package store

import "fms-backend/internal/model"

// Op is the kind of mutation a Change reports.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpSync   Op = "sync"
)

// Change describes one committed mutation.
type Change struct {
	Collection model.Collection
	Op         Op
	IDs        []int64
}

// Listener receives changes in commit order. It runs while the store's write
// lock is held, so it must not block and must not write to the store.
type Listener func(Change)
