package repository

import (
	"context"
	"errors"
)

// Storage-level sentinel errors. Services translate them into AppErrors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("version mismatch")
	ErrDuplicate       = errors.New("duplicate record")
	ErrSlotTaken       = errors.New("slot window overlaps an occupied slot")
)

// IndexEnsurer is implemented by stores that need indexes created at startup.
type IndexEnsurer interface {
	EnsureIndexes(ctx context.Context) error
}
