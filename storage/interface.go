package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value exists for the key
var ErrNotFound = errors.New("storage: key not found")

// Storage is a flat key-value store holding JSON-encoded values.
// Implementations must be safe for concurrent use within one process.
// There is no cross-process locking; two processes sharing a file
// backend can interleave read-modify-write cycles.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Init(ctx context.Context) error
	Stop() error
}
