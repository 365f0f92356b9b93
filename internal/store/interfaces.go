package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by KV.Get when a key has never been written
var ErrNotFound = errors.New("key not found")

// KV defines the durable key-value backing store used by the engine
type KV interface {
	// Get returns the blob stored under key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous blob
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Ping checks if the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases resources
	Close() error
}
