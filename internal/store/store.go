// Package store provides the persistent key-value store backing the device
// identity record and other long-lived client state. Records are opaque JSON
// blobs keyed by string.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no record exists for a key.
var ErrNotFound = errors.New("store: key not found")

// Store is an asynchronous key-value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores the record under key, replacing any existing record.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the record under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the store.
	Close() error
}
