package ports

import (
	"context"
)

// StateStore defines the key-value persistence used for session state and context.
// Values are opaque encoded documents; the engine owns the encoding.
type StateStore interface {
	// Get retrieves the value stored under key.
	// Returns domain.ErrNotFound if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
