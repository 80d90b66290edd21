// internal/infrastructure/storage/store.go
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("storage: key not found")

// Store is the key-value persistence contract for session-scoped state.
// Values are JSON-serialized strings; keys expire after the given TTL.
// Implementations must treat a zero TTL as "no expiry".
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
