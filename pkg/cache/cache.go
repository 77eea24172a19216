// Package cache provides a small TTL cache for resolved tenant permissions.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encodable values under string keys with a TTL.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get unmarshals the cached value into dest and reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)
	// Set stores value under key for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}
