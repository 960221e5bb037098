package cache

import (
	"context"
	"fmt"
	"time"
)

// KeyPrefixFingerprint namespaces duplicate-detection fingerprints. The full
// key is the prefix plus the hex fingerprint.
const KeyPrefixFingerprint = "fraud:history:"

// Cache provides a generic caching interface with TTL and atomic operations
type Cache interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// SetNX sets a value only if the key doesn't exist (atomic)
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// ErrCacheKeyNotFound indicates a cache miss
type ErrCacheKeyNotFound struct {
	Key string
}

func (e ErrCacheKeyNotFound) Error() string {
	return fmt.Sprintf("cache key not found: %s", e.Key)
}
