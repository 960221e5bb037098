package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DuplicateCache backs exact-duplicate detection with a short-TTL fingerprint
// store. Implements the fraud service's DuplicateCache port.
type DuplicateCache struct {
	cache  Cache
	logger *zap.Logger
}

func NewDuplicateCache(cache Cache, logger *zap.Logger) *DuplicateCache {
	return &DuplicateCache{cache: cache, logger: logger}
}

// Seen reports whether a fingerprint is currently cached
func (d *DuplicateCache) Seen(ctx context.Context, fingerprint string) (bool, error) {
	return d.cache.Exists(ctx, KeyPrefixFingerprint+fingerprint)
}

// Record stores a fingerprint with the given TTL. SetNX keeps the original
// expiry when two analyses race on the same fingerprint.
func (d *DuplicateCache) Record(ctx context.Context, fingerprint string, ttl time.Duration) error {
	_, err := d.cache.SetNX(ctx, KeyPrefixFingerprint+fingerprint, "1", ttl)
	if err != nil {
		d.logger.Error("fingerprint record failed",
			zap.String("fingerprint", fingerprint),
			zap.Error(err))
	}
	return err
}
