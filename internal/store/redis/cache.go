package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDIDCacheTTL is how long identifier -> DID resolutions are kept.
// Handles can be reassigned, so the mapping must eventually expire.
const DefaultDIDCacheTTL = 24 * time.Hour

// CacheDID stores an identifier -> DID resolution in cache
func (s *Store) CacheDID(ctx context.Context, identifier, did string) error {
	if err := s.client.Set(ctx, DIDKey(identifier), did, DefaultDIDCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache did resolution: %w", err)
	}
	return nil
}

// GetCachedDID retrieves a cached resolution. "" means cache miss.
func (s *Store) GetCachedDID(ctx context.Context, identifier string) (string, error) {
	did, err := s.client.Get(ctx, DIDKey(identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get cached did: %w", err)
	}
	return did, nil
}
