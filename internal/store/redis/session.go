package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/skymark/skymark/internal/domain"
)

// SaveSession serializes the session under the fixed key, overwriting
// any prior value. No TTL: expiry policy belongs to the auth layer.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, SessionKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession reads the stored session. It returns (nil, nil) when no
// session is stored, and also when the stored record is malformed or
// missing an essential field, in which case the entry is cleared as a
// side effect.
func (s *Store) LoadSession(ctx context.Context) (*domain.Session, error) {
	data, err := s.client.Get(ctx, SessionKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Corrupted entry: clear it rather than fail every caller.
		_ = s.client.Del(ctx, SessionKey()).Err()
		return nil, nil
	}
	if !session.Usable() {
		_ = s.client.Del(ctx, SessionKey()).Err()
		return nil, nil
	}
	return &session, nil
}

// ClearSession removes the stored session. Clearing an absent session
// is a no-op.
func (s *Store) ClearSession(ctx context.Context) error {
	if err := s.client.Del(ctx, SessionKey()).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
