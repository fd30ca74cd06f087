package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	// sessionPrefix keys a session by the hash of its token.
	sessionPrefix = "session:"
	// sessionAccountPrefix keys the set of token hashes per account.
	sessionAccountPrefix = "session:account:"
)

// SaveSession stores a session until ttl and indexes it under its account.
func (c *Cache) SaveSession(ctx context.Context, session *model.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	accountKey := sessionAccountPrefix + session.AccountID

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, sessionPrefix+session.TokenHash, data, ttl)
	pipe.SAdd(ctx, accountKey, session.TokenHash)
	pipe.Expire(ctx, accountKey, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession returns the session for a token hash, or ErrCacheMiss.
func (c *Cache) GetSession(ctx context.Context, tokenHash string) (*model.Session, error) {
	data, err := c.client.Get(ctx, sessionPrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		// Corrupted entry - treat as miss
		return nil, ErrCacheMiss
	}
	session.TokenHash = tokenHash
	return &session, nil
}

// DeleteSession removes a single session.
func (c *Cache) DeleteSession(ctx context.Context, tokenHash string) error {
	if err := c.client.Del(ctx, sessionPrefix+tokenHash).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteAccountSessions signs an account out everywhere.
func (c *Cache) DeleteAccountSessions(ctx context.Context, accountID string) error {
	accountKey := sessionAccountPrefix + accountID

	hashes, err := c.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list account sessions: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionPrefix+h)
	}
	keys = append(keys, accountKey)

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account sessions: %w", err)
	}
	return nil
}
