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
	oauthStatePrefix  = "oauth:state:"
	pendingLinkPrefix = "oauth:pending:"
)

// SaveOAuthState remembers a login redirect until its callback.
func (c *Cache) SaveOAuthState(ctx context.Context, state string, value *model.OAuthState, ttl time.Duration) error {
	return c.setJSON(ctx, oauthStatePrefix+state, value, ttl)
}

// ConsumeOAuthState returns and deletes a stored state. A state can be
// consumed once; later calls get ErrCacheMiss.
func (c *Cache) ConsumeOAuthState(ctx context.Context, state string) (*model.OAuthState, error) {
	data, err := c.client.GetDel(ctx, oauthStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	var value model.OAuthState
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, ErrCacheMiss
	}
	return &value, nil
}

// SavePendingLink stores the identity an account was blocked from linking.
// One pending link is kept per account; a newer one replaces it.
func (c *Cache) SavePendingLink(ctx context.Context, link *model.PendingLink, ttl time.Duration) error {
	return c.setJSON(ctx, pendingLinkPrefix+link.AccountID, link, ttl)
}

// GetPendingLink returns the account's pending link, or ErrCacheMiss.
func (c *Cache) GetPendingLink(ctx context.Context, accountID string) (*model.PendingLink, error) {
	data, err := c.client.Get(ctx, pendingLinkPrefix+accountID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get pending link: %w", err)
	}

	var link model.PendingLink
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, ErrCacheMiss
	}
	return &link, nil
}

// DeletePendingLink drops the account's pending link.
func (c *Cache) DeletePendingLink(ctx context.Context, accountID string) error {
	if err := c.client.Del(ctx, pendingLinkPrefix+accountID).Err(); err != nil {
		return fmt.Errorf("failed to delete pending link: %w", err)
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache value: %w", err)
	}
	return nil
}
