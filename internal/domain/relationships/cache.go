package relationships

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SuggestionCache memoizes ranked suggestions per profile and limit.
type SuggestionCache interface {
	Get(ctx context.Context, profileID uuid.UUID, limit int) ([]Suggestion, bool, error)
	Set(ctx context.Context, profileID uuid.UUID, limit int, suggestions []Suggestion) error
	Invalidate(ctx context.Context, profileIDs ...uuid.UUID) error
}

// NopSuggestionCache never hits.
type NopSuggestionCache struct{}

func (NopSuggestionCache) Get(context.Context, uuid.UUID, int) ([]Suggestion, bool, error) {
	return nil, false, nil
}
func (NopSuggestionCache) Set(context.Context, uuid.UUID, int, []Suggestion) error { return nil }
func (NopSuggestionCache) Invalidate(context.Context, ...uuid.UUID) error          { return nil }

// RedisSuggestionCache stores one hash per profile, one field per requested limit,
// so invalidation is a single DEL per profile.
type RedisSuggestionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSuggestionCache creates a cache, or a NopSuggestionCache when client is nil
// or ttl is not positive.
func NewRedisSuggestionCache(client *redis.Client, ttl time.Duration) SuggestionCache {
	if client == nil || ttl <= 0 {
		return NopSuggestionCache{}
	}
	return &RedisSuggestionCache{client: client, ttl: ttl}
}

func suggestionKey(profileID uuid.UUID) string {
	return "relationships:suggestions:" + profileID.String()
}

func (c *RedisSuggestionCache) Get(ctx context.Context, profileID uuid.UUID, limit int) ([]Suggestion, bool, error) {
	raw, err := c.client.HGet(ctx, suggestionKey(profileID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get cached suggestions: %w", err)
	}

	var suggestions []Suggestion
	if err := json.Unmarshal(raw, &suggestions); err != nil {
		return nil, false, fmt.Errorf("decode cached suggestions: %w", err)
	}
	return suggestions, true, nil
}

func (c *RedisSuggestionCache) Set(ctx context.Context, profileID uuid.UUID, limit int, suggestions []Suggestion) error {
	payload, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("encode suggestions: %w", err)
	}

	key := suggestionKey(profileID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), payload)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache suggestions: %w", err)
	}
	return nil
}

func (c *RedisSuggestionCache) Invalidate(ctx context.Context, profileIDs ...uuid.UUID) error {
	if len(profileIDs) == 0 {
		return nil
	}
	keys := make([]string, len(profileIDs))
	for i, id := range profileIDs {
		keys[i] = suggestionKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate suggestions: %w", err)
	}
	return nil
}
