// Package redis keeps the engine's short-lived state (bonus pairs and
// manual reset floors) in Redis so a restart does not lose it.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spotbot/internal/config"
	"github.com/spotbot/internal/domain"
)

// bonusTTL keeps a day's pairs around long enough to survive a restart
// near midnight.
const bonusTTL = 48 * time.Hour

// Cache provides Redis-backed engine state
type Cache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewCache connects to Redis and verifies the connection
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewCacheWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewCacheWithClient wraps an existing client
func NewCacheWithClient(client *redis.Client, prefix string, logger *slog.Logger) *Cache {
	if prefix == "" {
		prefix = "spotbot"
	}
	return &Cache{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping reports whether Redis answers
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// bonusKey returns the hash holding one day's pairs, keyed by scope
func (c *Cache) bonusKey(day string) string {
	return fmt.Sprintf("%s:bonus:%s", c.prefix, day)
}

// resetsKey returns the hash of manual reset floors, keyed by scope
func (c *Cache) resetsKey() string {
	return fmt.Sprintf("%s:resets", c.prefix)
}

// SaveBonus stores a scope's pair under its day
func (c *Cache) SaveBonus(ctx context.Context, a domain.BonusAssignment) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding bonus pair: %w", err)
	}

	key := c.bonusKey(a.Day)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, a.ScopeID, payload)
	pipe.Expire(ctx, key, bonusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving bonus pair: %w", err)
	}
	return nil
}

// LoadBonuses returns every pair drawn on day
func (c *Cache) LoadBonuses(ctx context.Context, day string) ([]domain.BonusAssignment, error) {
	result, err := c.client.HGetAll(ctx, c.bonusKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading bonus pairs: %w", err)
	}

	assignments := make([]domain.BonusAssignment, 0, len(result))
	for scopeID, raw := range result {
		var a domain.BonusAssignment
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			c.logger.Warn("skipping malformed bonus pair", "scope_id", scopeID, "error", err)
			continue
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

// SaveManualReset records a scope's reset floor
func (c *Cache) SaveManualReset(ctx context.Context, scopeID string, at time.Time) error {
	err := c.client.HSet(ctx, c.resetsKey(), scopeID, at.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("saving manual reset: %w", err)
	}
	return nil
}

// LoadManualResets returns every stored reset floor
func (c *Cache) LoadManualResets(ctx context.Context) (map[string]time.Time, error) {
	result, err := c.client.HGetAll(ctx, c.resetsKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return map[string]time.Time{}, nil
		}
		return nil, fmt.Errorf("loading manual resets: %w", err)
	}

	resets := make(map[string]time.Time, len(result))
	for scopeID, raw := range result {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.logger.Warn("skipping malformed manual reset", "scope_id", scopeID, "error", err)
			continue
		}
		resets[scopeID] = at
	}
	return resets, nil
}

// ClearManualResets drops every reset floor
func (c *Cache) ClearManualResets(ctx context.Context) error {
	if err := c.client.Del(ctx, c.resetsKey()).Err(); err != nil {
		return fmt.Errorf("clearing manual resets: %w", err)
	}
	return nil
}
