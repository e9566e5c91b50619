package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lavirtualzone/transfers/internal/domain"
)

const defaultPlayerTTL = 5 * time.Minute

var (
	_ domain.PlayerCache     = (*PlayerCache)(nil)
	_ domain.PlayerDirectory = (*CachedDirectory)(nil)
)

// PlayerCache stores players as JSON in a hash field with a TTL.
//
// Key schema:
//
//	player:{id} - hash with field "data" containing JSON
type PlayerCache struct {
	c   *Client
	ttl time.Duration
}

// NewPlayerCache creates a PlayerCache. A zero ttl uses five minutes.
func NewPlayerCache(c *Client, ttl time.Duration) *PlayerCache {
	if ttl <= 0 {
		ttl = defaultPlayerTTL
	}
	return &PlayerCache{c: c, ttl: ttl}
}

// Set stores a player.
func (pc *PlayerCache) Set(ctx context.Context, p domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("redis: marshal player %s: %w", p.ID, err)
	}
	key := pc.c.key("player:", p.ID)
	pipe := pc.c.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, pc.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set player %s: %w", p.ID, err)
	}
	return nil
}

// Get returns a cached player or domain.ErrNotFound on a miss.
func (pc *PlayerCache) Get(ctx context.Context, id string) (domain.Player, error) {
	data, err := pc.c.rdb.HGet(ctx, pc.c.key("player:", id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Player{}, domain.ErrNotFound
		}
		return domain.Player{}, fmt.Errorf("redis: get player %s: %w", id, err)
	}
	var p domain.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Player{}, fmt.Errorf("redis: unmarshal player %s: %w", id, err)
	}
	return p, nil
}

// Invalidate drops a cached player.
func (pc *PlayerCache) Invalidate(ctx context.Context, id string) error {
	if err := pc.c.rdb.Del(ctx, pc.c.key("player:", id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate player %s: %w", id, err)
	}
	return nil
}

// CachedDirectory is a read-through PlayerDirectory. Cache failures are
// logged and fall through to the backing directory.
type CachedDirectory struct {
	cache   domain.PlayerCache
	backing domain.PlayerDirectory
	logger  *slog.Logger
}

// NewCachedDirectory wraps backing with cache.
func NewCachedDirectory(cache domain.PlayerCache, backing domain.PlayerDirectory, logger *slog.Logger) *CachedDirectory {
	return &CachedDirectory{cache: cache, backing: backing, logger: logger}
}

func (d *CachedDirectory) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	p, err := d.cache.Get(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		d.logger.Warn("player cache read failed", slog.String("player_id", id), slog.String("error", err.Error()))
	}

	p, err = d.backing.GetPlayer(ctx, id)
	if err != nil {
		return domain.Player{}, err
	}
	if err := d.cache.Set(ctx, p); err != nil {
		d.logger.Warn("player cache write failed", slog.String("player_id", id), slog.String("error", err.Error()))
	}
	return p, nil
}
