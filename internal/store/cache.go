package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"voice-rooms/internal/app"
)

const lookupTimeout = 5 * time.Second

// Store is the persistence surface the HTTP and websocket layers consume
type Store interface {
	Ping(ctx context.Context) error
	InsertRoom(ctx context.Context, r Room) error
	FindRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context, limit int) ([]Room, error)
	InsertMessage(ctx context.Context, m Message) error
	FindMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}

var _ Store = (*Postgres)(nil)

// CachedStore puts a redis cache-aside layer in front of room lookups.
// Every websocket join reads the room record, messages are never cached.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
	sf  singleflight.Group // collapses concurrent misses for one room
}

// NewRedisClient connects to redis and verifies connectivity
func NewRedisClient(ctx context.Context, cfg app.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func NewCachedStore(next Store, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	return &CachedStore{Store: next, rdb: rdb, ttl: ttl, log: log}
}

// FindRoom serves from redis when possible. Cache errors fall through to the
// backing store so redis being down never fails a lookup.
func (c *CachedStore) FindRoom(ctx context.Context, id string) (Room, error) {
	raw, err := c.rdb.Get(ctx, roomKey(id)).Bytes()
	if err == nil {
		var r Room
		if jerr := json.Unmarshal(raw, &r); jerr == nil {
			return r, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("cache.get", "id", id, "err", err)
	}

	// the shared lookup outlives any single caller's cancellation
	ch := c.sf.DoChan(id, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		r, err := c.Store.FindRoom(lctx, id)
		if err != nil {
			return Room{}, err
		}
		c.put(lctx, r)
		return r, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Room{}, res.Err
		}
		return res.Val.(Room), nil
	case <-ctx.Done():
		return Room{}, ctx.Err()
	}
}

// InsertRoom writes through to the backing store, then primes the cache
func (c *CachedStore) InsertRoom(ctx context.Context, r Room) error {
	if err := c.Store.InsertRoom(ctx, r); err != nil {
		return err
	}
	c.put(ctx, r)
	return nil
}

func (c *CachedStore) put(ctx context.Context, r Room) {
	raw, _ := json.Marshal(r)
	if err := c.rdb.Set(ctx, roomKey(r.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("cache.set", "id", r.ID, "err", err)
	}
}

// Close shuts down the redis connection
func (c *CachedStore) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// key namespacing for room records
func roomKey(id string) string { return "room:" + id }
