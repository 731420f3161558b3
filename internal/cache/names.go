// Package cache is a read-through cache for display names shown in conflict
// messages and notifications. Redis is the primary store; when it is down the
// cache degrades to an in-process map and periodically probes for recovery.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Loader resolves a name from the database on cache miss.
type Loader func(ctx context.Context, id int64) (string, error)

const (
	defaultTTL       = 10 * time.Minute
	recoveryInterval = time.Minute
)

// Names caches id-to-name lookups per entity kind ("master", "client").
type Names struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	isDown    atomic.Bool
	checkMu   sync.Mutex
	lastCheck time.Time

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	name    string
	expires time.Time
}

// NewNames creates a name cache. rdb may be nil; the cache then runs purely
// in-process.
func NewNames(rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *Names {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Names{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "name_cache").Logger(),
		local:  make(map[string]localEntry),
	}
}

// Get returns the cached name for (kind, id), loading and caching it on miss.
func (n *Names) Get(ctx context.Context, kind string, id int64, load Loader) (string, error) {
	key := n.key(kind, id)

	if name, ok := n.fromRedis(ctx, key); ok {
		return name, nil
	}
	if name, ok := n.fromLocal(key); ok {
		return name, nil
	}

	name, err := load(ctx, id)
	if err != nil {
		return "", err
	}
	n.store(ctx, key, name)
	return name, nil
}

// Invalidate drops the cached name after a rename.
func (n *Names) Invalidate(ctx context.Context, kind string, id int64) {
	key := n.key(kind, id)

	n.mu.Lock()
	delete(n.local, key)
	n.mu.Unlock()

	if n.rdb == nil || n.isDown.Load() {
		return
	}
	if err := n.rdb.Del(ctx, key).Err(); err != nil {
		n.markDown(err)
	}
}

func (n *Names) key(kind string, id int64) string {
	return fmt.Sprintf("zapisnik:name:%s:%d", kind, id)
}

func (n *Names) fromRedis(ctx context.Context, key string) (string, bool) {
	if n.rdb == nil {
		return "", false
	}
	if n.isDown.Load() && !n.shouldRetry() {
		return "", false
	}

	name, err := n.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		n.markUp()
		return "", false
	}
	if err != nil {
		n.markDown(err)
		return "", false
	}
	n.markUp()
	return name, true
}

func (n *Names) fromLocal(key string) (string, bool) {
	n.mu.RLock()
	entry, ok := n.local[key]
	n.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.name, true
}

// store writes through to both layers so a later redis outage still serves
// warm entries locally.
func (n *Names) store(ctx context.Context, key, name string) {
	n.mu.Lock()
	n.local[key] = localEntry{name: name, expires: time.Now().Add(n.ttl)}
	n.mu.Unlock()

	if n.rdb == nil || n.isDown.Load() {
		return
	}
	if err := n.rdb.Set(ctx, key, name, n.ttl).Err(); err != nil {
		n.markDown(err)
	}
}

// shouldRetry rate-limits recovery probes against a down primary.
func (n *Names) shouldRetry() bool {
	n.checkMu.Lock()
	defer n.checkMu.Unlock()
	if time.Since(n.lastCheck) < recoveryInterval {
		return false
	}
	n.lastCheck = time.Now()
	return true
}

func (n *Names) markDown(err error) {
	if n.isDown.CompareAndSwap(false, true) {
		n.logger.Warn().Err(err).Msg("redis unavailable, serving names from local cache")
	}
}

func (n *Names) markUp() {
	if n.isDown.CompareAndSwap(true, false) {
		n.logger.Info().Msg("redis recovered")
	}
}
