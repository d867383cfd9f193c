// Package session serializes invocations per thread. A thread is a
// single sequential conversation; two requests racing on one thread
// would interleave state writes, so the second is rejected up front.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ikaris-ai/ikaris/internal/circuitbreaker"
	"github.com/ikaris-ai/ikaris/internal/metrics"
)

// ErrSessionBusy is returned when the thread already has an invocation
// in flight.
var ErrSessionBusy = errors.New("session busy: an invocation is already running for this thread")

const busyKeyPrefix = "ikaris:busy:"

// Config holds busy-guard settings. With Redis disabled the guard
// falls back to an in-process lock, which is correct for a single
// instance.
type Config struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Password string        `mapstructure:"password" yaml:"password"`
	DB       int           `mapstructure:"db" yaml:"db"`
	BusyTTL  time.Duration `mapstructure:"busy_ttl" yaml:"busy_ttl"`
}

// Guard grants at most one in-flight invocation per thread. The Redis
// lock carries a TTL so a crashed process cannot wedge a thread
// forever.
type Guard struct {
	rdb    *circuitbreaker.RedisWrapper
	ttl    time.Duration
	logger *zap.Logger

	mu    sync.Mutex
	local map[string]bool
}

// NewGuard builds a guard. Addr defaults to the local Redis.
func NewGuard(cfg Config, logger *zap.Logger) *Guard {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.BusyTTL == 0 {
		cfg.BusyTTL = 5 * time.Minute
	}

	g := &Guard{ttl: cfg.BusyTTL, logger: logger, local: make(map[string]bool)}
	if cfg.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		g.rdb = circuitbreaker.NewRedisWrapper(client, logger)
	}
	return g
}

// NewGuardWithClient wraps an existing Redis client. Used by tests.
func NewGuardWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Guard {
	return &Guard{
		rdb:    circuitbreaker.NewRedisWrapper(client, logger),
		ttl:    ttl,
		logger: logger,
		local:  make(map[string]bool),
	}
}

// Acquire claims the thread. It returns a release func on success and
// ErrSessionBusy when another invocation holds the claim.
func (g *Guard) Acquire(ctx context.Context, threadID string) (func(), error) {
	if g.rdb == nil {
		return g.acquireLocal(threadID)
	}

	key := busyKeyPrefix + threadID
	ok, err := g.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		metrics.SessionBusyRejections.Inc()
		return nil, ErrSessionBusy
	}

	metrics.SessionsActive.Inc()
	released := false
	return func() {
		if released {
			return
		}
		released = true
		metrics.SessionsActive.Dec()
		// Release outlives the request context.
		if err := g.rdb.Del(context.Background(), key).Err(); err != nil {
			g.logger.Warn("Session lock release failed, TTL will expire it",
				zap.String("thread_id", threadID),
				zap.Error(err),
			)
		}
	}, nil
}

func (g *Guard) acquireLocal(threadID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.local[threadID] {
		metrics.SessionBusyRejections.Inc()
		return nil, ErrSessionBusy
	}
	g.local[threadID] = true
	metrics.SessionsActive.Inc()

	released := false
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if released {
			return
		}
		released = true
		metrics.SessionsActive.Dec()
		delete(g.local, threadID)
	}, nil
}

// Close shuts the Redis connection down when one exists.
func (g *Guard) Close() error {
	if g.rdb == nil {
		return nil
	}
	return g.rdb.Close()
}
