// Package rediscache decorates a storage.Store with a Redis-backed
// leaderboard cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/storage"
)

// generationKey counts invalidations. Cached rows live under
// "tictactoe:leaderboard:<generation>:<limit>", each with its own TTL, so
// bumping the generation orphans every earlier entry at once.
const generationKey = "tictactoe:leaderboard:generation"

func leaderboardKey(generation int64, limit int) string {
	return fmt.Sprintf("tictactoe:leaderboard:%d:%d", generation, limit)
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

// Store serves GetLeaderboard from Redis and invalidates the cached rows on
// every write that can change them. All other calls go straight to the
// wrapped store. Redis failures are logged and never fail a call.
type Store struct {
	storage.Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New wraps next.
//
// Precondition: next, client and logger must be non-nil; ttl must be positive.
func New(next storage.Store, client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{Store: next, client: client, ttl: ttl, logger: logger}
}

// GetLeaderboard returns cached rows for limit when present, otherwise
// loads them from the wrapped store and caches them for the TTL. Rows loaded
// across an invalidation are cached under the superseded generation and are
// never served.
func (s *Store) GetLeaderboard(ctx context.Context, limit int) ([]storage.PlayerStats, error) {
	generation, err := s.client.Get(ctx, generationKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		s.logger.Warn("leaderboard cache read failed", zap.Error(err))
		return s.Store.GetLeaderboard(ctx, limit)
	}
	key := leaderboardKey(generation, limit)

	raw, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rows []storage.PlayerStats
		if jerr := json.Unmarshal(raw, &rows); jerr == nil {
			return rows, nil
		}
		s.logger.Warn("discarding corrupt leaderboard cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		s.logger.Warn("leaderboard cache read failed", zap.Error(err))
	}

	rows, err := s.Store.GetLeaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	s.put(ctx, key, rows)
	return rows, nil
}

func (s *Store) put(ctx context.Context, key string, rows []storage.PlayerStats) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn("leaderboard cache write failed", zap.Error(err))
	}
}

// Invalidate retires every cached leaderboard by advancing the generation.
func (s *Store) Invalidate(ctx context.Context) {
	if err := s.client.Incr(ctx, generationKey).Err(); err != nil {
		s.logger.Warn("leaderboard cache invalidation failed", zap.Error(err))
	}
}

// CreateUser creates the user and invalidates the leaderboard, which lists
// every user.
func (s *Store) CreateUser(ctx context.Context, creds storage.Credentials) (storage.User, error) {
	u, err := s.Store.CreateUser(ctx, creds)
	if err != nil {
		return u, err
	}
	s.Invalidate(ctx)
	return u, nil
}

// UpdateUserStats records the outcome and invalidates the leaderboard.
func (s *Store) UpdateUserStats(ctx context.Context, userID int64, outcome storage.Outcome) (storage.User, error) {
	u, err := s.Store.UpdateUserStats(ctx, userID, outcome)
	if err != nil {
		return u, err
	}
	s.Invalidate(ctx)
	return u, nil
}
