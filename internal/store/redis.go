package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis store.
type RedisConfig struct {
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisStore keeps each run as a JSON blob with an expiry.
type RedisStore struct {
	client *redis.Client
	config RedisConfig
	logger *zap.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, cfg RedisConfig, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "sectorintel"
	}
	return &RedisStore{client: client, config: cfg, logger: logger}
}

// SaveRun writes the run and points the latest key at it.
func (s *RedisStore) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" || run.ID == LatestRunID {
		return fmt.Errorf("invalid run id %q", run.ID)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.runKey(run.ID), data, s.config.TTL)
	pipe.Set(ctx, s.latestKey(), run.ID, s.config.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	s.logger.Debug("Saved run",
		zap.String("run_id", run.ID),
		zap.Int("indicators", len(run.Indicators)),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// LoadRun reads a run, resolving LatestRunID first.
func (s *RedisStore) LoadRun(ctx context.Context, id string) (Run, error) {
	if id == LatestRunID {
		latest, err := s.client.Get(ctx, s.latestKey()).Result()
		if errors.Is(err, redis.Nil) {
			return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return Run{}, fmt.Errorf("failed to resolve latest run: %w", err)
		}
		id = latest
	}

	data, err := s.client.Get(ctx, s.runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return Run{}, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return run, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) runKey(id string) string {
	return fmt.Sprintf("%s:run:%s", s.config.KeyPrefix, id)
}

func (s *RedisStore) latestKey() string {
	return fmt.Sprintf("%s:run:%s", s.config.KeyPrefix, LatestRunID)
}
