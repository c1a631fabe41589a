package store

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lvonguyen/sectorintel/internal/config"
)

// NewRedisClient creates a client from the Redis settings. The password is
// read from the configured environment variable.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: os.Getenv(cfg.PasswordEnv),
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

// Open creates the store selected by cfg.Store.Backend. client is used by the
// redis backend and created from cfg.Redis when nil.
func Open(ctx context.Context, cfg *config.Config, client *redis.Client, logger *zap.Logger) (Store, error) {
	switch cfg.Store.Backend {
	case "", "memory":
		return NewMemoryStore(), nil

	case "redis":
		if client == nil {
			client = NewRedisClient(cfg.Redis)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return NewRedisStore(client, RedisConfig{
			KeyPrefix: cfg.Store.KeyPrefix,
			TTL:       cfg.Store.TTL,
		}, logger), nil

	case "postgres":
		dsn := os.Getenv(cfg.Postgres.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("postgres DSN not found in env var %s", cfg.Postgres.DSNEnv)
		}
		return OpenPostgres(dsn, logger)

	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}
}
