package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fairytale-server/internal/config"
	"fairytale-server/internal/interfaces"
)

const (
	connectAttempts = 5
	connectDelay    = 2 * time.Second
)

// NewStoryRepository выбирает реализацию хранилища по STORAGE_BACKEND.
// Выбор делается один раз при старте процесса.
func NewStoryRepository(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (interfaces.StoryRepository, error) {
	switch strings.ToLower(cfg.Backend) {
	case "file":
		logger.Info("Using file story storage", zap.String("dir", cfg.FileDir))
		return NewFileStoryRepository(cfg.FileDir, logger)
	case "redis":
		client, err := NewRedisClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis story storage", zap.String("addr", cfg.RedisAddr))
		return NewRedisStoryRepository(client, cfg.RedisPrefix, cfg.RedisTTL, logger), nil
	case "postgres":
		pool, err := NewPgxPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		if cfg.RunMigrations {
			if err := NewMigrator(pool, logger).Up(ctx); err != nil {
				pool.Close()
				return nil, err
			}
		}
		logger.Info("Using PostgreSQL story storage", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
		return NewPgStoryRepository(pool, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// NewRedisClient подключается к Redis и проверяет соединение с повторами.
func NewRedisClient(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	var err error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			logger.Info("Connected to Redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
			return client, nil
		}
		logger.Warn("Redis ping failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < connectAttempts {
			select {
			case <-time.After(connectDelay):
			case <-ctx.Done():
				_ = client.Close()
				return nil, ctx.Err()
			}
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to Redis after %d attempts: %w", connectAttempts, err)
}

// NewPgxPool создает пул соединений PostgreSQL и проверяет его с повторами.
func NewPgxPool(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	if cfg.DBIdleTimeout > 0 {
		poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			logger.Info("Connected to PostgreSQL", zap.String("host", cfg.DBHost), zap.Int32("max_conns", poolConfig.MaxConns))
			return pool, nil
		}
		logger.Warn("PostgreSQL ping failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt < connectAttempts {
			select {
			case <-time.After(connectDelay):
			case <-ctx.Done():
				pool.Close()
				return nil, ctx.Err()
			}
		}
	}
	pool.Close()
	return nil, fmt.Errorf("failed to connect to PostgreSQL after %d attempts: %w", connectAttempts, err)
}
