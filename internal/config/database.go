package config

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	connectAttempts = 3
	connectInterval = 2 * time.Second
)

// NewDatabasePool creates a PostgreSQL connection pool for the ledger.
// The connection is retried a few times since the database often starts
// alongside the archiver.
func NewDatabasePool(ctx context.Context, config *Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	dbConfig, err := config.ParseDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(dbConfig.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = dbConfig.MaxConns
	poolConfig.MinConns = dbConfig.MinConns
	poolConfig.MaxConnLifetime = dbConfig.MaxConnLifetime
	poolConfig.MaxConnIdleTime = dbConfig.MaxConnIdleTime

	for attempt := 1; ; attempt++ {
		pool, err := connectPool(ctx, poolConfig)
		if err == nil {
			log.Info().Str("host", dbConfig.Host).Str("db", dbConfig.DBName).Msg("database connected")
			return pool, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", connectAttempts).Msg("database connection failed")
		if attempt >= connectAttempts {
			return nil, fmt.Errorf("database connection failed after %d attempts: %w", connectAttempts, err)
		}

		select {
		case <-time.After(connectInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func connectPool(ctx context.Context, poolConfig *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// CloseDatabasePool gracefully closes the database connection pool
func CloseDatabasePool(pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
}

// NewRedisClient connects to the ledger's Redis instance
func NewRedisClient(ctx context.Context, config *Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.Ledger.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return rdb, nil
}
