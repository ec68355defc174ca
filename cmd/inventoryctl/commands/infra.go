package commands

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/easy-inventory/internal/adapter/storage"
	"github.com/rl1809/easy-inventory/internal/config"
)

// openDatabase connects and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.Config) (*sql.DB, storage.Dialect, error) {
	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, "", err
	}
	db, err := storage.Open(ctx, dialect, cfg.DBDSN)
	if err != nil {
		return nil, "", fmt.Errorf("connect %s: %w", dialect, err)
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("migrate %s: %w", dialect, err)
	}
	logf("connected to %s", dialect)
	return db, dialect, nil
}

func openRedis(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logf("connected to redis at %s", cfg.RedisAddr)
	return rdb, nil
}
