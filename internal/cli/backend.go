package cli

import (
	"context"
	"fmt"

	"github.com/banux/nxt-shelf/internal/backend/fs"
	"github.com/banux/nxt-shelf/internal/backend/kv"
	"github.com/banux/nxt-shelf/internal/backend/postgres"
	"github.com/banux/nxt-shelf/internal/backend/redis"
	"github.com/banux/nxt-shelf/internal/backend/sqlite"
	"github.com/banux/nxt-shelf/internal/catalog"
	"github.com/banux/nxt-shelf/internal/config"
	"github.com/banux/nxt-shelf/internal/logger"
)

// storage is a catalog backend holding a connection or file handle.
type storage interface {
	catalog.Backend
	Close() error
}

// openBackend builds the storage selected by cfg.Backend.
func openBackend(ctx context.Context, cfg config.Config, log logger.Logger) (storage, error) {
	switch cfg.Backend {
	case "fs":
		b, err := fs.NewBackend(cfg.DataDir, cfg.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("open fs store: %w", err)
		}
		log.Info("using fs backend", logger.String("dir", cfg.DataDir))
		return b, nil
	case "sqlite":
		b, err := sqlite.Open(ctx, cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		log.Info("using sqlite backend", logger.String("dir", cfg.DataDir))
		return b, nil
	case "postgres":
		b, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Info("using postgres backend")
		return b, nil
	case "redis":
		opts := redis.DefaultConnectOptions(cfg.RedisAddr)
		opts.Password = cfg.RedisPassword
		opts.DB = cfg.RedisDB
		client, err := redis.Connect(ctx, opts, log)
		if err != nil {
			return nil, err
		}
		return kv.New(redis.NewStore(client), cfg.StorageKey), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
