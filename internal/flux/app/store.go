package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/flux/internal/flux/credstore"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/drivers/memory"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/drivers/redis"
	"github.com/aussiebroadwan/flux/internal/flux/credstore/drivers/sqlite"
)

// openStore connects the configured credential store. For sqlite it also
// applies migrations and returns a housekeeper for the change log; the
// housekeeper is nil for the other drivers.
func openStore(ctx context.Context, cfg Config, logger *slog.Logger) (credstore.Store, *credstore.Housekeeper, error) {
	switch cfg.Store {
	case StoreMemory:
		return memory.NewStore(), nil, nil

	case StoreRedis:
		st, err := redis.NewStore(ctx, redis.Options{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Debug("credential store ready", "driver", StoreRedis, "addr", cfg.RedisHost+":"+cfg.RedisPort)
		return st, nil, nil

	case StoreSQLite:
		st, err := sqlite.NewStore(sqlite.DSN(cfg.StoreFile), sqlite.WithPollInterval(cfg.StorePollInterval))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		if err := st.ApplyMigrations(); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("failed to apply database migrations: %w", err)
		}
		logger.Debug("credential store ready", "driver", StoreSQLite, "file", cfg.StoreFile)

		hk := credstore.NewHousekeeper(st, logger, cfg.HousekeepingInterval, cfg.EventRetention)
		return st, hk, nil
	}

	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
