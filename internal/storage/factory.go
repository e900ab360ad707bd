package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bher20/ebillmanager/internal/logging"
)

// Config controls how the storage backend is opened.
type Config struct {
	Driver string
	DSN    string
	// AutoMigrate runs gorm's AutoMigrate on open. Disable it when the
	// schema is managed with goose.
	AutoMigrate bool
}

// Backend is what Open returns: records plus job coordination.
type Backend interface {
	Storage
	JobLocker
}

// Open constructs a storage backend based on the given configuration.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	log := logging.Named("storage")
	drv := cfg.Driver
	if drv == "" {
		drv = "memory"
	}
	switch drv {
	case "memory":
		log.Info("using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Info("using gorm backend", zap.String("driver", drv))
		return openGorm(ctx, drv, cfg)

	case "postgrespool":
		log.Info("using gorm backend with pgx pool for job locks")
		st, err := openGorm(ctx, drv, cfg)
		if err != nil {
			return nil, err
		}
		pool, err := OpenPostgresPool(ctx, cfg.DSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open pool: %w", err)
		}
		return &PooledStorage{GormStorage: st, pool: pool}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}

func openGorm(ctx context.Context, drv string, cfg Config) (*GormStorage, error) {
	st, err := NewGormStorage(drv, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
	}
	return st, nil
}
