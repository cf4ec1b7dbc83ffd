package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/geosocial/proximity/internal/config"
	"github.com/geosocial/proximity/internal/store/postgres"
	"github.com/geosocial/proximity/internal/store/sqlite"
	"github.com/geosocial/proximity/internal/store/sqlstore"
)

// NewStore opens the store selected by cfg.DBDriver.
// Postgres schema setup runs asynchronously so startup is not blocked;
// SQLite is local and migrates synchronously.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sqlstore.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return newPostgresStore(ctx, cfg, log)
	case "sqlite":
		return newSQLiteStore(ctx, cfg, log)
	}
	return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
}

func newPostgresStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sqlstore.Store, error) {
	dsn := cfg.PostgresDSN
	if dsn == "" {
		return nil, fmt.Errorf("PROXIMITY_POSTGRES_DSN is required when DB_DRIVER=postgres")
	}

	// Open connection synchronously since health checks need it immediately
	db, err := postgres.Open(dsn)
	if err != nil {
		return nil, err
	}

	// Async bootstrap with configurable timeout; don't block startup
	go func() {
		bootstrapTimeout := time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second
		bootstrapCtx, cancel := context.WithTimeout(ctx, bootstrapTimeout)
		defer cancel()

		if err := postgres.Bootstrap(bootstrapCtx, dsn, cfg.AutoMigrate); err != nil {
			log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store bootstrap failed")
		} else {
			log.Debug().Str("driver", cfg.DBDriver).Bool("migrate", cfg.AutoMigrate).Msg("store bootstrap completed")
		}
	}()

	return postgres.NewWithDB(db), nil
}

func newSQLiteStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sqlstore.Store, error) {
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	s := sqlite.NewWithDB(db)
	if cfg.AutoMigrate {
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	log.Debug().Str("path", cfg.SQLitePath).Msg("sqlite store ready")
	return s, nil
}
