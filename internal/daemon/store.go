package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/wpprelay/internal/config"
	"github.com/matheus3301/wpprelay/internal/paths"
	"github.com/matheus3301/wpprelay/internal/store"
	"github.com/matheus3301/wpprelay/internal/store/mongostore"
	"go.uber.org/zap"
)

// OpenStore opens the store selected by cfg. A SQLite store that cannot be
// opened is an error. An unreachable MongoDB deployment is not: the relay
// starts degraded on the disconnected client and recovers when it answers.
// Driver "none" runs on store.Unavailable for good.
func OpenStore(ctx context.Context, cfg config.StoreConfig, dataDir string, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		dbPath := cfg.Path
		if dbPath == "" {
			dbPath = paths.DBPath(dataDir)
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, err
		}
		result, err := db.Migrate()
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if result.Changed {
			logger.Info("migrations applied", zap.Uint("version", result.Version))
		} else {
			logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		logger.Info("store initialized", zap.String("driver", cfg.Driver), zap.String("path", dbPath))
		return db, nil

	case config.DriverMongo:
		ms, err := mongostore.Open(ctx, mongostore.Options{
			URI:            cfg.URI,
			Database:       cfg.Database,
			Collection:     cfg.Collection,
			ConnectTimeout: cfg.ConnectTimeout.Duration,
		})
		switch {
		case ms == nil:
			logger.Warn("mongodb client unusable, starting degraded", zap.Error(err))
			return store.Unavailable{Reason: err}, nil
		case err != nil:
			// The client reconnects by itself; health checks move the relay
			// to ready and create the index once the server answers.
			logger.Warn("mongodb unreachable, starting degraded", zap.Error(err))
		default:
			if err := ms.EnsureIndexes(ctx); err != nil {
				logger.Warn("ensure indexes failed", zap.Error(err))
			}
		}
		logger.Info("store initialized", zap.String("driver", cfg.Driver),
			zap.String("database", cfg.Database), zap.String("collection", cfg.Collection))
		return ms, nil

	case config.DriverNone:
		logger.Warn("store disabled, serving from payloads only")
		return store.Unavailable{Reason: errors.New("store disabled by configuration")}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
