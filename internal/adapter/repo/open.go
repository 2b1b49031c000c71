package repo

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chatgate/internal/domain"
	"chatgate/internal/infra"
)

// OpenStore builds the UserStore selected by cfg.StoreDriver. The returned
// close func releases pools or handles and is never nil.
func OpenStore(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (domain.UserStore, func(), error) {
	noop := func() {}
	switch cfg.StoreDriver {
	case infra.StoreDriverFile:
		store, err := NewFileStore(cfg.StorePath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Str("path", store.Path()).Msg("user store ready")
		return store, noop, nil
	case infra.StoreDriverSQLite:
		store, err := NewSQLiteStore(cfg.StorePath)
		if err != nil {
			return nil, noop, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Str("path", cfg.StorePath).Msg("user store ready")
		return store, func() { _ = store.Close() }, nil
	case infra.StoreDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, noop, err
		}
		store := NewUserRepository(infra.NewSQLRunner(pool, logger))
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, noop, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Msg("user store ready")
		return store, pool.Close, nil
	case infra.StoreDriverMemory:
		logger.Warn().Str("driver", cfg.StoreDriver).Msg("user store is not persistent")
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}
