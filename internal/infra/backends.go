package infra

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tokenledger/internal/chain"
	"github.com/congo-pay/tokenledger/internal/config"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/notification"
)

// Backends groups the storage, height and event collaborators selected by
// configuration. DB and Cache are nil when running on in-process fallbacks.
type Backends struct {
	DB         *pgxpool.Pool
	Cache      *redis.Client
	Repository ledger.Repository
	Height     chain.Advancer
	Sink       notification.Sink
}

// Connect opens the configured backends. An empty DATABASE_URL selects the
// in-memory repository and an empty REDIS_URL the in-process height counter.
func Connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}
	sinks := notification.Multi{notification.NewLoggerSink(logger)}

	if cfg.DatabaseURL != "" {
		pool, err := NewPostgresPool(ctx, cfg.DatabaseURL, cfg.AppName)
		if err != nil {
			return nil, err
		}
		b.DB = pool
		repo := ledger.NewPostgresRepository(pool)
		if err := repo.Migrate(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.Repository = repo
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger repository")
		b.Repository = ledger.NewMemoryRepository()
	}

	if cfg.RedisURL != "" {
		client, err := NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Cache = client
		b.Height = chain.NewRedisHeight(client, chain.DefaultHeightKey)
		sinks = append(sinks, notification.NewRedisSink(client, notification.DefaultChannel))
	} else {
		logger.Warn("REDIS_URL not set, using in-process block height")
		b.Height = chain.NewCounter(0)
	}
	b.Sink = sinks

	return b, nil
}

// Close releases the open connections.
func (b *Backends) Close() error {
	var errs []error
	if b.Cache != nil {
		errs = append(errs, b.Cache.Close())
	}
	if b.DB != nil {
		b.DB.Close()
	}
	return errors.Join(errs...)
}
