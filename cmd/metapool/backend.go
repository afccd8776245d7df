package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"metapool/internal/chain"
	"metapool/internal/config"
	"metapool/internal/ledger"
	"metapool/internal/liquidity"
	"metapool/internal/oracle"
	"metapool/internal/storage"
	"metapool/internal/storage/postgres"
	"metapool/internal/storage/redis"
)

// backend owns the service and everything it holds open.
type backend struct {
	svc     *liquidity.Service
	chain   *chain.Client
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	host, err := b.openHost(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	rate, err := b.openOracle(cfg, logger)
	if err != nil {
		return nil, err
	}

	var journals []liquidity.Journal
	if cfg.Journal != "" {
		journals = append(journals, storage.NewJsonlJournal(cfg.Journal))
	}
	if cfg.RedisAddr != "" {
		pub, err := redis.NewPublisher(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = pub.Close() })
		journals = append(journals, pub)
	}

	b.svc = liquidity.NewService(liquidity.ServiceConfig{
		Pool:     cfg.Pool,
		Journals: journals,
	}, host, rate, logger)

	ok = true
	return b, nil
}

func (b *backend) openHost(ctx context.Context, cfg config.Config, logger *zap.Logger) (liquidity.Host, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return ledger.NewMemoryHost(), nil
	case config.BackendFile:
		return storage.NewFileHost(cfg.StateFile)
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		logger.Debug("postgres backend ready", zap.String("pool", cfg.Pool))
		return store.Host(cfg.Pool), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func (b *backend) openOracle(cfg config.Config, logger *zap.Logger) (liquidity.Oracle, error) {
	var inner liquidity.Oracle
	if cfg.RPCURL != "" {
		client, err := chain.NewClient(cfg.RPCURL, chain.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBackoff,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connect rpc: %w", err)
		}
		b.chain = client
		b.closers = append(b.closers, func() { _ = client.Close() })
	}

	if cfg.StakePool != "" {
		address, err := config.ParseAccount(cfg.StakePool)
		if err != nil {
			return nil, fmt.Errorf("stake-pool: %w", err)
		}
		inner = oracle.NewStakePool(b.chain, address)
	} else {
		rate, err := config.ParseRate(cfg.Rate)
		if err != nil {
			return nil, fmt.Errorf("rate: %w", err)
		}
		fixed, err := oracle.NewFixed(rate)
		if err != nil {
			return nil, err
		}
		inner = fixed
	}

	guarded := oracle.NewMonotonic(inner, logger)
	if cfg.RateTTL <= 0 {
		return guarded, nil
	}
	return oracle.NewCached(guarded, cfg.RateTTL), nil
}

// loadCommand reads configuration and builds the logger and backend for a command.
func loadCommand(ctx context.Context, cfg config.Config) (*backend, *zap.Logger, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return b, logger, nil
}
