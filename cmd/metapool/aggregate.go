package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metapool/internal/aggregate"
	"metapool/internal/config"
	"metapool/internal/storage/postgres"
)

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the operation journal into window metrics",
		Args:  cobra.NoArgs,
		RunE:  runAggregate,
	}
	cmd.Flags().String("journal", "./data/operations.jsonl", "input operation journal JSONL")
	cmd.Flags().String("pool", "", "only aggregate this pool")
	cmd.Flags().Duration("window", 0, "aggregation window (e.g. 5m, 1h)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	cmd.Flags().String("state", "", "optional local state file for progress tracking")
	cmd.Flags().Uint64("recompute-from", 0, "recompute from this sequence")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func runAggregate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadAggregate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	windowSeconds := cfg.WindowSeconds()
	var checkpoints aggregate.CheckpointStore
	if cfg.State != "" {
		checkpoints = &aggregate.FileCheckpoints{Path: cfg.State}
	} else {
		checkpoints = &aggregate.DBCheckpoints{Store: store, Name: aggregate.CheckpointName(cfg.Pool, windowSeconds)}
	}

	agg := aggregate.NewAggregator(aggregate.Config{
		WindowSeconds: windowSeconds,
		BatchSize:     cfg.BatchSize,
		RecomputeFrom: cfg.RecomputeFrom,
		Pool:          cfg.Pool,
		Checkpoints:   checkpoints,
	}, store, logger)

	logger.Info("aggregate start",
		zap.String("journal", cfg.Journal),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.Uint64("window_seconds", windowSeconds),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Uint64("recompute_from", cfg.RecomputeFrom),
	)

	_, err = agg.Run(ctx, cfg.Journal)
	return err
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
