package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "metapool",
		Short:         "wSOL/stSOL liquidity pool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(
		newInitCmd(),
		newAddLiquidityCmd(),
		newRemoveLiquidityCmd(),
		newSellStSOLCmd(),
		newQuoteCmd(),
		newFundCmd(),
		newStatusCmd(),
		newAuditCmd(),
		newServeCmd(),
		newAggregateCmd(),
	)
	return root
}

// addPoolFlags registers the flags every command that opens the pool accepts.
func addPoolFlags(flags *pflag.FlagSet) {
	flags.String("backend", "file", "pool backend (memory, file, postgres)")
	flags.String("state-file", "./data/pool.json", "pool state file for the file backend")
	flags.String("pg-dsn", "", "Postgres DSN for the postgres backend")
	flags.String("pool", "metapool", "pool name")
	flags.String("journal", "./data/operations.jsonl", "operation journal JSONL path (empty disables)")
	flags.String("redis-addr", "", "Redis address for publishing operations")
	flags.String("rpc", "", "Solana RPC URL")
	flags.String("stake-pool", "", "staking pool account read for the stSOL rate")
	flags.String("rate", "1", "fixed stSOL to wSOL rate (N/D or decimal) when no stake pool is set")
	flags.Duration("rate-ttl", 30*time.Second, "rate cache TTL (0 disables)")
	flags.Int("max-retries", 5, "maximum RPC retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial RPC retry backoff")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
