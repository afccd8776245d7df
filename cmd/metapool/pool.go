package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"metapool/internal/config"
	"metapool/internal/liquidity"
)

// poolCommand loads config, opens the backend, and runs fn with the service.
func poolCommand(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, b *backend, logger *zap.Logger) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, logger, err := loadCommand(ctx, cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer b.Close()

	return fn(ctx, cfg, b, logger)
}

func sourceFlag(cmd *cobra.Command) (solana.PublicKey, error) {
	raw, _ := cmd.Flags().GetString("source")
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("--source is required")
	}
	return config.ParseAccount(raw)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"create-liquidity-pool"},
		Short:   "Create the pool and its vault and LP mint accounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return poolCommand(cmd, func(ctx context.Context, cfg config.Config, b *backend, _ *zap.Logger) error {
				var authority solana.PublicKey
				if cfg.Authority != "" {
					var err error
					if authority, err = config.ParseAccount(cfg.Authority); err != nil {
						return err
					}
				} else {
					key, err := solana.NewRandomPrivateKey()
					if err != nil {
						return fmt.Errorf("generate authority: %w", err)
					}
					authority = key.PublicKey()
				}

				state, err := b.svc.CreatePool(ctx, authority, cfg.FeeNumerator, cfg.FeeDenominator)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), state)
			})
		},
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("authority", "", "pool authority account (random when empty)")
	cmd.Flags().Uint32("fee-numerator", liquidity.DefaultFeeNumerator, "sell fee numerator")
	cmd.Flags().Uint32("fee-denominator", liquidity.DefaultFeeDenominator, "sell fee denominator")
	return cmd
}

// operationCmd builds one of the amount-taking pool commands.
func operationCmd(use, short string, run func(svc *liquidity.Service, ctx context.Context, source solana.PublicKey, amount uint64) (liquidity.Receipt, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <amount>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := config.ParseAmount(args[0])
			if err != nil {
				return err
			}
			source, err := sourceFlag(cmd)
			if err != nil {
				return err
			}
			return poolCommand(cmd, func(ctx context.Context, _ config.Config, b *backend, _ *zap.Logger) error {
				receipt, err := run(b.svc, ctx, source, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("source", "", "account that pays and receives")
	return cmd
}

func newAddLiquidityCmd() *cobra.Command {
	return operationCmd("add-liquidity", "Deposit wSOL and mint LP shares", (*liquidity.Service).AddLiquidity)
}

func newRemoveLiquidityCmd() *cobra.Command {
	return operationCmd("remove-liquidity", "Burn LP shares for a pro-rata cut of both reserves", (*liquidity.Service).RemoveLiquidity)
}

func newSellStSOLCmd() *cobra.Command {
	return operationCmd("sell-stsol", "Sell stSOL to the pool for wSOL less the fee", (*liquidity.Service).SellStSOL)
}

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <add-liquidity|remove-liquidity|sell-stsol> <amount>",
		Short: "Price an operation without executing it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := config.ParseAmount(args[1])
			if err != nil {
				return err
			}
			var source solana.PublicKey
			if raw, _ := cmd.Flags().GetString("source"); raw != "" {
				if source, err = config.ParseAccount(raw); err != nil {
					return err
				}
			}
			return poolCommand(cmd, func(ctx context.Context, _ config.Config, b *backend, _ *zap.Logger) error {
				var receipt liquidity.Receipt
				switch args[0] {
				case "add-liquidity":
					receipt, err = b.svc.QuoteAddLiquidity(ctx, source, amount)
				case "remove-liquidity":
					receipt, err = b.svc.QuoteRemoveLiquidity(ctx, source, amount)
				case "sell-stsol":
					receipt, err = b.svc.QuoteSellStSOL(ctx, source, amount)
				default:
					return fmt.Errorf("unknown operation %q", args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), receipt)
			})
		},
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("source", "", "account the quote is for")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund <wsol|stsol> <amount>",
		Short: "Mint wSOL or stSOL into an account on a development ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			asset, err := liquidity.ParseAsset(args[0])
			if err != nil {
				return err
			}
			amount, err := config.ParseAmount(args[1])
			if err != nil {
				return err
			}
			source, err := sourceFlag(cmd)
			if err != nil {
				return err
			}
			return poolCommand(cmd, func(ctx context.Context, _ config.Config, b *backend, _ *zap.Logger) error {
				balance, err := b.svc.Fund(ctx, source, asset, amount)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"account": source,
					"asset":   asset.String(),
					"balance": balance,
				})
			})
		},
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("source", "", "account to fund")
	return cmd
}

type statusOutput struct {
	State    liquidity.State     `json:"state"`
	Rate     liquidity.Rate      `json:"rate"`
	Value    string              `json:"value_wsol"`
	Position *liquidity.Position `json:"position,omitempty"`
	Epoch    *uint64             `json:"epoch,omitempty"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show reserves, share supply, and pool value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return poolCommand(cmd, func(ctx context.Context, _ config.Config, b *backend, logger *zap.Logger) error {
				state, err := b.svc.Pool(ctx)
				if err != nil {
					return err
				}
				rate, err := b.svc.Rate(ctx)
				if err != nil {
					return err
				}
				out := statusOutput{State: state, Rate: rate, Value: state.Value(rate).Dec()}

				if raw, _ := cmd.Flags().GetString("source"); raw != "" {
					account, err := config.ParseAccount(raw)
					if err != nil {
						return err
					}
					pos, err := b.svc.Position(ctx, account)
					if err != nil {
						return err
					}
					out.Position = &pos
				}

				if b.chain != nil {
					epoch, err := b.chain.CurrentEpoch(ctx)
					if err != nil {
						logger.Warn("read epoch", zap.Error(err))
					} else {
						out.Epoch = &epoch
					}
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	addPoolFlags(cmd.Flags())
	cmd.Flags().String("source", "", "also show this account's position")
	return cmd
}

// errAuditFailed reports that the audit found problems.
var errAuditFailed = errors.New("audit found problems")

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Check the pool record against ledger balances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return poolCommand(cmd, func(ctx context.Context, _ config.Config, b *backend, _ *zap.Logger) error {
				report, err := b.svc.Audit(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.OK() {
					return errAuditFailed
				}
				return nil
			})
		},
	}
	addPoolFlags(cmd.Flags())
	return cmd
}
