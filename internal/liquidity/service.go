package liquidity

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"metapool/internal/model"
)

const (
	vaultSeed  = "metapool-vault"
	lpMintSeed = "metapool-lp-mint"
)

// ServiceConfig controls a Service.
type ServiceConfig struct {
	// Pool names the pool in journal records.
	Pool     string
	Journals []Journal
	Now      func() time.Time
}

// Service runs pool operations against a host.
type Service struct {
	cfg    ServiceConfig
	host   Host
	oracle Oracle
	logger *zap.Logger
	halted atomic.Bool
}

func NewService(cfg ServiceConfig, host Host, oracle Oracle, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		cfg:    cfg,
		host:   host,
		oracle: oracle,
		logger: logger,
	}
}

// DeriveAccounts returns the vault and LP mint addresses owned by authority.
func DeriveAccounts(authority solana.PublicKey) (Accounts, error) {
	vault, err := solana.CreateWithSeed(authority, vaultSeed, solana.TokenProgramID)
	if err != nil {
		return Accounts{}, fmt.Errorf("derive vault: %w", err)
	}
	lpMint, err := solana.CreateWithSeed(authority, lpMintSeed, solana.TokenProgramID)
	if err != nil {
		return Accounts{}, fmt.Errorf("derive lp mint: %w", err)
	}
	return Accounts{Authority: authority, Vault: vault, LPMint: lpMint}, nil
}

// Halted reports whether the service refuses mutations after an invariant violation.
func (s *Service) Halted() bool {
	return s.halted.Load()
}

// CreatePool writes the empty pool state.
func (s *Service) CreatePool(ctx context.Context, authority solana.PublicKey, feeNumerator, feeDenominator uint32) (State, error) {
	if authority.IsZero() {
		return State{}, fmt.Errorf("authority is required")
	}
	accounts, err := DeriveAccounts(authority)
	if err != nil {
		return State{}, err
	}
	initial, err := NewState(accounts, feeNumerator, feeDenominator)
	if err != nil {
		return State{}, err
	}

	err = s.host.Update(ctx, func(tx Tx) error {
		if err := tx.CreatePool(ctx, initial); err != nil {
			return err
		}
		if rec, ok := tx.(Recorder); ok {
			return rec.RecordOperation(ctx, s.createRecord(initial))
		}
		return nil
	})
	if err != nil {
		return State{}, err
	}

	s.publish(ctx, s.createRecord(initial))
	s.logger.Info("pool created",
		zap.String("authority", authority.String()),
		zap.String("vault", accounts.Vault.String()),
		zap.String("lp_mint", accounts.LPMint.String()),
		zap.Uint32("fee_numerator", feeNumerator),
		zap.Uint32("fee_denominator", feeDenominator),
	)
	return initial, nil
}

func (s *Service) createRecord(initial State) model.OperationRecord {
	return model.OperationRecord{
		Sequence:  initial.Sequence,
		Pool:      s.cfg.Pool,
		Operation: model.OpCreatePool,
		Account:   initial.Accounts.Authority.String(),
		Timestamp: uint64(s.cfg.Now().Unix()),
	}
}

// AddLiquidity deposits wSOL from depositor and mints LP shares to it.
func (s *Service) AddLiquidity(ctx context.Context, depositor solana.PublicKey, amount uint64) (Receipt, error) {
	const op = model.OpAddLiquidity
	return s.mutate(ctx, op, func(tx Tx, state State) (Plan, error) {
		if amount == 0 {
			return Plan{}, newError(KindZeroAmount, op, "")
		}
		if err := requireExternal(state, op, depositor); err != nil {
			return Plan{}, err
		}
		if err := requireBalance(ctx, tx, op, depositor, AssetWSOL, amount, KindInsufficientBalance); err != nil {
			return Plan{}, err
		}
		rate, err := s.rate(ctx)
		if err != nil {
			return Plan{}, err
		}
		return PlanAddLiquidity(state, depositor, amount, rate)
	})
}

// RemoveLiquidity burns shares from holder and pays out its proportional reserves.
func (s *Service) RemoveLiquidity(ctx context.Context, holder solana.PublicKey, shares uint64) (Receipt, error) {
	const op = model.OpRemoveLiquidity
	return s.mutate(ctx, op, func(tx Tx, state State) (Plan, error) {
		if shares == 0 {
			return Plan{}, newError(KindZeroAmount, op, "")
		}
		if err := requireExternal(state, op, holder); err != nil {
			return Plan{}, err
		}
		if err := requireBalance(ctx, tx, op, holder, AssetLP, shares, KindInsufficientShares); err != nil {
			return Plan{}, err
		}
		return PlanRemoveLiquidity(state, holder, shares)
	})
}

// SellStSOL exchanges stSOL from seller for wSOL from the pool, less the fee.
func (s *Service) SellStSOL(ctx context.Context, seller solana.PublicKey, amount uint64) (Receipt, error) {
	const op = model.OpSellStSOL
	return s.mutate(ctx, op, func(tx Tx, state State) (Plan, error) {
		if amount == 0 {
			return Plan{}, newError(KindZeroAmount, op, "")
		}
		if err := requireExternal(state, op, seller); err != nil {
			return Plan{}, err
		}
		if err := requireBalance(ctx, tx, op, seller, AssetStSOL, amount, KindInsufficientBalance); err != nil {
			return Plan{}, err
		}
		rate, err := s.rate(ctx)
		if err != nil {
			return Plan{}, err
		}
		return PlanSellStSOL(state, seller, amount, rate)
	})
}

func (s *Service) mutate(ctx context.Context, op string, plan func(Tx, State) (Plan, error)) (Receipt, error) {
	if s.halted.Load() {
		return Receipt{}, newError(KindHalted, op, "pool halted after invariant violation")
	}

	var (
		receipt Receipt
		record  model.OperationRecord
	)
	err := s.host.Update(ctx, func(tx Tx) error {
		state, err := tx.LoadPool(ctx)
		if err != nil {
			return err
		}
		p, err := plan(tx, state)
		if err != nil {
			return err
		}
		if err := execute(ctx, tx, p.Steps); err != nil {
			return err
		}
		if err := tx.StorePool(ctx, p.Next); err != nil {
			return err
		}

		receipt = p.Receipt()
		record = receipt.Record(s.cfg.Pool, uint64(s.cfg.Now().Unix()))
		if rec, ok := tx.(Recorder); ok {
			return rec.RecordOperation(ctx, record)
		}
		return nil
	})
	if err != nil {
		kind := KindOf(err)
		if kind.Fatal() {
			s.halted.Store(true)
			s.logger.Error("invariant violated, halting pool", zap.String("operation", op), zap.Error(err))
		} else {
			s.logger.Warn("operation rejected", zap.String("operation", op), zap.Stringer("kind", kind), zap.Error(err))
		}
		return Receipt{}, err
	}

	s.publish(ctx, record)
	s.logger.Info("operation committed",
		zap.String("operation", op),
		zap.String("account", receipt.Account.String()),
		zap.Uint64("amount", receipt.Amount),
		zap.Uint64("sequence", receipt.After.Sequence),
		zap.Uint64("wsol_reserve", receipt.After.WSOLReserve),
		zap.Uint64("stsol_reserve", receipt.After.StSOLReserve),
		zap.Uint64("lp_supply", receipt.After.LPSupply),
	)
	return receipt, nil
}

func (s *Service) rate(ctx context.Context) (Rate, error) {
	if s.oracle == nil {
		return Rate{}, newError(KindInvalidRate, "", "no oracle configured")
	}
	rate, err := s.oracle.StSOLToWSOLRate(ctx)
	if err != nil {
		return Rate{}, fmt.Errorf("read rate: %w", err)
	}
	if err := rate.Validate(); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

func (s *Service) publish(ctx context.Context, record model.OperationRecord) {
	for _, journal := range s.cfg.Journals {
		if err := journal.PutOperationBatch(ctx, []model.OperationRecord{record}); err != nil {
			s.logger.Warn("journal write failed",
				zap.String("operation", record.Operation),
				zap.Uint64("sequence", record.Sequence),
				zap.Error(err),
			)
		}
	}
}

// Pool accounts cannot be counterparties: a vault-to-vault transfer moves
// nothing while the reserve delta still applies.
func requireExternal(state State, op string, account solana.PublicKey) error {
	if state.Accounts.Owns(account) {
		return newError(KindPoolOwnedAccount, op, account.String())
	}
	return nil
}

func requireBalance(ctx context.Context, tx Tx, op string, account solana.PublicKey, asset AssetKind, amount uint64, kind Kind) error {
	balance, err := tx.Balance(ctx, account, asset)
	if err != nil {
		return err
	}
	if balance < amount {
		return amountError(kind, op, asset, amount, balance)
	}
	return nil
}

func execute(ctx context.Context, tx Tx, steps []Step) error {
	for _, step := range steps {
		var err error
		switch step.Kind {
		case StepTransfer:
			err = tx.Transfer(ctx, step.From, step.To, step.Amount, step.Asset)
		case StepMint:
			err = tx.Mint(ctx, step.To, step.Amount, step.Asset)
		case StepBurn:
			err = tx.Burn(ctx, step.From, step.Amount, step.Asset)
		default:
			err = newError(KindInvariantViolated, "", fmt.Sprintf("unknown step kind %d", step.Kind))
		}
		if err != nil {
			return err
		}
	}
	return nil
}
