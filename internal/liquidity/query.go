package liquidity

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// Pool returns the committed pool state.
func (s *Service) Pool(ctx context.Context) (State, error) {
	var state State
	err := s.host.View(ctx, func(tx Tx) error {
		var err error
		state, err = tx.LoadPool(ctx)
		return err
	})
	return state, err
}

// Rate samples the oracle.
func (s *Service) Rate(ctx context.Context) (Rate, error) {
	return s.rate(ctx)
}

// Position is an account's holdings and the current value of its shares.
type Position struct {
	Account    solana.PublicKey `json:"account"`
	WSOL       uint64           `json:"wsol"`
	StSOL      uint64           `json:"stsol"`
	Shares     uint64           `json:"shares"`
	Redeemable string           `json:"redeemable_wsol"`
	Rate       Rate             `json:"rate"`
}

// Position reads balances and values the account's shares at the current rate.
func (s *Service) Position(ctx context.Context, account solana.PublicKey) (Position, error) {
	rate, err := s.rate(ctx)
	if err != nil {
		return Position{}, err
	}
	pos := Position{Account: account, Rate: rate}
	err = s.host.View(ctx, func(tx Tx) error {
		state, err := tx.LoadPool(ctx)
		if err != nil {
			return err
		}
		if pos.WSOL, err = tx.Balance(ctx, account, AssetWSOL); err != nil {
			return err
		}
		if pos.StSOL, err = tx.Balance(ctx, account, AssetStSOL); err != nil {
			return err
		}
		if pos.Shares, err = tx.Balance(ctx, account, AssetLP); err != nil {
			return err
		}
		pos.Redeemable = state.Redeemable(pos.Shares, rate).Dec()
		return nil
	})
	if err != nil {
		return Position{}, err
	}
	return pos, nil
}

// QuoteAddLiquidity prices a deposit without executing it.
func (s *Service) QuoteAddLiquidity(ctx context.Context, depositor solana.PublicKey, amount uint64) (Receipt, error) {
	return s.quote(ctx, func(state State) (Plan, error) {
		rate, err := s.rate(ctx)
		if err != nil {
			return Plan{}, err
		}
		return PlanAddLiquidity(state, depositor, amount, rate)
	})
}

// QuoteRemoveLiquidity prices a redemption without executing it.
func (s *Service) QuoteRemoveLiquidity(ctx context.Context, holder solana.PublicKey, shares uint64) (Receipt, error) {
	return s.quote(ctx, func(state State) (Plan, error) {
		return PlanRemoveLiquidity(state, holder, shares)
	})
}

// QuoteSellStSOL prices a sale without executing it.
func (s *Service) QuoteSellStSOL(ctx context.Context, seller solana.PublicKey, amount uint64) (Receipt, error) {
	return s.quote(ctx, func(state State) (Plan, error) {
		rate, err := s.rate(ctx)
		if err != nil {
			return Plan{}, err
		}
		return PlanSellStSOL(state, seller, amount, rate)
	})
}

func (s *Service) quote(ctx context.Context, plan func(State) (Plan, error)) (Receipt, error) {
	var receipt Receipt
	err := s.host.View(ctx, func(tx Tx) error {
		state, err := tx.LoadPool(ctx)
		if err != nil {
			return err
		}
		p, err := plan(state)
		if err != nil {
			return err
		}
		receipt = p.Receipt()
		return nil
	})
	return receipt, err
}

// Fund mints wSOL or stSOL into account. It exists for development ledgers.
func (s *Service) Fund(ctx context.Context, account solana.PublicKey, asset AssetKind, amount uint64) (uint64, error) {
	if asset != AssetWSOL && asset != AssetStSOL {
		return 0, fmt.Errorf("cannot fund %s", asset)
	}
	if amount == 0 {
		return 0, newError(KindZeroAmount, "fund", "")
	}

	var balance uint64
	err := s.host.Update(ctx, func(tx Tx) error {
		if err := tx.Mint(ctx, account, amount, asset); err != nil {
			return err
		}
		var err error
		balance, err = tx.Balance(ctx, account, asset)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info("account funded",
		zap.String("account", account.String()),
		zap.Stringer("asset", asset),
		zap.Uint64("amount", amount),
		zap.Uint64("balance", balance),
	)
	return balance, nil
}

// AuditReport compares pool state with ledger balances.
type AuditReport struct {
	State        State    `json:"state"`
	VaultWSOL    uint64   `json:"vault_wsol"`
	VaultStSOL   uint64   `json:"vault_stsol"`
	LedgerLP     uint64   `json:"ledger_lp_supply"`
	SurplusWSOL  uint64   `json:"surplus_wsol"`
	SurplusStSOL uint64   `json:"surplus_stsol"`
	Problems     []string `json:"problems,omitempty"`
}

// OK reports whether the audit found no problems. Surplus is not a problem.
func (r AuditReport) OK() bool {
	return len(r.Problems) == 0
}

// Audit re-checks the state invariants against the ledger. Vault balances may
// exceed reserves through direct donations; they must never fall short.
func (s *Service) Audit(ctx context.Context) (AuditReport, error) {
	var report AuditReport
	err := s.host.View(ctx, func(tx Tx) error {
		state, err := tx.LoadPool(ctx)
		if err != nil {
			return err
		}
		report.State = state
		if err := state.CheckInvariants(); err != nil {
			report.Problems = append(report.Problems, err.Error())
		}

		vault := state.Accounts.Vault
		if report.VaultWSOL, err = tx.Balance(ctx, vault, AssetWSOL); err != nil {
			return err
		}
		if report.VaultStSOL, err = tx.Balance(ctx, vault, AssetStSOL); err != nil {
			return err
		}
		if report.LedgerLP, err = tx.Supply(ctx, AssetLP); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	st := report.State
	if report.VaultWSOL < st.WSOLReserve {
		report.Problems = append(report.Problems, fmt.Sprintf("vault wSOL %d below reserve %d", report.VaultWSOL, st.WSOLReserve))
	} else {
		report.SurplusWSOL = report.VaultWSOL - st.WSOLReserve
	}
	if report.VaultStSOL < st.StSOLReserve {
		report.Problems = append(report.Problems, fmt.Sprintf("vault stSOL %d below reserve %d", report.VaultStSOL, st.StSOLReserve))
	} else {
		report.SurplusStSOL = report.VaultStSOL - st.StSOLReserve
	}
	if report.LedgerLP != st.LPSupply {
		report.Problems = append(report.Problems, fmt.Sprintf("ledger LP supply %d differs from lp_supply %d", report.LedgerLP, st.LPSupply))
	}

	if !report.OK() {
		s.logger.Warn("audit found problems", zap.Strings("problems", report.Problems))
	}
	return report, nil
}
