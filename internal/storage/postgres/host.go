package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"metapool/internal/liquidity"
	"metapool/internal/model"
)

const checkViolation = "23514"

// Host runs pool transactions inside Postgres transactions. The pool row is
// locked FOR UPDATE for the duration of every Update.
type Host struct {
	store *Store
	pool  string
}

// Host returns a host for the named pool.
func (s *Store) Host(pool string) *Host {
	return &Host{store: s, pool: pool}
}

func (h *Host) Update(ctx context.Context, fn func(liquidity.Tx) error) error {
	return pgx.BeginTxFunc(ctx, h.store.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&poolTx{tx: tx, pool: h.pool})
	})
}

func (h *Host) View(ctx context.Context, fn func(liquidity.Tx) error) error {
	return pgx.BeginTxFunc(ctx, h.store.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return fn(&poolTx{tx: tx, pool: h.pool, readOnly: true})
	})
}

type poolTx struct {
	tx       pgx.Tx
	pool     string
	readOnly bool
}

func (t *poolTx) LoadPool(ctx context.Context) (liquidity.State, error) {
	query := `SELECT record FROM pool_state WHERE pool = $1`
	if !t.readOnly {
		query += ` FOR UPDATE`
	}

	var raw []byte
	if err := t.tx.QueryRow(ctx, query, t.pool).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return liquidity.State{}, liquidity.ErrPoolNotInitialized
		}
		return liquidity.State{}, fmt.Errorf("load pool: %w", err)
	}

	var rec model.PoolRecord
	if err := rec.UnmarshalBinary(raw); err != nil {
		return liquidity.State{}, err
	}
	return liquidity.StateFromRecord(rec)
}

func (t *poolTx) StorePool(ctx context.Context, next liquidity.State) error {
	raw, err := next.Record().MarshalBinary()
	if err != nil {
		return err
	}
	if next.Sequence == 0 {
		return liquidity.ConcurrentModification(0, 0)
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE pool_state SET
			record = $2,
			wsol_reserve = $3::text::numeric,
			stsol_reserve = $4::text::numeric,
			lp_supply = $5::text::numeric,
			sequence = $6,
			updated_at = now()
		WHERE pool = $1 AND sequence = $7
	`,
		t.pool,
		raw,
		formatAmount(next.WSOLReserve),
		formatAmount(next.StSOLReserve),
		formatAmount(next.LPSupply),
		int64(next.Sequence),
		int64(next.Sequence-1),
	)
	if err != nil {
		return fmt.Errorf("store pool: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var found int64
	if err := t.tx.QueryRow(ctx, `SELECT sequence FROM pool_state WHERE pool = $1`, t.pool).Scan(&found); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return liquidity.ErrPoolNotInitialized
		}
		return fmt.Errorf("store pool: %w", err)
	}
	return liquidity.ConcurrentModification(next.Sequence-1, uint64(found))
}

func (t *poolTx) CreatePool(ctx context.Context, initial liquidity.State) error {
	raw, err := initial.Record().MarshalBinary()
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO pool_state (pool, record, wsol_reserve, stsol_reserve, lp_supply, sequence)
		VALUES ($1, $2, $3::text::numeric, $4::text::numeric, $5::text::numeric, $6)
		ON CONFLICT (pool) DO NOTHING
	`,
		t.pool,
		raw,
		formatAmount(initial.WSOLReserve),
		formatAmount(initial.StSOLReserve),
		formatAmount(initial.LPSupply),
		int64(initial.Sequence),
	)
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return liquidity.ErrPoolExists
	}
	return nil
}

// RecordOperation writes the journal row in the same transaction as the state.
func (t *poolTx) RecordOperation(ctx context.Context, rec model.OperationRecord) error {
	sql, args, err := operationInsert(rec)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

func (t *poolTx) Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	if err := t.debit(ctx, from, amount, asset); err != nil {
		return err
	}
	return t.credit(ctx, to, amount, asset)
}

func (t *poolTx) Mint(ctx context.Context, to solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	return t.credit(ctx, to, amount, asset)
}

func (t *poolTx) Burn(ctx context.Context, from solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	return t.debit(ctx, from, amount, asset)
}

func (t *poolTx) Balance(ctx context.Context, account solana.PublicKey, asset liquidity.AssetKind) (uint64, error) {
	var text string
	err := t.tx.QueryRow(ctx, `
		SELECT amount::text FROM ledger_balances WHERE pool = $1 AND account = $2 AND asset = $3
	`, t.pool, account.String(), asset.String()).Scan(&text)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return parseAmount(text)
}

func (t *poolTx) Supply(ctx context.Context, asset liquidity.AssetKind) (uint64, error) {
	var text string
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM ledger_balances WHERE pool = $1 AND asset = $2
	`, t.pool, asset.String()).Scan(&text)
	if err != nil {
		return 0, fmt.Errorf("read supply: %w", err)
	}
	return parseAmount(text)
}

func (t *poolTx) debit(ctx context.Context, account solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	if amount == 0 {
		return nil
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE ledger_balances
		SET amount = amount - $4::text::numeric, updated_at = now()
		WHERE pool = $1 AND account = $2 AND asset = $3 AND amount >= $4::text::numeric
	`, t.pool, account.String(), asset.String(), formatAmount(amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", asset, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	balance, err := t.Balance(ctx, account, asset)
	if err != nil {
		return err
	}
	return liquidity.InsufficientBalance(asset, amount, balance)
}

func (t *poolTx) credit(ctx context.Context, account solana.PublicKey, amount uint64, asset liquidity.AssetKind) error {
	if amount == 0 {
		return nil
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_balances (pool, account, asset, amount, updated_at)
		VALUES ($1, $2, $3, $4::text::numeric, now())
		ON CONFLICT (pool, account, asset) DO UPDATE
		SET amount = ledger_balances.amount + EXCLUDED.amount, updated_at = now()
	`, t.pool, account.String(), asset.String(), formatAmount(amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
			return &liquidity.Error{Kind: liquidity.KindOverflow, Op: "credit", Asset: asset, Requested: amount}
		}
		return fmt.Errorf("credit %s: %w", asset, err)
	}
	return nil
}

func formatAmount(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func parseAmount(text string) (uint64, error) {
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", text, err)
	}
	return v, nil
}
