package liquidity

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"metapool/internal/model"
)

// Ledger moves fungible assets. Every call is all-or-nothing; a debit larger
// than the balance fails with InsufficientBalance and changes nothing.
type Ledger interface {
	Transfer(ctx context.Context, from, to solana.PublicKey, amount uint64, asset AssetKind) error
	Mint(ctx context.Context, to solana.PublicKey, amount uint64, asset AssetKind) error
	Burn(ctx context.Context, from solana.PublicKey, amount uint64, asset AssetKind) error
	Balance(ctx context.Context, account solana.PublicKey, asset AssetKind) (uint64, error)
	Supply(ctx context.Context, asset AssetKind) (uint64, error)
}

// Oracle reports the current value of one stSOL in wSOL.
type Oracle interface {
	StSOLToWSOLRate(ctx context.Context) (Rate, error)
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context) (Rate, error)

func (f OracleFunc) StSOLToWSOLRate(ctx context.Context) (Rate, error) {
	return f(ctx)
}

// Tx is the view of pool state and ledger inside one host transaction.
type Tx interface {
	Ledger

	// LoadPool fails with PoolNotInitialized before CreatePool.
	LoadPool(ctx context.Context) (State, error)
	// StorePool commits next only if the stored sequence is next.Sequence-1,
	// otherwise it fails with ConcurrentModification.
	StorePool(ctx context.Context, next State) error
	// CreatePool stores the initial state, failing with PoolExists.
	CreatePool(ctx context.Context, initial State) error
}

// Recorder is implemented by transactions that journal inside the same commit.
type Recorder interface {
	RecordOperation(ctx context.Context, record model.OperationRecord) error
}

// Host serializes transactions against one pool. Update commits only if fn
// returns nil; View must not persist anything.
type Host interface {
	Update(ctx context.Context, fn func(Tx) error) error
	View(ctx context.Context, fn func(Tx) error) error
}

// Journal receives committed operations after commit.
type Journal interface {
	PutOperationBatch(ctx context.Context, records []model.OperationRecord) error
}
