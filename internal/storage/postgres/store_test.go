package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metapool/internal/liquidity"
	"metapool/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("METAPOOL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("METAPOOL_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestAmountFormatting(t *testing.T) {
	v, err := parseAmount(formatAmount(18446744073709551615))
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), v)

	_, err = parseAmount("1.5")
	require.Error(t, err)
}

func TestNewStoreRequiresDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestHostRunsPoolOperations(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	poolName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	carol := solana.PublicKey{2}
	bob := solana.PublicKey{3}

	svc := liquidity.NewService(liquidity.ServiceConfig{Pool: poolName}, store.Host(poolName),
		liquidity.OracleFunc(func(context.Context) (liquidity.Rate, error) { return liquidity.OneRate, nil }),
		zaptest.NewLogger(t))

	_, err := svc.CreatePool(ctx, solana.PublicKey{1}, 3, 100)
	require.NoError(t, err)
	_, err = svc.CreatePool(ctx, solana.PublicKey{1}, 3, 100)
	require.True(t, errors.Is(err, liquidity.ErrPoolExists))

	_, err = svc.Fund(ctx, carol, liquidity.AssetWSOL, 7000)
	require.NoError(t, err)
	_, err = svc.Fund(ctx, bob, liquidity.AssetStSOL, 1030)
	require.NoError(t, err)

	_, err = svc.AddLiquidity(ctx, carol, 7000)
	require.NoError(t, err)
	sell, err := svc.SellStSOL(ctx, bob, 1030)
	require.NoError(t, err)
	assert.Equal(t, uint64(999), sell.WSOLOut)

	_, err = svc.SellStSOL(ctx, bob, 1)
	require.True(t, errors.Is(err, liquidity.ErrInsufficientBalance))

	report, err := svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Problems)

	ops, err := store.ListOperations(ctx, poolName, 0, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, model.OpAddLiquidity, ops[0].Operation)
	assert.Equal(t, model.OpSellStSOL, ops[1].Operation)
	assert.Equal(t, uint64(31), ops[1].Fee)
}

func TestStorePoolDetectsStaleSequence(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	poolName := fmt.Sprintf("stale-%d", time.Now().UnixNano())
	host := store.Host(poolName)

	initial := liquidity.State{FeeNumerator: 3, FeeDenominator: 100}
	require.NoError(t, host.Update(ctx, func(tx liquidity.Tx) error { return tx.CreatePool(ctx, initial) }))

	stale := initial
	stale.Sequence = 5
	err := host.Update(ctx, func(tx liquidity.Tx) error { return tx.StorePool(ctx, stale) })
	require.True(t, errors.Is(err, liquidity.ErrConcurrentModification))
}

func TestAggregatorCheckpoint(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("agg-%d", time.Now().UnixNano())

	_, ok, err := store.LoadCheckpoint(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveCheckpoint(ctx, name, model.AggregatorCheckpoint{NextSequence: 42, Pool: "main", WindowSeconds: 3600}))
	require.NoError(t, store.SaveCheckpoint(ctx, name, model.AggregatorCheckpoint{NextSequence: 57, Pool: "main", WindowSeconds: 3600}))
	cp, ok, err := store.LoadCheckpoint(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(57), cp.NextSequence)
	assert.Equal(t, "main", cp.Pool)
	assert.Equal(t, uint64(3600), cp.WindowSeconds)
	assert.False(t, cp.UpdatedAt.IsZero())
}
