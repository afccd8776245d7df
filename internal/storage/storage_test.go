package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metapool/internal/liquidity"
	"metapool/internal/model"
)

var (
	_ liquidity.Journal = (*JsonlJournal)(nil)
	_ liquidity.Host    = (*FileHost)(nil)
)

func TestJsonlJournalRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ops.jsonl")
	journal := NewJsonlJournal(path)
	ctx := context.Background()

	require.NoError(t, journal.PutOperationBatch(ctx, []model.OperationRecord{
		{Sequence: 1, Operation: model.OpAddLiquidity, WSOLIn: 7000, LPMinted: 7000},
	}))
	require.NoError(t, journal.PutOperationBatch(ctx, []model.OperationRecord{
		{Sequence: 2, Operation: model.OpSellStSOL, StSOLIn: 1030, WSOLOut: 999, Fee: 31},
	}))
	require.NoError(t, journal.PutOperationBatch(ctx, nil))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var got []model.OperationRecord
	var badLines []int
	stats, err := ReadJournal(path, func(rec model.OperationRecord) error {
		got = append(got, rec)
		return nil
	}, func(line int, _ error) { badLines = append(badLines, line) })
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []int{3}, badLines)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(31), got[1].Fee)
}

func TestReadJournalStopsOnCallbackError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	journal := NewJsonlJournal(path)
	require.NoError(t, journal.PutOperationBatch(context.Background(), []model.OperationRecord{{Sequence: 1}, {Sequence: 2}}))

	stop := errors.New("stop")
	calls := 0
	_, err := ReadJournal(path, func(model.OperationRecord) error {
		calls++
		return stop
	}, nil)
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestFileHostPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	authority := solana.PublicKey{1}
	carol := solana.PublicKey{2}

	host, err := NewFileHost(path)
	require.NoError(t, err)
	svc := liquidity.NewService(liquidity.ServiceConfig{}, host, liquidity.OracleFunc(func(context.Context) (liquidity.Rate, error) {
		return liquidity.OneRate, nil
	}), zaptest.NewLogger(t))

	_, err = svc.CreatePool(ctx, authority, 3, 100)
	require.NoError(t, err)
	_, err = svc.Fund(ctx, carol, liquidity.AssetWSOL, 500)
	require.NoError(t, err)
	_, err = svc.AddLiquidity(ctx, carol, 400)
	require.NoError(t, err)

	reopened, err := NewFileHost(path)
	require.NoError(t, err)
	err = reopened.View(ctx, func(tx liquidity.Tx) error {
		state, err := tx.LoadPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), state.WSOLReserve)
		assert.Equal(t, uint64(400), state.LPSupply)
		assert.Equal(t, uint64(1), state.Sequence)

		bal, err := tx.Balance(ctx, carol, liquidity.AssetWSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), bal)
		return nil
	})
	require.NoError(t, err)
}

func newFileService(t *testing.T, host *FileHost) *liquidity.Service {
	t.Helper()
	return liquidity.NewService(liquidity.ServiceConfig{}, host, liquidity.OracleFunc(func(context.Context) (liquidity.Rate, error) {
		return liquidity.OneRate, nil
	}), zaptest.NewLogger(t))
}

func TestFileHostRefusesSecondWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	carol := solana.PublicKey{2}

	first, err := NewFileHost(path)
	require.NoError(t, err)
	second, err := NewFileHost(path)
	require.NoError(t, err)
	second.LockTimeout = 50 * time.Millisecond

	setup := newFileService(t, first)
	_, err = setup.CreatePool(ctx, solana.PublicKey{1}, 3, 100)
	require.NoError(t, err)
	_, err = setup.Fund(ctx, carol, liquidity.AssetWSOL, 1000)
	require.NoError(t, err)

	other := newFileService(t, second)
	err = first.Update(ctx, func(tx liquidity.Tx) error {
		_, err := other.AddLiquidity(ctx, carol, 400)
		require.ErrorIs(t, err, liquidity.ErrConcurrentModification)
		return tx.Mint(ctx, carol, 1, liquidity.AssetStSOL)
	})
	require.NoError(t, err)

	receipt, err := other.AddLiquidity(ctx, carol, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), receipt.After.WSOLReserve)

	err = first.View(ctx, func(tx liquidity.Tx) error {
		state, err := tx.LoadPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(400), state.WSOLReserve)
		assert.Equal(t, uint64(400), state.LPSupply)
		assert.Equal(t, uint64(1), state.Sequence)

		stsol, err := tx.Balance(ctx, carol, liquidity.AssetStSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), stsol)
		return nil
	})
	require.NoError(t, err)
}

func TestFileHostsSharingFileKeepEveryCommit(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	carol := solana.PublicKey{2}

	setupHost, err := NewFileHost(path)
	require.NoError(t, err)
	setup := newFileService(t, setupHost)
	_, err = setup.CreatePool(ctx, solana.PublicKey{1}, 3, 100)
	require.NoError(t, err)
	_, err = setup.Fund(ctx, carol, liquidity.AssetWSOL, 1000)
	require.NoError(t, err)

	const writers, deposits = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, writers*deposits)
	for i := 0; i < writers; i++ {
		host, err := NewFileHost(path)
		require.NoError(t, err)
		host.LockTimeout = 30 * time.Second
		svc := newFileService(t, host)

		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < deposits; j++ {
				_, err := svc.AddLiquidity(ctx, carol, 10)
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	err = setupHost.View(ctx, func(tx liquidity.Tx) error {
		state, err := tx.LoadPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(writers*deposits*10), state.WSOLReserve)
		assert.Equal(t, uint64(writers*deposits), state.Sequence)

		bal, err := tx.Balance(ctx, carol, liquidity.AssetWSOL)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000-writers*deposits*10), bal)
		return nil
	})
	require.NoError(t, err)
}

func TestFileHostFailedUpdateLeavesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pool.json")
	host, err := NewFileHost(path)
	require.NoError(t, err)

	require.NoError(t, host.Update(ctx, func(tx liquidity.Tx) error {
		return tx.Mint(ctx, solana.PublicKey{3}, 10, liquidity.AssetStSOL)
	}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = host.Update(ctx, func(tx liquidity.Tx) error {
		if err := tx.Mint(ctx, solana.PublicKey{3}, 10, liquidity.AssetStSOL); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileHostRejectsCorruptRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pool":"AQ==","balances":[]}`), 0o644))

	host, err := NewFileHost(path)
	require.NoError(t, err)
	err = host.View(context.Background(), func(liquidity.Tx) error { return nil })
	require.Error(t, err)

	_, err = NewFileHost("")
	require.Error(t, err)
}
