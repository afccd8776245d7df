package aggregate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"metapool/internal/model"
	"metapool/internal/storage"
)

const testPool = "pool-a"

type memSink struct {
	metrics []model.PoolWindowMetrics
}

func (s *memSink) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	s.metrics = append(s.metrics, metrics...)
	return nil
}

func writeJournal(t *testing.T, path string, records ...model.OperationRecord) {
	t.Helper()
	require.NoError(t, storage.NewJsonlJournal(path).PutOperationBatch(context.Background(), records))
}

func baseRecords() []model.OperationRecord {
	return []model.OperationRecord{
		{Sequence: 0, Pool: testPool, Operation: model.OpCreatePool, Timestamp: 100},
		{
			Sequence: 1, Pool: testPool, Operation: model.OpAddLiquidity, Timestamp: 200,
			WSOLIn: 4000, LPMinted: 4000,
			RateNumerator: 1, RateDenominator: 1,
			After: model.ReserveSnapshot{WSOLReserve: 4000, LPSupply: 4000},
		},
		{
			Sequence: 2, Pool: testPool, Operation: model.OpSellStSOL, Timestamp: 300,
			StSOLIn: 4000, WSOLOut: 1000, Fee: 40,
			RateNumerator: 5, RateDenominator: 4,
			After: model.ReserveSnapshot{WSOLReserve: 3000, StSOLReserve: 4000, LPSupply: 4000},
		},
		{
			Sequence: 3, Pool: testPool, Operation: model.OpRemoveLiquidity, Timestamp: 4000,
			LPBurned: 2000, WSOLOut: 1500, StSOLOut: 2000,
			After: model.ReserveSnapshot{WSOLReserve: 1500, StSOLReserve: 2000, LPSupply: 2000},
		},
	}
}

func TestAggregatorBuildsWindowMetrics(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "ops.jsonl")
	writeJournal(t, journal, baseRecords()...)

	sink := &memSink{}
	agg := NewAggregator(Config{WindowSeconds: 3600}, sink, zaptest.NewLogger(t))
	res, err := agg.Run(context.Background(), journal)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 4, res.Used)
	assert.Equal(t, 2, res.Windows)
	assert.Equal(t, uint64(4), res.Next)
	require.Len(t, sink.metrics, 2)

	first := sink.metrics[0]
	assert.Equal(t, testPool, first.Pool)
	assert.Equal(t, int64(0), first.WindowStart.Unix())
	assert.Equal(t, int64(3600), first.WindowEnd.Unix())
	assert.Equal(t, uint64(0), first.FirstSequence)
	assert.Equal(t, uint64(2), first.LastSequence)
	assert.Equal(t, uint64(1), first.AddCount)
	assert.Equal(t, uint64(1), first.SellCount)
	assert.Equal(t, "4000", first.WSOLDeposited)
	assert.Equal(t, "4000", first.StSOLSold)
	assert.Equal(t, "1000", first.WSOLPaidOut)
	assert.Equal(t, "40", first.Fees)
	assert.Equal(t, "3000", first.WSOLReserve)
	assert.Equal(t, "4000", first.StSOLReserve)
	require.NotNil(t, first.PoolValue)
	assert.Equal(t, "8000.000000000000000000", *first.PoolValue)
	require.NotNil(t, first.SharePrice)
	assert.Equal(t, "2.000000000000000000", *first.SharePrice)
	require.NotNil(t, first.FeeRate)
	assert.Equal(t, "0.005000000000000000", *first.FeeRate)
	require.NotNil(t, first.APR)
	assert.Equal(t, "43.800000000000000000", *first.APR)

	second := sink.metrics[1]
	assert.Equal(t, int64(3600), second.WindowStart.Unix())
	assert.Equal(t, uint64(1), second.RemoveCount)
	assert.Equal(t, "1500", second.WSOLWithdrawn)
	assert.Equal(t, "2000", second.StSOLWithdrawn)
	assert.Equal(t, "2000", second.LPSupply)
	assert.Nil(t, second.PoolValue)
	assert.Nil(t, second.FeeRate)
	assert.Nil(t, second.APR)
}

func TestAggregatorResumesOpenWindow(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "ops.jsonl")
	writeJournal(t, journal, baseRecords()...)
	checkpoints := &FileCheckpoints{Path: filepath.Join(dir, "state", "agg.json")}
	ctx := context.Background()

	_, err := NewAggregator(Config{WindowSeconds: 3600, Checkpoints: checkpoints}, &memSink{}, nil).Run(ctx, journal)
	require.NoError(t, err)

	cp, ok, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(3), cp.NextSequence)
	assert.Equal(t, uint64(3600), cp.WindowSeconds)
	assert.False(t, cp.UpdatedAt.IsZero())

	writeJournal(t, journal, model.OperationRecord{
		Sequence: 4, Pool: testPool, Operation: model.OpRemoveLiquidity, Timestamp: 5000,
		LPBurned: 1000, WSOLOut: 750, StSOLOut: 1000,
		After: model.ReserveSnapshot{WSOLReserve: 750, StSOLReserve: 1000, LPSupply: 1000},
	})

	sink := &memSink{}
	res, err := NewAggregator(Config{WindowSeconds: 3600, Checkpoints: checkpoints}, sink, nil).Run(ctx, journal)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, sink.metrics, 1)
	assert.Equal(t, uint64(2), sink.metrics[0].RemoveCount)
	assert.Equal(t, "2250", sink.metrics[0].WSOLWithdrawn)
	assert.Equal(t, uint64(3), sink.metrics[0].FirstSequence)
	assert.Equal(t, uint64(4), sink.metrics[0].LastSequence)
}

func TestAggregatorRejectsMismatchedCheckpoint(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "ops.jsonl")
	writeJournal(t, journal, baseRecords()...)
	checkpoints := &FileCheckpoints{Path: filepath.Join(dir, "agg.json")}
	ctx := context.Background()

	_, err := NewAggregator(Config{WindowSeconds: 3600, Checkpoints: checkpoints}, &memSink{}, nil).Run(ctx, journal)
	require.NoError(t, err)

	_, err = NewAggregator(Config{WindowSeconds: 60, Checkpoints: checkpoints}, &memSink{}, nil).Run(ctx, journal)
	require.ErrorContains(t, err, "3600s windows")

	_, err = NewAggregator(Config{WindowSeconds: 3600, Pool: "other", Checkpoints: checkpoints}, &memSink{}, nil).Run(ctx, journal)
	require.ErrorContains(t, err, "checkpoint is for pool")

	sink := &memSink{}
	res, err := NewAggregator(Config{WindowSeconds: 60, RecomputeFrom: 1, Checkpoints: checkpoints}, sink, nil).Run(ctx, journal)
	require.NoError(t, err)
	assert.Positive(t, res.Windows)

	cp, ok, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(60), cp.WindowSeconds)
}

func TestAggregatorCountsBadRecords(t *testing.T) {
	dir := t.TempDir()
	journal := filepath.Join(dir, "ops.jsonl")
	writeJournal(t, journal, baseRecords()[:2]...)

	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	writeJournal(t, journal, model.OperationRecord{Sequence: 2, Pool: testPool, Operation: "swap", Timestamp: 300})

	sink := &memSink{}
	res, err := NewAggregator(Config{WindowSeconds: 3600, RecomputeFrom: 1}, sink, zaptest.NewLogger(t)).Run(context.Background(), journal)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, sink.metrics, 1)
	assert.Equal(t, uint64(1), sink.metrics[0].AddCount)
}

func TestAggregatorRequiresWindow(t *testing.T) {
	_, err := NewAggregator(Config{}, &memSink{}, nil).Run(context.Background(), "missing.jsonl")
	require.Error(t, err)

	_, err = NewAggregator(Config{WindowSeconds: 60}, nil, nil).Run(context.Background(), "missing.jsonl")
	require.Error(t, err)
}
