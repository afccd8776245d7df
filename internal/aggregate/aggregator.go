package aggregate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"metapool/internal/model"
	"metapool/internal/storage"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	// RecomputeFrom restarts aggregation at this sequence when non-zero.
	RecomputeFrom uint64
	// Pool restricts aggregation to one pool address when set.
	Pool        string
	Checkpoints CheckpointStore
}

// MetricsSink receives finished window metrics.
type MetricsSink interface {
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Aggregator aggregates journal records into pool window metrics.
type Aggregator struct {
	cfg          Config
	sink         MetricsSink
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

// Result summarizes one aggregation run.
type Result struct {
	Total   int
	Used    int
	Skipped int
	Failed  int
	Windows int
	Next    uint64
}

func NewAggregator(cfg Config, sink MetricsSink, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		sink:         sink,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run executes aggregation over an operation journal file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) (Result, error) {
	var res Result
	if a.sink == nil {
		return res, fmt.Errorf("metrics sink is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return res, fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	resume, err := a.loadResume(ctx)
	if err != nil {
		return res, err
	}
	res.Next = resume

	batch := make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize)

	stats, err := storage.ReadJournal(inputPath, func(record model.OperationRecord) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if record.Sequence < resume || (a.cfg.Pool != "" && record.Pool != a.cfg.Pool) {
			res.Skipped++
			return nil
		}

		start := windowStart(record.Timestamp, a.cfg.WindowSeconds)
		end := start + a.cfg.WindowSeconds

		acc := a.accumulators[record.Pool]
		if acc == nil {
			acc = NewAccumulator(record, start, end)
			a.accumulators[record.Pool] = acc
		} else if acc.WindowStart != start {
			batch = append(batch, a.flushAccumulator(acc))
			acc = NewAccumulator(record, start, end)
			a.accumulators[record.Pool] = acc
		}

		if err := acc.AddRecord(record); err != nil {
			res.Failed++
			a.logger.Warn("aggregate record", zap.Error(err),
				zap.String("pool", record.Pool),
				zap.Uint64("sequence", record.Sequence),
			)
			return nil
		}
		res.Used++
		if record.Sequence+1 > res.Next {
			res.Next = record.Sequence + 1
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.flush(ctx, batch); err != nil {
				return err
			}
			res.Windows += len(batch)
			batch = batch[:0]

			if err := a.saveCheckpoint(ctx, res.Next); err != nil {
				return err
			}
		}
		return nil
	}, func(line int, err error) {
		a.logger.Warn("decode journal line", zap.Int("line", line), zap.Error(err))
	})
	res.Total = stats.Total
	res.Failed += stats.Failed
	if err != nil {
		return res, err
	}

	// Open windows are written now and recomputed in full on the next run.
	for _, acc := range a.accumulators {
		batch = append(batch, a.flushAccumulator(acc))
	}
	if len(batch) > 0 {
		if err := a.flush(ctx, batch); err != nil {
			return res, err
		}
		res.Windows += len(batch)
	}
	if err := a.saveCheckpoint(ctx, res.Next); err != nil {
		return res, err
	}
	a.accumulators = make(map[string]*Accumulator)

	a.logger.Info("aggregate complete",
		zap.Int("total", res.Total),
		zap.Int("used", res.Used),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("windows", res.Windows),
	)

	return res, nil
}

func (a *Aggregator) loadResume(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom, nil
	}
	if a.cfg.Checkpoints == nil {
		return 0, nil
	}
	cp, ok, err := a.cfg.Checkpoints.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	// A checkpoint only lines up with windows of the size it was written for.
	if cp.WindowSeconds != 0 && cp.WindowSeconds != a.cfg.WindowSeconds {
		return 0, fmt.Errorf("checkpoint is for %ds windows, not %ds; set recompute-from to rebuild",
			cp.WindowSeconds, a.cfg.WindowSeconds)
	}
	if cp.Pool != a.cfg.Pool {
		return 0, fmt.Errorf("checkpoint is for pool %q, not %q", cp.Pool, a.cfg.Pool)
	}
	return cp.NextSequence, nil
}

// saveCheckpoint stores the first sequence of the oldest open window, or next
// when every window is closed.
func (a *Aggregator) saveCheckpoint(ctx context.Context, next uint64) error {
	if a.cfg.Checkpoints == nil {
		return nil
	}
	if seq, ok := minOpenSequence(a.accumulators); ok {
		next = seq
	}
	return a.cfg.Checkpoints.Save(ctx, model.AggregatorCheckpoint{
		NextSequence:  next,
		Pool:          a.cfg.Pool,
		WindowSeconds: a.cfg.WindowSeconds,
	})
}

func (a *Aggregator) flush(ctx context.Context, batch []model.PoolWindowMetrics) error {
	if len(batch) == 0 {
		return nil
	}
	if err := a.sink.UpsertWindowMetrics(ctx, batch); err != nil {
		return fmt.Errorf("upsert window metrics: %w", err)
	}
	return nil
}

func (a *Aggregator) flushAccumulator(acc *Accumulator) model.PoolWindowMetrics {
	value := acc.Value()
	feeRate := computeFeeRate(acc.Fees, value)

	return model.PoolWindowMetrics{
		Pool:           acc.Pool,
		WindowSizeSecs: int64(a.cfg.WindowSeconds),
		WindowStart:    time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:      time.Unix(int64(acc.WindowEnd), 0).UTC(),
		FirstSequence:  acc.FirstSequence,
		LastSequence:   acc.LastSequence,
		AddCount:       acc.AddCount,
		RemoveCount:    acc.RemoveCount,
		SellCount:      acc.SellCount,
		WSOLDeposited:  acc.WSOLDeposited.String(),
		WSOLWithdrawn:  acc.WSOLWithdrawn.String(),
		StSOLWithdrawn: acc.StSOLWithdrawn.String(),
		StSOLSold:      acc.StSOLSold.String(),
		WSOLPaidOut:    acc.WSOLPaidOut.String(),
		Fees:           acc.Fees.String(),
		WSOLReserve:    formatUint(acc.Closing.WSOLReserve),
		StSOLReserve:   formatUint(acc.Closing.StSOLReserve),
		LPSupply:       formatUint(acc.Closing.LPSupply),
		PoolValue:      formatRat(value),
		SharePrice:     formatRat(computeSharePrice(value, acc.Closing.LPSupply)),
		FeeRate:        formatRat(feeRate),
		APR:            formatRat(computeAPR(feeRate, a.cfg.WindowSeconds)),
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func minOpenSequence(acc map[string]*Accumulator) (uint64, bool) {
	var (
		min   uint64
		found bool
	)
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if !found || entry.FirstSequence < min {
			min = entry.FirstSequence
			found = true
		}
	}
	return min, found
}
