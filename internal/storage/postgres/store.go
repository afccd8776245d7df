package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"metapool/internal/model"
)

// Store provides Postgres persistence for the pool, ledger, journal and metrics.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}

// PutOperationBatch inserts journal records. Records already present are kept.
func (s *Store) PutOperationBatch(ctx context.Context, records []model.OperationRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		if err := queueOperation(batch, rec); err != nil {
			return err
		}
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func queueOperation(batch *pgx.Batch, rec model.OperationRecord) error {
	sql, args, err := operationInsert(rec)
	if err != nil {
		return err
	}
	batch.Queue(sql, args...)
	return nil
}

func operationInsert(rec model.OperationRecord) (string, []any, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("marshal operation record: %w", err)
	}
	return `
		INSERT INTO pool_operations (pool, sequence, operation, account, ts, record, created_at)
		VALUES ($1, $2, $3, $4, to_timestamp($5), $6, now())
		ON CONFLICT (pool, sequence, operation) DO NOTHING
	`, []any{rec.Pool, int64(rec.Sequence), rec.Operation, rec.Account, int64(rec.Timestamp), payload}, nil
}

// ListOperations returns journal records of a pool with sequence > after, in order.
func (s *Store) ListOperations(ctx context.Context, pool string, after uint64, limit int) ([]model.OperationRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, `
		SELECT record FROM pool_operations
		WHERE pool = $1 AND sequence > $2
		ORDER BY sequence, operation
		LIMIT $3
	`, pool, int64(after), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OperationRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec model.OperationRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode operation record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertWindowMetrics inserts or updates window metrics.
func (s *Store) UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range metrics {
		batch.Queue(`
			INSERT INTO pool_window_metrics (
				pool, window_size_seconds, window_start_ts, window_end_ts,
				first_sequence, last_sequence, add_count, remove_count, sell_count,
				wsol_deposited, wsol_withdrawn, stsol_withdrawn, stsol_sold, wsol_paid_out, fees,
				wsol_reserve, stsol_reserve, lp_supply, pool_value, share_price, fee_rate, apr,
				created_at, updated_at
			) VALUES (
				$1,$2,$3,$4,$5,$6,$7,$8,$9,
				$10::text::numeric,$11::text::numeric,$12::text::numeric,$13::text::numeric,$14::text::numeric,$15::text::numeric,
				$16::text::numeric,$17::text::numeric,$18::text::numeric,$19::text::numeric,$20::text::numeric,$21::text::numeric,$22::text::numeric,
				now(),now()
			)
			ON CONFLICT (pool, window_size_seconds, window_start_ts)
			DO UPDATE SET
				window_end_ts = EXCLUDED.window_end_ts,
				first_sequence = LEAST(pool_window_metrics.first_sequence, EXCLUDED.first_sequence),
				last_sequence = EXCLUDED.last_sequence,
				add_count = EXCLUDED.add_count,
				remove_count = EXCLUDED.remove_count,
				sell_count = EXCLUDED.sell_count,
				wsol_deposited = EXCLUDED.wsol_deposited,
				wsol_withdrawn = EXCLUDED.wsol_withdrawn,
				stsol_withdrawn = EXCLUDED.stsol_withdrawn,
				stsol_sold = EXCLUDED.stsol_sold,
				wsol_paid_out = EXCLUDED.wsol_paid_out,
				fees = EXCLUDED.fees,
				wsol_reserve = EXCLUDED.wsol_reserve,
				stsol_reserve = EXCLUDED.stsol_reserve,
				lp_supply = EXCLUDED.lp_supply,
				pool_value = EXCLUDED.pool_value,
				share_price = EXCLUDED.share_price,
				fee_rate = EXCLUDED.fee_rate,
				apr = EXCLUDED.apr,
				updated_at = now()
		`,
			m.Pool,
			m.WindowSizeSecs,
			m.WindowStart,
			m.WindowEnd,
			int64(m.FirstSequence),
			int64(m.LastSequence),
			int64(m.AddCount),
			int64(m.RemoveCount),
			int64(m.SellCount),
			m.WSOLDeposited,
			m.WSOLWithdrawn,
			m.StSOLWithdrawn,
			m.StSOLSold,
			m.WSOLPaidOut,
			m.Fees,
			m.WSOLReserve,
			m.StSOLReserve,
			m.LPSupply,
			m.PoolValue,
			m.SharePrice,
			m.FeeRate,
			m.APR,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range metrics {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadCheckpoint returns the aggregator checkpoint stored under name.
func (s *Store) LoadCheckpoint(ctx context.Context, name string) (model.AggregatorCheckpoint, bool, error) {
	if name == "" {
		return model.AggregatorCheckpoint{}, false, fmt.Errorf("checkpoint name required")
	}
	var (
		cp     model.AggregatorCheckpoint
		next   int64
		window int64
	)
	row := s.pool.QueryRow(ctx, `
		SELECT pool, window_seconds, next_sequence, updated_at
		FROM aggregator_state WHERE name=$1
	`, name)
	if err := row.Scan(&cp.Pool, &window, &next, &cp.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.AggregatorCheckpoint{}, false, nil
		}
		return model.AggregatorCheckpoint{}, false, err
	}
	cp.NextSequence = uint64(next)
	cp.WindowSeconds = uint64(window)
	return cp, true, nil
}

// SaveCheckpoint upserts the aggregator checkpoint for name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, cp model.AggregatorCheckpoint) error {
	if name == "" {
		return fmt.Errorf("checkpoint name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO aggregator_state (name, pool, window_seconds, next_sequence, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET pool = EXCLUDED.pool,
			window_seconds = EXCLUDED.window_seconds,
			next_sequence = EXCLUDED.next_sequence,
			updated_at = now()
	`, name, cp.Pool, int64(cp.WindowSeconds), int64(cp.NextSequence))
	return err
}
