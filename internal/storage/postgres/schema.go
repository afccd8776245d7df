package postgres

// Amounts are u64 minor units stored as NUMERIC(20,0) and bounded to the u64 range.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pool_state (
		pool          TEXT PRIMARY KEY,
		record        BYTEA NOT NULL,
		wsol_reserve  NUMERIC(20,0) NOT NULL,
		stsol_reserve NUMERIC(20,0) NOT NULL,
		lp_supply     NUMERIC(20,0) NOT NULL,
		sequence      BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_balances (
		pool       TEXT NOT NULL,
		account    TEXT NOT NULL,
		asset      TEXT NOT NULL,
		amount     NUMERIC(20,0) NOT NULL CHECK (amount >= 0 AND amount <= 18446744073709551615),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool, account, asset)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_operations (
		pool       TEXT NOT NULL,
		sequence   BIGINT NOT NULL,
		operation  TEXT NOT NULL,
		account    TEXT NOT NULL,
		ts         TIMESTAMPTZ NOT NULL,
		record     JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool, sequence, operation)
	)`,
	`CREATE TABLE IF NOT EXISTS pool_window_metrics (
		pool                TEXT NOT NULL,
		window_size_seconds BIGINT NOT NULL,
		window_start_ts     TIMESTAMPTZ NOT NULL,
		window_end_ts       TIMESTAMPTZ NOT NULL,
		first_sequence      BIGINT NOT NULL,
		last_sequence       BIGINT NOT NULL,
		add_count           BIGINT NOT NULL,
		remove_count        BIGINT NOT NULL,
		sell_count          BIGINT NOT NULL,
		wsol_deposited      NUMERIC NOT NULL,
		wsol_withdrawn      NUMERIC NOT NULL,
		stsol_withdrawn     NUMERIC NOT NULL,
		stsol_sold          NUMERIC NOT NULL,
		wsol_paid_out       NUMERIC NOT NULL,
		fees                NUMERIC NOT NULL,
		wsol_reserve        NUMERIC NOT NULL,
		stsol_reserve       NUMERIC NOT NULL,
		lp_supply           NUMERIC NOT NULL,
		pool_value          NUMERIC,
		share_price         NUMERIC,
		fee_rate            NUMERIC,
		apr                 NUMERIC,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (pool, window_size_seconds, window_start_ts)
	)`,
	`CREATE TABLE IF NOT EXISTS aggregator_state (
		name           TEXT PRIMARY KEY,
		pool           TEXT NOT NULL DEFAULT '',
		window_seconds BIGINT NOT NULL DEFAULT 0,
		next_sequence  BIGINT NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE aggregator_state ADD COLUMN IF NOT EXISTS pool TEXT NOT NULL DEFAULT ''`,
	`ALTER TABLE aggregator_state ADD COLUMN IF NOT EXISTS window_seconds BIGINT NOT NULL DEFAULT 0`,
}
