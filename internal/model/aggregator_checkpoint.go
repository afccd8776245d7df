package model

import "time"

// AggregatorCheckpoint marks where the next aggregation run starts reading the
// operation journal. NextSequence is the first sequence of the oldest window
// still open at the end of the previous run, so that window is rebuilt from
// all of its records. Pool and WindowSeconds pin the run configuration the
// checkpoint was written under.
type AggregatorCheckpoint struct {
	NextSequence  uint64    `json:"next_sequence"`
	Pool          string    `json:"pool,omitempty"`
	WindowSeconds uint64    `json:"window_seconds"`
	UpdatedAt     time.Time `json:"updated_at"`
}
