package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"metapool/internal/model"
	"metapool/internal/storage/postgres"
)

// CheckpointStore persists the journal position aggregation resumes from.
type CheckpointStore interface {
	Load(ctx context.Context) (model.AggregatorCheckpoint, bool, error)
	Save(ctx context.Context, cp model.AggregatorCheckpoint) error
}

// FileCheckpoints keeps the checkpoint in a local JSON file.
type FileCheckpoints struct {
	Path string
}

func (s *FileCheckpoints) Load(ctx context.Context) (model.AggregatorCheckpoint, bool, error) {
	var cp model.AggregatorCheckpoint
	if s == nil || s.Path == "" {
		return cp, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, false, nil
		}
		return cp, false, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &cp); err != nil {
		return cp, false, fmt.Errorf("parse checkpoint %s: %w", s.Path, err)
	}
	return cp, true, nil
}

func (s *FileCheckpoints) Save(ctx context.Context, cp model.AggregatorCheckpoint) error {
	if s == nil || s.Path == "" {
		return nil
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, s.Path)
}

// DBCheckpoints keeps checkpoints in the aggregator_state table, one row per
// pool and window size.
type DBCheckpoints struct {
	Store *postgres.Store
	Name  string
}

// CheckpointName is the aggregator_state key for a pool and window size.
func CheckpointName(pool string, windowSeconds uint64) string {
	if pool == "" {
		pool = "*"
	}
	return fmt.Sprintf("aggregator:%s:%d", pool, windowSeconds)
}

func (s *DBCheckpoints) Load(ctx context.Context) (model.AggregatorCheckpoint, bool, error) {
	if s == nil || s.Store == nil {
		return model.AggregatorCheckpoint{}, false, nil
	}
	return s.Store.LoadCheckpoint(ctx, s.Name)
}

func (s *DBCheckpoints) Save(ctx context.Context, cp model.AggregatorCheckpoint) error {
	if s == nil || s.Store == nil {
		return nil
	}
	return s.Store.SaveCheckpoint(ctx, s.Name, cp)
}
