package storage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"metapool/internal/ledger"
	"metapool/internal/liquidity"
	"metapool/internal/model"
)

// DefaultLockTimeout bounds how long Update waits for another writer.
const DefaultLockTimeout = 5 * time.Second

// FileHost keeps the pool record and all balances in one JSON file. Every
// committed update rewrites the file through a temp file and rename while
// holding an exclusive lock on path+".lock", so writers in other processes
// cannot overwrite each other's commits.
type FileHost struct {
	path string
	mu   sync.Mutex

	// LockTimeout is how long Update waits for the lock before failing
	// with ConcurrentModification.
	LockTimeout time.Duration
}

type fileSnapshot struct {
	// Pool is the base64 fixed-size binary pool record.
	Pool      string         `json:"pool,omitempty"`
	Balances  []ledger.Entry `json:"balances"`
	UpdatedAt string         `json:"updated_at"`
}

func NewFileHost(path string) (*FileHost, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	return &FileHost{path: path, LockTimeout: DefaultLockTimeout}, nil
}

func (h *FileHost) Update(ctx context.Context, fn func(liquidity.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	release, err := h.lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	book, err := h.load()
	if err != nil {
		return err
	}
	if err := fn(book); err != nil {
		return err
	}
	return h.save(book)
}

func (h *FileHost) View(ctx context.Context, fn func(liquidity.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	book, err := h.load()
	h.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(book)
}

func (h *FileHost) lock(ctx context.Context) (func(), error) {
	lockPath := h.path + ".lock"
	if dir := filepath.Dir(lockPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open state lock: %w", err)
	}

	timeout := h.LockTimeout
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	busy := &liquidity.Error{
		Kind:   liquidity.KindConcurrentModification,
		Detail: "state file " + h.path + " is locked by another writer",
	}
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		ok, err := tryLock(f)
		if err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("lock state file: %w", err))
		}
		if !ok {
			return struct{}{}, busy
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(10*time.Millisecond)),
		backoff.WithMaxElapsedTime(timeout),
	)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return func() {
		_ = unlock(f)
		_ = f.Close()
	}, nil
}

func (h *FileHost) load() (*ledger.Book, error) {
	stat, err := os.Stat(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return ledger.NewBook(), nil
		}
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("state file path is a directory")
	}

	data, err := os.ReadFile(h.path)
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	var pool *liquidity.State
	if snap.Pool != "" {
		raw, err := base64.StdEncoding.DecodeString(snap.Pool)
		if err != nil {
			return nil, fmt.Errorf("decode pool record: %w", err)
		}
		var rec model.PoolRecord
		if err := rec.UnmarshalBinary(raw); err != nil {
			return nil, err
		}
		state, err := liquidity.StateFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("stored pool record: %w", err)
		}
		pool = &state
	}

	return ledger.RestoreBook(pool, snap.Balances)
}

func (h *FileHost) save(book *ledger.Book) error {
	snap := fileSnapshot{
		Balances:  book.Entries(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if state, ok := book.PoolState(); ok {
		raw, err := state.Record().MarshalBinary()
		if err != nil {
			return err
		}
		snap.Pool = base64.StdEncoding.EncodeToString(raw)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state file: %w", err)
	}

	dir := filepath.Dir(h.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	tmpPath := h.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, h.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}
