package ledger

import (
	"context"
	"sync"

	"metapool/internal/liquidity"
)

// MemoryHost serializes transactions over an in-process Book. Each Update runs
// on a clone that replaces the committed book only when fn succeeds.
type MemoryHost struct {
	mu   sync.RWMutex
	book *Book
}

func NewMemoryHost() *MemoryHost {
	return &MemoryHost{book: NewBook()}
}

// NewMemoryHostFrom wraps an existing book.
func NewMemoryHostFrom(book *Book) *MemoryHost {
	return &MemoryHost{book: book.Clone()}
}

func (h *MemoryHost) Update(ctx context.Context, fn func(liquidity.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	work := h.book.Clone()
	if err := fn(work); err != nil {
		return err
	}
	h.book = work
	return nil
}

func (h *MemoryHost) View(ctx context.Context, fn func(liquidity.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	work := h.book.Clone()
	h.mu.RUnlock()

	return fn(work)
}

// Snapshot returns a copy of the committed book.
func (h *MemoryHost) Snapshot() *Book {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.book.Clone()
}
