package oracle

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"metapool/internal/liquidity"
)

// Fixed always reports the same rate.
type Fixed struct {
	rate liquidity.Rate
}

func NewFixed(rate liquidity.Rate) (*Fixed, error) {
	if err := rate.Validate(); err != nil {
		return nil, err
	}
	return &Fixed{rate: rate}, nil
}

func (f *Fixed) StSOLToWSOLRate(context.Context) (liquidity.Rate, error) {
	return f.rate, nil
}

// Monotonic rejects any rate lower than the highest one it has passed on.
type Monotonic struct {
	inner  liquidity.Oracle
	logger *zap.Logger

	mu   sync.Mutex
	last liquidity.Rate
	seen bool
}

func NewMonotonic(inner liquidity.Oracle, logger *zap.Logger) *Monotonic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monotonic{inner: inner, logger: logger}
}

func (m *Monotonic) StSOLToWSOLRate(ctx context.Context) (liquidity.Rate, error) {
	rate, err := m.inner.StSOLToWSOLRate(ctx)
	if err != nil {
		return liquidity.Rate{}, err
	}
	if err := rate.Validate(); err != nil {
		return liquidity.Rate{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen && rate.Cmp(m.last) < 0 {
		m.logger.Warn("oracle rate decreased",
			zap.Stringer("rate", rate),
			zap.Stringer("last", m.last),
		)
		return liquidity.Rate{}, &liquidity.Error{
			Kind:   liquidity.KindInvalidRate,
			Detail: fmt.Sprintf("rate %s below last observed %s", rate, m.last),
		}
	}
	m.last = rate
	m.seen = true
	return rate, nil
}
