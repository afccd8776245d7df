package oracle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"metapool/internal/liquidity"
)

// Cached keeps a rate for ttl and lets concurrent callers share one refresh.
type Cached struct {
	inner liquidity.Oracle
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu        sync.RWMutex
	rate      liquidity.Rate
	fetchedAt time.Time
	valid     bool
}

func NewCached(inner liquidity.Oracle, ttl time.Duration) *Cached {
	return &Cached{inner: inner, ttl: ttl, now: time.Now}
}

func (c *Cached) StSOLToWSOLRate(ctx context.Context) (liquidity.Rate, error) {
	if rate, ok := c.cached(); ok {
		return rate, nil
	}

	v, err, _ := c.group.Do("rate", func() (interface{}, error) {
		if rate, ok := c.cached(); ok {
			return rate, nil
		}
		rate, err := c.inner.StSOLToWSOLRate(ctx)
		if err != nil {
			return liquidity.Rate{}, err
		}

		c.mu.Lock()
		c.rate = rate
		c.fetchedAt = c.now()
		c.valid = true
		c.mu.Unlock()
		return rate, nil
	})
	if err != nil {
		return liquidity.Rate{}, err
	}
	return v.(liquidity.Rate), nil
}

func (c *Cached) cached() (liquidity.Rate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid || c.ttl <= 0 {
		return liquidity.Rate{}, false
	}
	if c.now().Sub(c.fetchedAt) >= c.ttl {
		return liquidity.Rate{}, false
	}
	return c.rate, true
}
