package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is a per-key fixed-window counter held in process memory.
type Limiter struct {
	lim *limiter.Limiter
}

func NewLimiter(name string, limit int, window time.Duration) *Limiter {
	store := memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          name,
		CleanUpInterval: window,
	})
	return &Limiter{
		lim: limiter.New(store, limiter.Rate{Period: window, Limit: int64(limit)}),
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := l.lim.Get(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit %q: %w", key, err)
	}
	if !lctx.Reached {
		return Decision{Allowed: true}, nil
	}

	retry := time.Until(time.Unix(lctx.Reset, 0))
	if retry < time.Second {
		retry = time.Second
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
