package auth

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// LoginDelay slows every failed login by Min plus a random jitter in
// [0, Jitter).
type LoginDelay struct {
	Min    time.Duration
	Jitter time.Duration
}

var DefaultLoginDelay = LoginDelay{Min: 400 * time.Millisecond, Jitter: 400 * time.Millisecond}

func (d LoginDelay) Duration() time.Duration {
	total := d.Min
	if d.Jitter > 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(d.Jitter)))
		if err == nil {
			total += time.Duration(n.Int64())
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// Wait blocks for Duration or until ctx is done.
func (d LoginDelay) Wait(ctx context.Context) {
	dur := d.Duration()
	if dur <= 0 {
		return
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
