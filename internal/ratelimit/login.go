package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/weararcstarz/arcstar/internal/domain"
)

const maxLockShift = 20

type LoginConfig struct {
	MaxAttempts int
	Window      time.Duration
	LockBase    time.Duration
	LockMax     time.Duration
}

type loginEntry struct {
	windowStart time.Time
	count       int
	lockedUntil time.Time
	lockLevel   int
}

// LoginGuard counts failed logins per key inside a fixed window and locks the
// key out with an exponentially growing duration each time the threshold is
// reached.
type LoginGuard struct {
	cfg LoginConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*loginEntry
}

func NewLoginGuard(cfg LoginConfig) *LoginGuard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.LockBase <= 0 {
		cfg.LockBase = time.Minute
	}
	if cfg.LockMax < cfg.LockBase {
		cfg.LockMax = cfg.LockBase
	}
	return &LoginGuard{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*loginEntry),
	}
}

// SetClock replaces the time source. Tests only.
func (g *LoginGuard) SetClock(now func() time.Time) {
	g.mu.Lock()
	g.now = now
	g.mu.Unlock()
}

// Check reports whether key may attempt a login and, when it may not, how many
// seconds remain on the lock.
func (g *LoginGuard) Check(key string) (bool, int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		return true, 0
	}
	now := g.now()
	if now.Before(e.lockedUntil) {
		return false, domain.CeilSeconds(e.lockedUntil.Sub(now))
	}
	return true, 0
}

// NoteFailure records a failed attempt and returns the lock duration in
// seconds, or 0 if key is not locked.
func (g *LoginGuard) NoteFailure(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.entries[key]
	if !ok {
		e = &loginEntry{windowStart: now}
		g.entries[key] = e
	}
	if now.Before(e.lockedUntil) {
		return domain.CeilSeconds(e.lockedUntil.Sub(now))
	}
	if now.Sub(e.windowStart) >= g.cfg.Window {
		e.windowStart = now
		e.count = 0
		e.lockLevel = 0
	}

	e.count++
	if e.count < g.cfg.MaxAttempts {
		return 0
	}

	e.lockLevel++
	d := g.LockDuration(e.lockLevel)
	e.lockedUntil = now.Add(d)
	e.count = 0
	// The next window opens when the lock lifts, so failures right after an
	// expired lock escalate instead of starting over.
	e.windowStart = e.lockedUntil
	return domain.CeilSeconds(d)
}

func (g *LoginGuard) Reset(key string) {
	g.mu.Lock()
	delete(g.entries, key)
	g.mu.Unlock()
}

// LockDuration is base * 2^(level-1), capped at the configured maximum.
func (g *LoginGuard) LockDuration(level int) time.Duration {
	if level < 1 {
		return 0
	}
	shift := level - 1
	if shift > maxLockShift {
		shift = maxLockShift
	}
	d := g.cfg.LockBase << shift
	if d > g.cfg.LockMax || d <= 0 {
		return g.cfg.LockMax
	}
	return d
}

// Sweep drops entries that are neither locked nor inside an open window.
func (g *LoginGuard) Sweep(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, e := range g.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		if now.Sub(e.windowStart) < g.cfg.Window {
			continue
		}
		delete(g.entries, key)
		removed++
	}
	return removed
}

func (g *LoginGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

// Run sweeps every interval until ctx is done.
func (g *LoginGuard) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.mu.Lock()
			now := g.now()
			g.mu.Unlock()
			g.Sweep(now)
		}
	}
}
