// Package ratelimit implements the per-user sliding-window quota with cooldown.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Defaults applied when a Config field is zero.
const (
	DefaultLimit    = 50
	DefaultWindow   = time.Hour
	DefaultCooldown = 30 * time.Minute
)

// Config holds limiter configuration.
type Config struct {
	Limit    int
	Window   time.Duration
	Cooldown time.Duration
}

// Decision is the outcome of a single Check.
type Decision struct {
	Allowed bool
	// Remaining is the time left in cooldown when blocked.
	Remaining time.Duration
}

// Minutes returns the cooldown remaining rounded up to whole minutes.
func (d Decision) Minutes() int {
	if d.Remaining <= 0 {
		return 0
	}
	return int((d.Remaining + time.Minute - 1) / time.Minute)
}

// state is the window and cooldown of one identity. Its mutex covers the whole
// check-and-append so concurrent messages from one user cannot both slip in.
type state struct {
	mu             sync.Mutex
	timestamps     []time.Time
	cooldownExpiry time.Time
}

// Limiter tracks request timestamps per identity.
//
// Locking is two-level: the registry mutex only guards the map itself, and
// each identity's state carries its own mutex. Identities never contend with
// each other on a check.
type Limiter struct {
	cfg   Config
	clock clockwork.Clock

	mu     sync.Mutex
	states map[int64]*state
}

// New creates a limiter using the real clock.
func New(cfg Config) *Limiter {
	return NewWithClock(cfg, clockwork.NewRealClock())
}

// NewWithClock creates a limiter driven by the given clock.
func NewWithClock(cfg Config, clock clockwork.Clock) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Limiter{
		cfg:    cfg,
		clock:  clock,
		states: make(map[int64]*state),
	}
}

// Check records a request for identity if it is within quota.
func (l *Limiter) Check(identity int64) Decision {
	s := l.stateFor(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := l.clock.Now()

	if now.Before(s.cooldownExpiry) {
		return Decision{Remaining: s.cooldownExpiry.Sub(now)}
	}

	// The window is (now-Window, now]: a request exactly Window old has aged out.
	cutoff := now.Add(-l.cfg.Window)
	evict := 0
	for evict < len(s.timestamps) && !s.timestamps[evict].After(cutoff) {
		evict++
	}
	if evict > 0 {
		s.timestamps = append(s.timestamps[:0], s.timestamps[evict:]...)
	}

	if len(s.timestamps) >= l.cfg.Limit {
		expiry := now.Add(l.cfg.Cooldown)
		if expiry.After(s.cooldownExpiry) {
			s.cooldownExpiry = expiry
		}
		return Decision{Remaining: l.cfg.Cooldown}
	}

	s.timestamps = append(s.timestamps, now)
	return Decision{Allowed: true}
}

// Refund gives back the most recent request recorded for identity. It is
// used when an allowed request could not be queued.
func (l *Limiter) Refund(identity int64) {
	s := l.stateFor(identity)

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.timestamps); n > 0 {
		s.timestamps = s.timestamps[:n-1]
	}
}

func (l *Limiter) stateFor(identity int64) *state {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.states[identity]
	if !ok {
		s = &state{}
		l.states[identity] = s
	}
	return s
}

// Stats summarizes limiter state.
type Stats struct {
	Identities  int `json:"identities"`
	CoolingDown int `json:"cooling_down"`
}

// Stats returns how many identities are tracked and how many are locked out.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	states := make([]*state, 0, len(l.states))
	for _, s := range l.states {
		states = append(states, s)
	}
	l.mu.Unlock()

	now := l.clock.Now()
	stats := Stats{Identities: len(states)}
	for _, s := range states {
		s.mu.Lock()
		if now.Before(s.cooldownExpiry) {
			stats.CoolingDown++
		}
		s.mu.Unlock()
	}
	return stats
}
