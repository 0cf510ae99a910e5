// Package ratelimit implements per-user message admission control: a
// 60-second sliding window, a 10-second burst window and a cooldown
// penalty. State is process-local and lost on restart by design.
package ratelimit

import (
	"sync"
	"time"
)

const (
	windowLength = 60 * time.Second
	burstWindow  = 10 * time.Second
)

// Config holds the limiter knobs.
type Config struct {
	Enabled           bool
	MessagesPerMinute int
	BurstLimit        int
	Cooldown          time.Duration
}

// DefaultConfig mirrors the documented defaults: 30 messages per minute,
// burst of 5 within 10s, 60s cooldown.
func DefaultConfig() Config {
	return Config{Enabled: true, MessagesPerMinute: 30, BurstLimit: 5, Cooldown: 60 * time.Second}
}

// Status is a non-mutating snapshot of one user's rate state.
type Status struct {
	MessagesThisMinute     int     `json:"messages_this_minute"`
	MessagesPerMinuteLimit int     `json:"messages_per_minute_limit"`
	RecentMessages         int     `json:"recent_messages"`
	BurstLimit             int     `json:"burst_limit"`
	CooldownRemaining      float64 `json:"cooldown_remaining"`
}

type userState struct {
	window    []time.Time
	lastBurst time.Time
}

// Limiter tracks per-user send timestamps. All state is guarded by one
// mutex; the hot path is O(window size), bounded by MessagesPerMinute.
type Limiter struct {
	mu    sync.Mutex
	cfg   Config
	users map[string]*userState
	now   func() time.Time
}

// New builds a limiter. Zero or negative knobs fall back to the defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.MessagesPerMinute <= 0 {
		cfg.MessagesPerMinute = def.MessagesPerMinute
	}
	if cfg.BurstLimit <= 0 {
		cfg.BurstLimit = def.BurstLimit
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &Limiter{cfg: cfg, users: make(map[string]*userState), now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Enabled reports whether admission control is active.
func (l *Limiter) Enabled() bool { return l.cfg.Enabled }

func (l *Limiter) state(user string) *userState {
	st, ok := l.users[user]
	if !ok {
		st = &userState{}
		l.users[user] = st
	}
	return st
}

// prune drops window entries older than 60s.
func (st *userState) prune(now time.Time) {
	cut := 0
	for cut < len(st.window) && now.Sub(st.window[cut]) > windowLength {
		cut++
	}
	if cut > 0 {
		st.window = append(st.window[:0], st.window[cut:]...)
	}
}

func (st *userState) recent(now time.Time) int {
	n := 0
	for _, t := range st.window {
		if now.Sub(t) <= burstWindow {
			n++
		}
	}
	return n
}

// Allow decides admission for one send at the current time. When denied,
// wait is the hint the caller should back off for. The check order is
// fixed: cooldown, minute cap, burst cap, admit.
func (l *Limiter) Allow(user string) (bool, time.Duration) {
	if !l.cfg.Enabled {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.state(user)
	st.prune(now)

	if !st.lastBurst.IsZero() {
		if remaining := l.cfg.Cooldown - now.Sub(st.lastBurst); remaining > 0 {
			return false, remaining
		}
	}

	if len(st.window) >= l.cfg.MessagesPerMinute {
		wait := windowLength - now.Sub(st.window[0])
		return false, wait
	}

	if st.recent(now) >= l.cfg.BurstLimit {
		st.lastBurst = now
		return false, l.cfg.Cooldown
	}

	st.window = append(st.window, now)
	return true, 0
}

// Reset clears all rate state for a user.
func (l *Limiter) Reset(user string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.users, user)
}

// Status reports the user's current window occupancy, recent burst count
// and remaining cooldown without affecting admission.
func (l *Limiter) Status(user string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st := l.state(user)
	st.prune(now)

	var cooldown float64
	if !st.lastBurst.IsZero() {
		if remaining := l.cfg.Cooldown - now.Sub(st.lastBurst); remaining > 0 {
			cooldown = remaining.Seconds()
		}
	}
	return Status{
		MessagesThisMinute:     len(st.window),
		MessagesPerMinuteLimit: l.cfg.MessagesPerMinute,
		RecentMessages:         st.recent(now),
		BurstLimit:             l.cfg.BurstLimit,
		CooldownRemaining:      cooldown,
	}
}
