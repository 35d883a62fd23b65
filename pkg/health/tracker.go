// Package health tracks provider and model availability from observed call
// outcomes.
package health

import (
	"sort"
	"sync"
	"time"
)

// Outcome is the observed result of a provider call.
type Outcome int

const (
	Success Outcome = iota
	RateLimited
	Error
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Key identifies a health entry. An empty Model is the provider-wide key.
type Key struct {
	Provider string
	Model    string
}

// ModelKey returns the key for a provider/model pair.
func ModelKey(provider, model string) Key {
	return Key{Provider: provider, Model: model}
}

// ProviderKey returns the coarse provider-wide key.
func ProviderKey(provider string) Key {
	return Key{Provider: provider}
}

func (k Key) String() string {
	if k.Model == "" {
		return k.Provider
	}
	return k.Provider + "/" + k.Model
}

// State is a point-in-time view of one health entry.
type State struct {
	Provider            string     `json:"provider"`
	Model               string     `json:"model,omitempty"`
	Available           bool       `json:"available"`
	CooldownUntil       *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastOutcome         string     `json:"last_outcome"`
	LastError           string     `json:"last_error,omitempty"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Key returns the key the state belongs to.
func (s State) Key() Key {
	return Key{Provider: s.Provider, Model: s.Model}
}

type entry struct {
	mu            sync.Mutex
	cooldownUntil time.Time
	failures      int
	lastOutcome   Outcome
	lastErr       string
	updatedAt     time.Time
}

// Tracker holds health entries. Each entry has its own lock, so updates for
// unrelated keys never contend.
type Tracker struct {
	entries    sync.Map // Key -> *entry
	base       time.Duration
	max        time.Duration
	resetAfter time.Duration
	now        func() time.Time
	listener   func(State)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithBackoff sets the first cooldown and the cap.
func WithBackoff(base, max time.Duration) Option {
	return func(t *Tracker) {
		if base > 0 {
			t.base = base
		}
		if max >= t.base {
			t.max = max
		}
	}
}

// WithResetAfter sets how long a key must stay clear before its failure
// count decays to zero. Zero disables decay.
func WithResetAfter(d time.Duration) Option {
	return func(t *Tracker) { t.resetAfter = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithListener registers a callback invoked after every failure outcome,
// each of which opens or extends a cooldown. It runs outside any tracker lock.
func WithListener(fn func(State)) Option {
	return func(t *Tracker) { t.listener = fn }
}

// NewTracker creates a tracker with a 1s base backoff capped at 5m.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		base:       time.Second,
		max:        5 * time.Minute,
		resetAfter: 10 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.max < t.base {
		t.max = t.base
	}
	return t
}

func (t *Tracker) entry(key Key) *entry {
	if e, ok := t.entries.Load(key); ok {
		return e.(*entry)
	}
	e, _ := t.entries.LoadOrStore(key, &entry{})
	return e.(*entry)
}

// RecordOutcome applies an observed outcome. Success clears the entry;
// RateLimited and Error extend the cooldown. The cooldown deadline only moves
// forward on failures, whatever order concurrent failures land in.
func (t *Tracker) RecordOutcome(key Key, outcome Outcome, cause error) {
	e := t.entry(key)
	now := t.now()

	e.mu.Lock()
	if e.failures > 0 && t.resetAfter > 0 && !now.Before(e.cooldownUntil.Add(t.resetAfter)) {
		e.failures = 0
	}

	e.lastOutcome = outcome
	e.updatedAt = now
	switch outcome {
	case Success:
		e.failures = 0
		e.cooldownUntil = time.Time{}
		e.lastErr = ""
	default:
		e.failures++
		if until := now.Add(t.backoff(e.failures)); until.After(e.cooldownUntil) {
			e.cooldownUntil = until
		}
		if cause != nil {
			e.lastErr = cause.Error()
		}
	}
	state := e.state(key, now)
	e.mu.Unlock()

	if outcome != Success && t.listener != nil {
		t.listener(state)
	}
}

// IsAvailable reports whether key is outside any cooldown. Unknown keys are
// available.
func (t *Tracker) IsAvailable(key Key) bool {
	v, ok := t.entries.Load(key)
	if !ok {
		return true
	}
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()
	return !t.now().Before(e.cooldownUntil)
}

// Snapshot returns every known entry ordered by key.
func (t *Tracker) Snapshot() []State {
	now := t.now()
	var states []State
	t.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		states = append(states, e.state(k.(Key), now))
		e.mu.Unlock()
		return true
	})

	sort.Slice(states, func(i, j int) bool {
		if states[i].Provider != states[j].Provider {
			return states[i].Provider < states[j].Provider
		}
		return states[i].Model < states[j].Model
	})
	return states
}

// backoff returns base * 2^(failures-1), capped at max.
func (t *Tracker) backoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	shift := failures - 1
	if shift > 30 {
		return t.max
	}
	d := t.base << shift
	if d <= 0 || d > t.max {
		return t.max
	}
	return d
}

// state must be called with e.mu held.
func (e *entry) state(key Key, now time.Time) State {
	s := State{
		Provider:            key.Provider,
		Model:               key.Model,
		Available:           !now.Before(e.cooldownUntil),
		ConsecutiveFailures: e.failures,
		LastOutcome:         e.lastOutcome.String(),
		LastError:           e.lastErr,
		UpdatedAt:           e.updatedAt,
	}
	if !e.cooldownUntil.IsZero() {
		until := e.cooldownUntil
		s.CooldownUntil = &until
	}
	return s
}
