// Package ratelimit provides per-source request governance on top of
// golang.org/x/time/rate: token buckets keyed by source id, with cooldown
// and exponential backoff when a source signals throttling.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"arbscan/internal/apperror"
)

// SourceLimit configures the sustained rate and burst for one source.
type SourceLimit struct {
	RatePerSec float64 // sustained tokens per second
	Burst      int     // bucket capacity
}

// GovernorConfig holds per-source limits and the shared retry policy.
type GovernorConfig struct {
	Sources     map[string]SourceLimit // per-source limits, keyed by source id
	Default     SourceLimit            // applied to unconfigured sources
	BaseBackoff time.Duration          // first backoff on a throttling error
	MaxBackoff  time.Duration          // backoff ceiling
	Multiplier  float64                // backoff growth factor
	MaxRetries  int                    // throttled attempts before giving up
}

// DefaultGovernorConfig returns a conservative policy: unconfigured sources
// get 1 req/s with no burst headroom.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		Sources:     map[string]SourceLimit{},
		Default:     SourceLimit{RatePerSec: 1, Burst: 1},
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		Multiplier:  2,
		MaxRetries:  3,
	}
}

// SourceStatus is a point-in-time view of one source's governance state.
type SourceStatus struct {
	Tokens            float64
	RatePerSec        float64
	Burst             int
	ConsecutiveErrors int
	CooldownUntil     time.Time
}

// sourceState holds the mutable per-source state. Each source has its own
// lock so unrelated sources never serialize on each other.
type sourceState struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	limit    SourceLimit
	errors   int
	cooldown time.Time
}

// Governor is a per-source rate limiter with throttling backoff. It is safe
// for concurrent use by many callers against the same or different sources.
type Governor struct {
	cfg GovernorConfig

	mu      sync.Mutex
	sources map[string]*sourceState
}

// NewGovernor creates a Governor from cfg. Zero-valued policy fields fall
// back to DefaultGovernorConfig values.
func NewGovernor(cfg GovernorConfig) *Governor {
	def := DefaultGovernorConfig()
	if cfg.Default.RatePerSec <= 0 {
		cfg.Default = def.Default
	}
	if cfg.Default.Burst < 1 {
		cfg.Default.Burst = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}

	return &Governor{
		cfg:     cfg,
		sources: make(map[string]*sourceState),
	}
}

// state returns the per-source state, creating it on first use.
func (g *Governor) state(source string) *sourceState {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.sources[source]; ok {
		return s
	}

	limit, ok := g.cfg.Sources[source]
	if !ok || limit.RatePerSec <= 0 {
		limit = g.cfg.Default
	}
	if limit.Burst < 1 {
		limit.Burst = 1
	}

	s := &sourceState{
		limiter: rate.NewLimiter(rate.Limit(limit.RatePerSec), limit.Burst),
		limit:   limit,
	}
	g.sources[source] = s
	return s
}

// Acquire blocks until the source is out of cooldown and a token is
// available, or the context is cancelled.
func (g *Governor) Acquire(ctx context.Context, source string) error {
	s := g.state(source)

	s.mu.Lock()
	wait := time.Until(s.cooldown)
	s.mu.Unlock()

	if wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	return s.limiter.Wait(ctx)
}

// Execute runs call under the source's rate limit, retrying on throttling
// errors with exponential backoff and jitter. Non-throttling errors are
// returned as-is after resetting nothing; a success resets the source's
// consecutive-error count.
func (g *Governor) Execute(ctx context.Context, source string, call func(ctx context.Context) error) error {
	s := g.state(source)

	for attempt := 0; ; attempt++ {
		if err := g.Acquire(ctx, source); err != nil {
			return err
		}

		err := call(ctx)
		if err == nil {
			s.mu.Lock()
			s.errors = 0
			s.cooldown = time.Time{}
			s.mu.Unlock()
			return nil
		}

		if !apperror.IsThrottled(err) {
			return err
		}

		backoff := g.noteThrottled(s, apperror.RetryAfterHint(err))

		if attempt >= g.cfg.MaxRetries {
			return err
		}

		if serr := sleep(ctx, backoff); serr != nil {
			return serr
		}
	}
}

// noteThrottled records a throttling error for the source and returns the
// backoff to apply: min(max, base * multiplier^errors) plus up to 30%
// jitter, never less than a server-supplied retry-after hint.
func (g *Governor) noteThrottled(s *sourceState, retryAfter time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	backoff := g.cfg.BaseBackoff
	for i := 0; i < s.errors; i++ {
		backoff = time.Duration(float64(backoff) * g.cfg.Multiplier)
		if backoff >= g.cfg.MaxBackoff {
			backoff = g.cfg.MaxBackoff
			break
		}
	}
	s.errors++

	if retryAfter > backoff {
		backoff = retryAfter
	}

	backoff += time.Duration(rand.Float64() * 0.3 * float64(backoff))

	s.cooldown = time.Now().Add(backoff)
	return backoff
}

// Status returns the current governance state for every source touched so
// far, keyed by source id.
func (g *Governor) Status() map[string]SourceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]SourceStatus, len(g.sources))
	for id, s := range g.sources {
		s.mu.Lock()
		out[id] = SourceStatus{
			Tokens:            s.limiter.Tokens(),
			RatePerSec:        s.limit.RatePerSec,
			Burst:             s.limit.Burst,
			ConsecutiveErrors: s.errors,
			CooldownUntil:     s.cooldown,
		}
		s.mu.Unlock()
	}
	return out
}

// Do runs fn under Execute and returns its typed result.
func Do[T any](ctx context.Context, g *Governor, source string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := g.Execute(ctx, source, func(ctx context.Context) error {
		var callErr error
		result, callErr = fn(ctx)
		return callErr
	})
	return result, err
}

// sleep waits for d honoring context cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
