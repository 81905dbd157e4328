// Package ratelimit implements per-identifier sliding-window counters
// with temporary blocking.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/paygate/metrics"
)

const DefaultCleanupInterval = time.Minute

var ErrUnknownClass = errors.New("unknown rate limit class")

// Config configures a Limiter
type Config struct {
	Enabled         bool
	Policies        map[Class]Policy
	CleanupInterval time.Duration
}

// Option configures optional Limiter collaborators
type Option func(*Limiter)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// WithMetrics records every decision
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

type counterKey struct {
	class Class
	id    string
}

type counter struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Limiter holds process-local counters keyed by (class, identifier).
// Every check runs its read, reset, increment and block steps under one
// mutex, so concurrent requests for a key never observe a stale count.
type Limiter struct {
	enabled  bool
	policies map[Class]Policy
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	counters map[counterKey]*counter
	warned   map[Class]struct{}

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a limiter. With cfg.Enabled false every Check allows.
func New(cfg Config, opts ...Option) *Limiter {
	policies := cfg.Policies
	if policies == nil {
		policies = DefaultPolicies()
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}

	l := &Limiter{
		enabled:  cfg.Enabled,
		policies: policies,
		interval: interval,
		now:      time.Now,
		logger:   slog.Default(),
		counters: make(map[counterKey]*counter),
		warned:   make(map[Class]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Enabled reports whether the limiter enforces policies
func (l *Limiter) Enabled() bool {
	return l.enabled
}

// Check counts a request for identifier in class and decides whether it may proceed
func (l *Limiter) Check(class Class, identifier string) Decision {
	if !l.enabled {
		l.record(class, "disabled")
		return Decision{Allowed: true}
	}

	policy, ok := l.policies[class]
	if !ok {
		l.warnUnbounded(class)
		l.record(class, "unbounded")
		return Decision{Allowed: true, Unbounded: true}
	}

	d := l.check(policy, counterKey{class: class, id: identifier})
	if d.Allowed {
		l.record(class, "allowed")
	} else {
		l.record(class, "blocked")
	}
	return d
}

func (l *Limiter) check(policy Policy, key counterKey) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{windowStart: now}
		l.counters[key] = c
	}

	if now.Before(c.blockedUntil) {
		return Decision{Blocked: true, RetryAfter: c.blockedUntil.Sub(now)}
	}

	// A block that has run out starts a fresh window
	if !c.blockedUntil.IsZero() {
		c.blockedUntil = time.Time{}
		c.count = 0
		c.windowStart = now
	}

	if now.Sub(c.windowStart) >= policy.Window {
		c.count = 0
		c.windowStart = now
	}

	if c.count+1 > policy.MaxRequests {
		c.blockedUntil = now.Add(policy.BlockDuration)
		l.logger.Warn("rate limit exceeded, blocking identifier",
			"class", key.class, "identifier", key.id, "block", policy.BlockDuration)
		return Decision{Blocked: true, RetryAfter: policy.BlockDuration}
	}

	c.count++
	return Decision{Allowed: true, Remaining: policy.MaxRequests - c.count}
}

// Block denies identifier in class for duration regardless of its count
func (l *Limiter) Block(class Class, identifier string, duration time.Duration) error {
	if _, ok := l.policies[class]; !ok {
		return ErrUnknownClass
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	key := counterKey{class: class, id: identifier}
	c, ok := l.counters[key]
	if !ok {
		c = &counter{windowStart: now}
		l.counters[key] = c
	}
	c.blockedUntil = now.Add(duration)
	return nil
}

// Unblock clears any block and count for identifier in class
func (l *Limiter) Unblock(class Class, identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.counters, counterKey{class: class, id: identifier})
}

// Cleanup evicts counters whose window has expired and that are not
// blocked. It returns the number of evicted counters.
func (l *Limiter) Cleanup() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, c := range l.counters {
		policy, ok := l.policies[key.class]
		if !ok {
			delete(l.counters, key)
			evicted++
			continue
		}
		if now.Sub(c.windowStart) >= policy.Window && !now.Before(c.blockedUntil) {
			delete(l.counters, key)
			evicted++
		}
	}
	return evicted
}

// Len returns the number of tracked counters
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Start runs Cleanup on the configured interval until Stop is called or
// ctx is done. Calling Start on a running limiter does nothing.
func (l *Limiter) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	go l.run(ctx, done)
}

// Stop halts the cleanup loop and waits for it to exit. It is safe to call
// on a limiter that was never started.
func (l *Limiter) Stop() {
	l.runMu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the cleanup loop was started and not stopped
func (l *Limiter) Running() bool {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	return l.cancel != nil
}

func (l *Limiter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug("rate limit counters evicted", "count", n)
			}
		}
	}
}

func (l *Limiter) warnUnbounded(class Class) {
	l.mu.Lock()
	_, seen := l.warned[class]
	l.warned[class] = struct{}{}
	l.mu.Unlock()

	if !seen {
		l.logger.Warn("no rate limit policy for class, allowing unbounded", "class", class)
	}
}

func (l *Limiter) record(class Class, decision string) {
	if l.metrics != nil {
		l.metrics.RateLimitDecisions.WithLabelValues(string(class), decision).Inc()
	}
}
