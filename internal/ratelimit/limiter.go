// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

// Package ratelimit provides in-memory, per-key request limiters.
//
// Each key gets a fixed window that starts at its first request and resets
// once the window has fully elapsed. This is a window-reset counter, not a
// sliding log: a client may land up to 2x MaxRequests across a window
// boundary (max at the end of one window, max at the start of the next).
// That burst is accepted.
package ratelimit

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

const (
	// DefaultCleanupInterval is how often stale keys are evicted.
	DefaultCleanupInterval = 5 * time.Minute

	// staleFactor is how many windows a key may stay idle before eviction.
	staleFactor = 2
)

// Config configures a Limiter.
type Config struct {
	// Name labels the limiter in metrics and logs.
	Name string

	// MaxRequests is the number of requests admitted per key per window.
	MaxRequests int

	// Window is the length of one counting window.
	Window time.Duration

	// CleanupInterval defaults to DefaultCleanupInterval if zero.
	CleanupInterval time.Duration

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Validate reports a configuration that cannot admit any request.
func (c Config) Validate() error {
	if c.MaxRequests <= 0 {
		return oops.Code("RATELIMIT_INVALID_CONFIG").
			With("limiter", c.Name).
			With("max_requests", c.MaxRequests).
			Errorf("max requests must be positive")
	}
	if c.Window <= 0 {
		return oops.Code("RATELIMIT_INVALID_CONFIG").
			With("limiter", c.Name).
			With("window", c.Window.String()).
			Errorf("window must be positive")
	}
	return nil
}

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter counts requests per key. It is safe for concurrent use.
//
// A Limiter runs a background goroutine that evicts idle keys. Call Close to
// stop it.
type Limiter struct {
	name   string
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// nil unless a registry was provided
	keysGauge prometheus.Gauge
	decisions *prometheus.CounterVec
}

// New creates a Limiter and starts its cleanup goroutine.
func New(cfg Config) (*Limiter, error) {
	return newLimiter(cfg, nil)
}

// NewWithRegistry creates a Limiter and registers its metrics with reg.
// Limiters sharing a registry must have distinct names.
func NewWithRegistry(cfg Config, reg prometheus.Registerer) (*Limiter, error) {
	return newLimiter(cfg, reg)
}

func newLimiter(cfg Config, reg prometheus.Registerer) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	l := &Limiter{
		name:     cfg.Name,
		max:      cfg.MaxRequests,
		window:   cfg.Window,
		now:      now,
		entries:  make(map[string]*entry),
		stopChan: make(chan struct{}),
	}

	if reg != nil {
		labels := prometheus.Labels{"limiter": cfg.Name}
		l.keysGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "dazno_ratelimit_tracked_keys",
			Help:        "Current number of client keys tracked by the rate limiter",
			ConstLabels: labels,
		})
		l.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "dazno_ratelimit_decisions_total",
			Help:        "Total rate limiter decisions by outcome",
			ConstLabels: labels,
		}, []string{"decision"})
		if err := reg.Register(l.keysGauge); err != nil {
			return nil, oops.Code("RATELIMIT_METRICS_FAILED").With("limiter", cfg.Name).Wrap(err)
		}
		if err := reg.Register(l.decisions); err != nil {
			reg.Unregister(l.keysGauge)
			return nil, oops.Code("RATELIMIT_METRICS_FAILED").With("limiter", cfg.Name).Wrap(err)
		}
	}

	l.wg.Add(1)
	go l.cleanupLoop(cleanupInterval)

	return l, nil
}

// Name returns the configured limiter name.
func (l *Limiter) Name() string { return l.name }

// Check records a request for key and reports whether it is admitted.
func (l *Limiter) Check(key string) bool {
	allowed, _ := l.Allow(key)
	return allowed
}

// Allow records a request for key. When the request is denied, retryAfter is
// the time left until the key's window resets; it is zero when allowed.
//
// The decision and the counter update happen in one critical section, so
// concurrent requests for the same key never over-admit.
func (l *Limiter) Allow(key string) (allowed bool, retryAfter time.Duration) {
	l.mu.Lock()
	now := l.now()

	e, ok := l.entries[key]
	switch {
	case !ok:
		l.entries[key] = &entry{count: 1, windowStart: now}
		allowed = true
	case now.Sub(e.windowStart) >= l.window:
		e.count = 1
		e.windowStart = now
		allowed = true
	case e.count < l.max:
		e.count++
		allowed = true
	default:
		retryAfter = e.windowStart.Add(l.window).Sub(now)
	}
	tracked := len(l.entries)
	l.mu.Unlock()

	l.record(allowed, tracked)
	return allowed, retryAfter
}

func (l *Limiter) record(allowed bool, tracked int) {
	if l.decisions == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	l.decisions.WithLabelValues(decision).Inc()
	l.keysGauge.Set(float64(tracked))
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Cleanup evicts keys whose window started more than two windows ago. It is
// called by the background goroutine and may also be called directly.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, e := range l.entries {
		if now.Sub(e.windowStart) > staleFactor*l.window {
			delete(l.entries, key)
			removed++
		}
	}

	if l.keysGauge != nil {
		l.keysGauge.Set(float64(len(l.entries)))
	}
	return removed
}

func (l *Limiter) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine and waits for it to exit. It is safe to
// call more than once.
func (l *Limiter) Close() {
	l.closeOnce.Do(func() { close(l.stopChan) })
	l.wg.Wait()
}
