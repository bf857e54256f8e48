// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Dazno Contributors

package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Limiter names used in metrics.
const (
	GeneralLimiter = "general"
	ActionsLimiter = "actions"
	LoginLimiter   = "login"
)

// Limit is a request budget per window.
type Limit struct {
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
}

// Default budgets per route group.
var (
	DefaultGeneralLimit = Limit{MaxRequests: 100, Window: time.Minute}
	DefaultActionsLimit = Limit{MaxRequests: 5, Window: 5 * time.Minute}
	DefaultLoginLimit   = Limit{MaxRequests: 10, Window: time.Minute}
)

// SetConfig holds the budgets for every route group.
type SetConfig struct {
	General         Limit
	Actions         Limit
	Login           Limit
	CleanupInterval time.Duration
	Clock           func() time.Time
}

// DefaultSetConfig returns the stock budgets.
func DefaultSetConfig() SetConfig {
	return SetConfig{
		General:         DefaultGeneralLimit,
		Actions:         DefaultActionsLimit,
		Login:           DefaultLoginLimit,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Set is the process-wide group of limiters. It is built once at startup and
// shared by every route that names a group.
type Set struct {
	General *Limiter
	Actions *Limiter
	Login   *Limiter
}

// NewSet builds all limiters. reg may be nil.
func NewSet(cfg SetConfig, reg prometheus.Registerer) (*Set, error) {
	s := &Set{}
	build := func(name string, lim Limit) (*Limiter, error) {
		c := Config{
			Name:            name,
			MaxRequests:     lim.MaxRequests,
			Window:          lim.Window,
			CleanupInterval: cfg.CleanupInterval,
			Clock:           cfg.Clock,
		}
		if reg == nil {
			return New(c)
		}
		return NewWithRegistry(c, reg)
	}

	var err error
	if s.General, err = build(GeneralLimiter, cfg.General); err != nil {
		return nil, err
	}
	if s.Actions, err = build(ActionsLimiter, cfg.Actions); err != nil {
		s.Close()
		return nil, err
	}
	if s.Login, err = build(LoginLimiter, cfg.Login); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close stops every limiter's cleanup goroutine.
func (s *Set) Close() {
	for _, l := range []*Limiter{s.General, s.Actions, s.Login} {
		if l != nil {
			l.Close()
		}
	}
}
