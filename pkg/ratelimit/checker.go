// Package ratelimit guards every interaction entry point with a persisted
// fixed-window counter. Fixed windows accept a burst at the boundary in
// exchange for O(1) storage and no decay process.
package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/unity-vault/vaultbot/pkg/dataaccess"
	"github.com/unity-vault/vaultbot/pkg/logging"
)

// limitConfig is a statically configured (limit, window) pair.
type limitConfig struct {
	limit  int
	window time.Duration
}

// limits maps each key kind to its configuration.
var limits = map[Kind]limitConfig{
	KindSlashCommand: {limit: 5, window: 60 * time.Second},
	KindTicketCreate: {limit: 3, window: 300 * time.Second},
	KindComponent:    {limit: 30, window: 60 * time.Second},
}

// Result is the outcome of a rate limit check.
type Result struct {
	// Allowed is whether the action may proceed.
	Allowed bool

	// RetryAfter is how long the actor should wait when denied.
	RetryAfter time.Duration
}

// Checker applies the fixed-window policy on top of the rate limit store.
type Checker struct {
	// l is the logger.
	l *slog.Logger

	// store holds the persisted counters.
	store dataaccess.RateLimitDal

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewChecker creates a checker over the given store.
func NewChecker(l *slog.Logger, store dataaccess.RateLimitDal) *Checker {
	return &Checker{
		l:     l,
		store: store,
		now:   time.Now,
	}
}

// Check records one use of the key and reports whether it is allowed.
// First use in a window starts the window at count 1; further uses increment
// until the limit, after which checks are denied without mutating the
// counter. Once the window has elapsed the next use starts a fresh window.
//
// If the store is unavailable the check fails closed: denying under a
// storage outage is preferred over amplifying abuse.
func (c *Checker) Check(ctx context.Context, key Key) Result {
	cfg, ok := limits[key.Kind]
	if !ok {
		// Unknown kinds have no configured budget. Deny.
		c.l.Error("Rate limit check for unknown kind", slog.Int("kind", int(key.Kind)))
		return Result{Allowed: false, RetryAfter: time.Minute}
	}

	now := c.now()
	denied := Result{Allowed: false, RetryAfter: cfg.window}

	entry, err := c.store.GetEntry(ctx, key.String())
	switch {
	case errors.Is(err, dataaccess.ErrNotFound):
		entry = nil
	case err != nil:
		c.l.Error("Rate limit store read failed, failing closed", slog.String(logging.KeyError, err.Error()))
		return denied
	}

	// First use, or first use after the window rolled over: counts never
	// carry across a window boundary.
	if entry == nil || entry.Expired(now) {
		if err := c.store.StartWindow(ctx, key.String(), now.Add(cfg.window)); err != nil {
			c.l.Error("Rate limit store write failed, failing closed", slog.String(logging.KeyError, err.Error()))
			return denied
		}
		return Result{Allowed: true}
	}

	if entry.Count >= cfg.limit {
		return Result{Allowed: false, RetryAfter: entry.WindowEnd.Sub(now)}
	}

	bumped, err := c.store.Increment(ctx, key.String(), cfg.limit, now)
	if err != nil {
		c.l.Error("Rate limit store write failed, failing closed", slog.String(logging.KeyError, err.Error()))
		return denied
	}
	if !bumped {
		// Lost the race against a concurrent check that consumed the last
		// slot or rolled the window. Treat as over the limit.
		return Result{Allowed: false, RetryAfter: entry.WindowEnd.Sub(now)}
	}
	return Result{Allowed: true}
}

// WithClock replaces the checker's clock. Test hook.
func (c *Checker) WithClock(now func() time.Time) *Checker {
	c.now = now
	return c
}
