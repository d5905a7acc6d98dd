// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit bounds the rate of admitted requests per caller
// with a fixed window, protecting the executor from overload.
//
// Each caller has an independent window counter with its own lock, so
// concurrent requests from different callers never serialize against
// each other. The registry lock guards only map lookup and insertion,
// never a counter mutation.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/claudebot/bridge/lib/clock"
)

// Defaults match the bridge's admission policy: 10 requests per
// 60-second window, with windows idle for 10 minutes evicted to bound
// memory under many distinct callers.
const (
	DefaultCapacity    = 10
	DefaultWindow      = 60 * time.Second
	DefaultIdleHorizon = 10 * time.Minute
)

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the request is admitted.
	Allowed bool

	// Remaining is the number of requests left in the current window
	// after this one. Zero when denied.
	Remaining int

	// RetryAfter is how long until the current window resets. Only
	// meaningful when Allowed is false.
	RetryAfter time.Duration
}

// callerWindow is the per-caller fixed-window counter. Mutated only
// under its own mutex.
type callerWindow struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// Limiter is a per-caller fixed-window rate limiter.
type Limiter struct {
	capacity    int
	window      time.Duration
	idleHorizon time.Duration
	clock       clock.Clock

	// mu guards the callers map only. Counter state is guarded by
	// each callerWindow's own mutex.
	mu      sync.RWMutex
	callers map[int64]*callerWindow
}

// New creates a Limiter admitting up to capacity requests per caller
// per window. Non-positive capacity or window fall back to the
// defaults.
func New(capacity int, window time.Duration, clk clock.Clock) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{
		capacity:    capacity,
		window:      window,
		idleHorizon: DefaultIdleHorizon,
		clock:       clk,
		callers:     make(map[int64]*callerWindow),
	}
}

// SetIdleHorizon overrides how long an untouched caller window
// survives before Sweep evicts it. Must be called before the limiter
// is shared across goroutines.
func (l *Limiter) SetIdleHorizon(horizon time.Duration) {
	if horizon > 0 {
		l.idleHorizon = horizon
	}
}

// Allow checks and consumes one slot of the caller's current window.
// If the window has elapsed, the counter resets and a new window
// starts at the current time.
func (l *Limiter) Allow(callerID int64) Decision {
	now := l.clock.Now()
	window := l.lookup(callerID, now)

	window.mu.Lock()
	defer window.mu.Unlock()

	window.lastSeen = now
	if now.Sub(window.windowStart) >= l.window {
		window.count = 0
		window.windowStart = now
	}

	if window.count >= l.capacity {
		return Decision{
			Allowed:    false,
			RetryAfter: window.windowStart.Add(l.window).Sub(now),
		}
	}

	window.count++
	return Decision{
		Allowed:   true,
		Remaining: l.capacity - window.count,
	}
}

// lookup returns the caller's window, creating it on first request.
func (l *Limiter) lookup(callerID int64, now time.Time) *callerWindow {
	l.mu.RLock()
	window, ok := l.callers[callerID]
	l.mu.RUnlock()
	if ok {
		return window
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if window, ok := l.callers[callerID]; ok {
		return window
	}
	window = &callerWindow{windowStart: now, lastSeen: now}
	l.callers[callerID] = window
	return window
}

// Len returns the number of tracked caller windows.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.callers)
}

// Sweep evicts windows idle beyond the horizon and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for callerID, window := range l.callers {
		window.mu.Lock()
		idle := now.Sub(window.lastSeen) > l.idleHorizon
		window.mu.Unlock()
		if idle {
			delete(l.callers, callerID)
			evicted++
		}
	}
	return evicted
}

// RunSweeper sweeps idle windows at the given interval until the
// context is cancelled. Intended to run as a background goroutine for
// the server's lifetime.
func (l *Limiter) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := l.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
