// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.Sleep directly. In production,
// Real() provides standard library behavior. In tests, Fake() provides a
// deterministic clock that advances only when Advance is called.
//
// The rate limiter's fixed windows, the session store's TTL, and the
// background eviction tickers all read time through this interface, so
// window expiry and eviction are tested without wall-clock sleeps.
//
// When a goroutine calls Sleep, After, or NewTicker on a FakeClock, it
// registers a pending waiter. Use WaitForTimers to block until a given
// number of waiters are registered before calling Advance; this removes
// the race between timer registration and time advancement.
package clock
