// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/claudebot/bridge/lib/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestAllowUpToCapacity(t *testing.T) {
	limiter := New(3, time.Minute, clock.Fake(epoch))

	for i := range 3 {
		decision := limiter.Allow(42)
		if !decision.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("request %d Remaining = %d, want %d", i+1, decision.Remaining, 2-i)
		}
	}

	decision := limiter.Allow(42)
	if decision.Allowed {
		t.Fatal("4th request in window allowed, want denied")
	}
}

func TestDenialReportsRetryAfter(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	limiter := New(1, time.Minute, fakeClock)

	limiter.Allow(7)
	fakeClock.Advance(20 * time.Second)

	decision := limiter.Allow(7)
	if decision.Allowed {
		t.Fatal("second request allowed, want denied")
	}
	if decision.RetryAfter != 40*time.Second {
		t.Fatalf("RetryAfter = %v, want 40s", decision.RetryAfter)
	}
}

func TestWindowResetsAfterElapse(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	limiter := New(2, time.Minute, fakeClock)

	limiter.Allow(1)
	limiter.Allow(1)
	if limiter.Allow(1).Allowed {
		t.Fatal("3rd request allowed within window")
	}

	fakeClock.Advance(time.Minute)

	decision := limiter.Allow(1)
	if !decision.Allowed {
		t.Fatal("request after window elapse denied, want allowed (fresh count)")
	}
	if decision.Remaining != 1 {
		t.Fatalf("Remaining after reset = %d, want 1", decision.Remaining)
	}
}

func TestCallersAreIndependent(t *testing.T) {
	limiter := New(1, time.Minute, clock.Fake(epoch))

	if !limiter.Allow(1).Allowed {
		t.Fatal("caller 1 first request denied")
	}
	if limiter.Allow(1).Allowed {
		t.Fatal("caller 1 second request allowed")
	}
	// An exhausted window for one caller must not affect another.
	if !limiter.Allow(2).Allowed {
		t.Fatal("caller 2 first request denied")
	}
}

func TestConcurrentCallers(t *testing.T) {
	limiter := New(100, time.Minute, clock.Fake(epoch))

	const callerCount = 16
	const requestsPerCaller = 50

	var waitGroup sync.WaitGroup
	for caller := range int64(callerCount) {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			for range requestsPerCaller {
				if !limiter.Allow(caller).Allowed {
					t.Errorf("caller %d denied under capacity", caller)
					return
				}
			}
		}()
	}
	waitGroup.Wait()

	// Every caller's window should be exactly at requestsPerCaller.
	for caller := range int64(callerCount) {
		decision := limiter.Allow(caller)
		if decision.Remaining != 100-requestsPerCaller-1 {
			t.Fatalf("caller %d Remaining = %d, want %d",
				caller, decision.Remaining, 100-requestsPerCaller-1)
		}
	}
}

func TestSweepEvictsIdleWindows(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	limiter := New(10, time.Minute, fakeClock)
	limiter.SetIdleHorizon(5 * time.Minute)

	limiter.Allow(1)
	limiter.Allow(2)
	fakeClock.Advance(4 * time.Minute)
	limiter.Allow(2) // refreshes caller 2's lastSeen

	fakeClock.Advance(2 * time.Minute)
	evicted := limiter.Sweep()
	if evicted != 1 {
		t.Fatalf("Sweep evicted %d, want 1", evicted)
	}
	if limiter.Len() != 1 {
		t.Fatalf("Len = %d after sweep, want 1", limiter.Len())
	}

	// The evicted caller starts over with a fresh window.
	if !limiter.Allow(1).Allowed {
		t.Fatal("evicted caller denied on new request")
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	fakeClock := clock.Fake(epoch)
	limiter := New(10, time.Minute, fakeClock)
	limiter.SetIdleHorizon(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.RunSweeper(ctx, time.Minute)
		close(done)
	}()

	limiter.Allow(1)
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(2 * time.Minute)

	// The sweeper has ticked at least once; the idle window is gone
	// eventually. Poll via the fake clock rather than sleeping.
	for limiter.Len() != 0 {
		fakeClock.Advance(time.Minute)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunSweeper did not return after cancel")
	}
}

func TestDefaults(t *testing.T) {
	limiter := New(0, 0, nil)
	if limiter.capacity != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", limiter.capacity, DefaultCapacity)
	}
	if limiter.window != DefaultWindow {
		t.Fatalf("window = %v, want %v", limiter.window, DefaultWindow)
	}
}
