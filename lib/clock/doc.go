// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Parley is full of wall-clock behavior that is miserable to test
// against real time: the pagination debounce window, typing-notice
// staleness, the receipt refresh interval, retry delays after failed
// history fetches. Production code therefore accepts a Clock parameter
// instead of calling time.Now, time.After, time.NewTicker,
// time.AfterFunc, or time.Sleep directly. In production, Real() is the
// standard library. In tests, Fake() is a deterministic clock that
// advances only when Advance is called.
//
// # Wiring Pattern
//
// Add a Clock field to structs that use time:
//
//	type Scheduler struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	s := &Scheduler{clock: clock.Real()}
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	s := &Scheduler{clock: c}
//	// ... start goroutines ...
//	c.WaitForTimers(1) // wait for goroutine to register a timer
//	c.Advance(2 * time.Second) // fire the timer deterministically
//
// # FakeClock Synchronization
//
// When a goroutine calls Sleep, After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending waiter. Use WaitForTimers to block
// until a specific number of waiters are registered before calling
// Advance. This eliminates the race between timer registration and
// time advancement that plagues tests using time.Sleep for
// synchronization.
package clock
