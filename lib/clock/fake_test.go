// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvance(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeAfter(t *testing.T) {
	clock := Fake(epoch)
	channel := clock.After(3 * time.Second)

	select {
	case <-channel:
		t.Fatal("After fired before Advance")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired before its deadline")
	default:
	}

	clock.Advance(time.Second)
	select {
	case <-channel:
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	clock := Fake(epoch)
	for _, d := range []time.Duration{0, -time.Second} {
		select {
		case <-clock.After(d):
		default:
			t.Fatalf("After(%v) should fire immediately", d)
		}
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Bool
	timer := clock.AfterFunc(2*time.Second, func() { fired.Store(true) })

	if !timer.Stop() {
		t.Fatal("Stop() = false for pending timer")
	}
	clock.Advance(5 * time.Second)
	if fired.Load() {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("Stop() = true for already-stopped timer")
	}
}

func TestFakeAfterFuncResetExtendsDeadline(t *testing.T) {
	clock := Fake(epoch)
	var fired atomic.Int32
	timer := clock.AfterFunc(2*time.Second, func() { fired.Add(1) })

	// A reset before the deadline pushes the deadline out, the way
	// the pagination debouncer re-arms on every new scroll request.
	clock.Advance(time.Second)
	if !timer.Reset(2 * time.Second) {
		t.Fatal("Reset() = false for active timer")
	}
	clock.Advance(time.Second)
	if fired.Load() != 0 {
		t.Fatal("timer fired at original deadline after Reset")
	}
	clock.Advance(time.Second)
	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want 1", fired.Load())
	}

	// Reset after firing re-arms the timer.
	if timer.Reset(time.Second) {
		t.Fatal("Reset() = true for fired timer")
	}
	clock.Advance(time.Second)
	if fired.Load() != 2 {
		t.Fatalf("fired %d times after re-arm, want 2", fired.Load())
	}
}

func TestFakeAfterFuncOrder(t *testing.T) {
	clock := Fake(epoch)
	var mu sync.Mutex
	var order []int

	clock.AfterFunc(3*time.Second, func() {
		mu.Lock()
		order = append(order, 3)
		mu.Unlock()
	})
	clock.AfterFunc(1*time.Second, func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
	})
	clock.AfterFunc(2*time.Second, func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
	})

	clock.Advance(5 * time.Second)

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("callbacks fired in order %v, want [1 2 3]", order)
	}
}

func TestFakeTicker(t *testing.T) {
	clock := Fake(epoch)
	ticker := clock.NewTicker(5 * time.Second)
	defer ticker.Stop()

	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after one interval")
	}

	// Spanning several intervals delivers at most the buffered one.
	clock.Advance(15 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after spanning intervals")
	}

	ticker.Stop()
	clock.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeSleepBlocksUntilAdvance(t *testing.T) {
	clock := Fake(epoch)
	done := make(chan struct{})

	go func() {
		clock.Sleep(2 * time.Second)
		close(done)
	}()

	clock.WaitForTimers(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestFakePendingCount(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.PendingCount(); got != 0 {
		t.Fatalf("PendingCount() = %d, want 0", got)
	}
	clock.After(time.Second)
	timer := clock.AfterFunc(time.Second, func() {})
	if got := clock.PendingCount(); got != 2 {
		t.Fatalf("PendingCount() = %d, want 2", got)
	}
	timer.Stop()
	if got := clock.PendingCount(); got != 1 {
		t.Fatalf("PendingCount() after Stop = %d, want 1", got)
	}
}
