// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"errors"
	"sync/atomic"
)

// SafeState is the suspension state of a thread.
type SafeState int32

const (
	// Unsafe means the thread is inside an unsafe region and must not be
	// inspected or have its owned state mutated.
	Unsafe SafeState = iota
	// Safe means the thread is outside any unsafe region.
	Safe
	// Suspended means the thread is parked at a safepoint until resumed.
	Suspended
)

// String returns the state name.
func (s SafeState) String() string {
	switch s {
	case Unsafe:
		return "unsafe"
	case Safe:
		return "safe"
	case Suspended:
		return "suspended"
	default:
		return "unknown"
	}
}

var (
	// ErrTerminated is returned by RequestSuspend when the target is gone.
	// No request is left behind and Resume must not be called.
	ErrTerminated = errors.New("thread terminated")

	// ErrSelfSuspend is returned when a thread tries to suspend itself.
	ErrSelfSuspend = errors.New("thread cannot suspend itself")
)

// SafeState returns the published suspension state.
func (t *Thread) SafeState() SafeState {
	return SafeState(t.state.Load())
}

// DisableCount returns the unsafe-region nesting depth.
func (t *Thread) DisableCount() int32 {
	return t.disable.Load()
}

// SuspendRequested reports whether a suspender is waiting on this thread.
func (t *Thread) SuspendRequested() bool {
	return t.request.Load() != 0
}

// EnterUnsafe opens an unsafe region. Regions nest.
//
// Entering the outermost region while a suspend request is pending parks
// the thread first, so a suspender that observed the thread Safe keeps it
// that way until Resume.
func (t *Thread) EnterUnsafe() {
	for {
		if t.disable.Add(1) > 1 {
			return
		}
		if t.request.Load() == 0 {
			t.state.Store(int32(Unsafe))
			return
		}
		// Back out and honour the request.
		t.disable.Add(-1)
		t.ReachSafepoint()
	}
}

// LeaveUnsafe closes an unsafe region.
//
// Leaving the outermost region with a request pending parks the thread in
// ReachSafepoint until resumed.
func (t *Thread) LeaveUnsafe() {
	n := t.disable.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("thread: LeaveUnsafe without matching EnterUnsafe")
	}
	t.state.Store(int32(Safe))
	if t.request.Load() != 0 {
		t.ReachSafepoint()
	}
}

// ReachSafepoint signals that the thread is safe and blocks while any
// suspend request is pending. It is a no-op without a request.
//
// Must be called by the thread itself outside any unsafe region.
func (t *Thread) ReachSafepoint() {
	t.mu.Lock()
	if t.request.Load() != 0 {
		t.parks.Add(1)
		t.state.Store(int32(Suspended))
		t.cond.Broadcast()
		for t.request.Load() != 0 {
			t.cond.Wait()
		}
		t.state.Store(int32(Safe))
	}
	t.mu.Unlock()
}

// Coordinator issues suspend and resume requests.
//
// It is stateless apart from counters; one Coordinator can serve any number
// of threads.
type Coordinator struct {
	requests atomic.Uint64
	waits    atomic.Uint64
}

// CoordinatorStats reports suspension counters.
type CoordinatorStats struct {
	// Requests counts successful RequestSuspend calls.
	Requests uint64
	// Waits counts requests that had to wait for the target to leave an
	// unsafe region.
	Waits uint64
}

// RequestSuspend asks target to stop at a safepoint and returns once the
// target is Safe, Suspended, or Blocked.
//
// On success the caller may mutate state owned by target until it calls
// Resume; target cannot enter an unsafe region in between. self must be in
// a safe region, otherwise two threads suspending each other deadlock.
//
// If target terminates, the request is withdrawn and ErrTerminated is
// returned.
func (c *Coordinator) RequestSuspend(self, target *Thread) error {
	if self == target {
		return ErrSelfSuspend
	}
	if target.IsTerminated() {
		return ErrTerminated
	}

	target.request.Add(1)
	if target.disable.Load() == 0 {
		c.requests.Add(1)
		return nil
	}

	c.waits.Add(1)
	target.mu.Lock()
	for target.disable.Load() != 0 && !target.IsTerminated() {
		target.cond.Wait()
	}
	terminated := target.IsTerminated()
	target.mu.Unlock()

	if terminated {
		c.withdraw(target)
		return ErrTerminated
	}
	c.requests.Add(1)
	return nil
}

// Resume withdraws one request made by RequestSuspend and wakes target if
// no other request remains.
func (c *Coordinator) Resume(target *Thread) {
	c.withdraw(target)
}

func (c *Coordinator) withdraw(target *Thread) {
	target.mu.Lock()
	if target.request.Add(-1) == 0 {
		target.cond.Broadcast()
	}
	target.mu.Unlock()
}

// Stats returns a snapshot of the counters.
func (c *Coordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		Requests: c.requests.Load(),
		Waits:    c.waits.Load(),
	}
}
