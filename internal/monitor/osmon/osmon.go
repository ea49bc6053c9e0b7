// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package osmon implements the blocking monitor behind an inflated lock.
//
// Monitor is a recursive mutex with a FIFO wait set:
//   - Enter/Exit: recursive acquisition by thread id
//   - Wait: releases every hold, parks until notify, timeout or interrupt,
//     then reacquires at the original depth
//   - Notify/NotifyAll: wake the oldest waiter or all of them
//
// The entry queue is a sync.Cond, so wake-up order between entrants is
// whatever the Go scheduler gives. Waiters park on their own channel,
// which is what makes timed and interruptible waits possible.
package osmon

import (
	"sync"
	"time"

	"github.com/kolkov/thinmon/internal/monitor/result"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// waiter is one thread parked in Wait.
type waiter struct {
	ch       chan struct{} // closed by notify
	notified bool          // set under Monitor.mu when ch is closed
}

// Monitor is a recursive blocking monitor.
//
// Thread Safety: All methods are safe for concurrent calls.
type Monitor struct {
	mu   sync.Mutex
	cond *sync.Cond // signalled whenever owner becomes 0

	owner thread.ID
	count int // holds by owner

	waiters  []*waiter
	entering int // threads blocked acquiring

	destroyed bool
}

// New creates a free monitor.
func New() *Monitor {
	m := &Monitor{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// check panics if the monitor was destroyed. Caller holds mu.
func (m *Monitor) check() {
	if m.destroyed {
		panic(result.Errorf("osmon", result.ErrDestroyed, "use of reclaimed monitor"))
	}
}

// acquire blocks until the monitor is free and takes it with n holds.
// Caller holds mu.
func (m *Monitor) acquire(id thread.ID, n int) {
	m.entering++
	for m.owner != 0 {
		m.cond.Wait()
	}
	m.entering--
	m.owner = id
	m.count = n
}

// Enter acquires the monitor for id, blocking while another thread holds it.
func (m *Monitor) Enter(id thread.ID) {
	m.EnterN(id, 1)
}

// EnterN acquires the monitor n times. Inflation uses it to carry a thin
// lock's depth over in one step.
func (m *Monitor) EnterN(id thread.ID, n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check()

	if m.owner == id {
		m.count += n
		return
	}
	m.acquire(id, n)
}

// TryEnter acquires the monitor if it is free or already held by id.
func (m *Monitor) TryEnter(id thread.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check()

	switch m.owner {
	case id:
		m.count++
		return true
	case 0:
		m.owner = id
		m.count = 1
		return true
	default:
		return false
	}
}

// Exit releases one hold. Fails with ErrIllegalState if id is not the owner.
func (m *Monitor) Exit(id thread.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check()

	if m.owner != id || id == 0 {
		return result.NotOwner("exit", uint16(id))
	}
	m.count--
	if m.count == 0 {
		m.owner = 0
		m.cond.Signal()
	}
	return nil
}

// Wait releases the monitor, waits, and reacquires it at the same depth.
//
// timeout <= 0 waits without a deadline. With interruptible set, a pending
// or arriving interrupt ends the wait with Interrupted and consumes the
// interrupt flag. Fails with ErrIllegalState if t does not own the monitor.
//
// TimedOut and Interrupted are returned with the monitor held, exactly
// like Notified.
func (m *Monitor) Wait(t *thread.Thread, timeout time.Duration, interruptible bool) (result.WaitResult, error) {
	id := t.ID()

	m.mu.Lock()
	m.check()
	if m.owner != id || id == 0 {
		m.mu.Unlock()
		return result.Notified, result.NotOwner("wait", uint16(id))
	}
	if interruptible && t.ConsumeInterrupt() {
		m.mu.Unlock()
		return result.Interrupted, nil
	}

	saved := m.count
	w := &waiter{ch: make(chan struct{})}
	m.waiters = append(m.waiters, w)
	m.owner = 0
	m.count = 0
	m.cond.Signal()
	m.mu.Unlock()

	res := m.park(t, w, timeout, interruptible)

	m.mu.Lock()
	defer m.mu.Unlock()
	if w.notified {
		switch res {
		case result.TimedOut:
			// Notify raced the timer; the notification is ours.
			res = result.Notified
		case result.Interrupted:
			// The interrupt wins; hand the notification on.
			m.notifyOne()
		}
	} else {
		m.remove(w)
	}
	m.acquire(id, saved)
	return res, nil
}

// park blocks until w is notified, the timeout elapses or t is interrupted.
func (m *Monitor) park(t *thread.Thread, w *waiter, timeout time.Duration, interruptible bool) result.WaitResult {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	var interrupts <-chan struct{}
	if interruptible {
		interrupts = t.Interrupts()
	}

	for {
		select {
		case <-w.ch:
			return result.Notified
		case <-deadline:
			return result.TimedOut
		case <-interrupts:
			if t.ConsumeInterrupt() {
				return result.Interrupted
			}
			// Stale token from an interrupt consumed elsewhere.
		}
	}
}

// remove drops w from the wait set. Caller holds mu.
func (m *Monitor) remove(w *waiter) {
	for i, x := range m.waiters {
		if x == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// notifyOne wakes the oldest waiter. Caller holds mu.
func (m *Monitor) notifyOne() bool {
	if len(m.waiters) == 0 {
		return false
	}
	w := m.waiters[0]
	m.waiters = m.waiters[1:]
	w.notified = true
	close(w.ch)
	return true
}

// Notify wakes the oldest waiter, if any. Fails with ErrIllegalState if id
// is not the owner.
func (m *Monitor) Notify(id thread.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check()

	if m.owner != id || id == 0 {
		return result.NotOwner("notify", uint16(id))
	}
	m.notifyOne()
	return nil
}

// NotifyAll wakes every waiter. Fails with ErrIllegalState if id is not the
// owner.
func (m *Monitor) NotifyAll(id thread.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.check()

	if m.owner != id || id == 0 {
		return result.NotOwner("notifyAll", uint16(id))
	}
	for m.notifyOne() {
	}
	return nil
}

// Owner returns the owning thread id, 0 if free.
func (m *Monitor) Owner() thread.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}

// RecursionCount returns the number of holds by the owner.
func (m *Monitor) RecursionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Waiters returns the number of threads parked in Wait.
func (m *Monitor) Waiters() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiters)
}

// InUse reports whether any thread owns, waits on, or is entering the monitor.
func (m *Monitor) InUse() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner != 0 || len(m.waiters) > 0 || m.entering > 0
}

// Destroy marks the monitor unusable. Any later call panics.
func (m *Monitor) Destroy() {
	m.mu.Lock()
	m.destroyed = true
	m.mu.Unlock()
}

// Destroyed reports whether Destroy was called.
func (m *Monitor) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}
