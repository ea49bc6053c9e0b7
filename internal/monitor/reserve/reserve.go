// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package reserve revokes the reservation bias of thin locks.
//
// A reserved lock word names the thread it is biased toward. That thread
// re-enters and exits without contending with anyone, so before a different
// thread can compete for the lock the bias has to be removed:
//
//	reserved, owner T, depth d   ->   thin, owner T, depth d   (d > 0)
//	reserved, owner T, depth 0   ->   free, unreserved         (d == 0)
//
// When T is not the caller, T is first brought to a safepoint through the
// thread.Coordinator so the rewrite never overlaps T's own unsafe region.
package reserve

import (
	"errors"
	"sync/atomic"

	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Threads resolves owner ids found in lock words.
//
// *thread.Registry implements it.
type Threads interface {
	Lookup(id thread.ID) *thread.Thread
}

// Stats is a snapshot of Manager counters.
type Stats struct {
	// Unreserved counts words whose bias this manager removed.
	Unreserved uint64
	// Self counts unreservations of the caller's own lock.
	Self uint64
	// Suspended counts owners brought to a safepoint first.
	Suspended uint64
	// Skipped counts unreservations that needed no suspension because the
	// owner was gone.
	Skipped uint64
	// Noop counts calls on words that were already fat or unreserved.
	Noop uint64
}

// Manager performs unreservations.
//
// Thread Safety: All methods are safe for concurrent calls. Two threads
// unreserving the same word race to the same result.
type Manager struct {
	threads Threads
	coord   *thread.Coordinator

	unreserved atomic.Uint64
	self       atomic.Uint64
	suspended  atomic.Uint64
	skipped    atomic.Uint64
	noop       atomic.Uint64
}

// New creates a Manager that looks owners up in threads and suspends them
// through coord.
func New(threads Threads, coord *thread.Coordinator) *Manager {
	return &Manager{threads: threads, coord: coord}
}

// Unbias returns the unreserved form of the reserved word v.
//
// A held lock keeps its owner and depth; a biased but unheld lock becomes
// free. The hash is kept and the contention flag is dropped. Words that
// are fat or not reserved are returned unchanged.
//
//go:nosplit
func Unbias(v uint32) uint32 {
	if lockword.IsFat(v) || !lockword.IsReserved(v) || lockword.ThreadID(v) == 0 {
		return v
	}
	r := lockword.Recursion(v)
	if r == 0 {
		return lockword.Released(v)
	}
	return lockword.Thin(v, lockword.ThreadID(v), r-1, false)
}

// Unreserve removes the reservation from w on behalf of self.
//
// It returns nil once w is observed fat or unreserved, whoever made it so.
// Calling it again on the same word is a no-op with no suspension.
//
// self must be in a safe region: when the owner is another running thread
// self waits for it to reach a safepoint, and a suspender that can itself
// be suspended deadlocks against a peer doing the same.
//
// The owner is always resumed before Unreserve returns, including on error.
func (m *Manager) Unreserve(self *thread.Thread, w *lockword.Word) error {
	v := w.Load()
	if done(v) {
		m.noop.Add(1)
		return nil
	}

	owner := thread.ID(lockword.ThreadID(v))
	if self != nil && owner == self.ID() {
		m.self.Add(1)
		m.rewrite(w, owner)
		return nil
	}

	target := m.threads.Lookup(owner)
	if target == nil || target.IsTerminated() {
		m.skipped.Add(1)
		m.rewrite(w, owner)
		return nil
	}

	// A Blocked owner sits in a safe region already, so the request
	// returns at once and keeps the owner parked if it wakes meanwhile.
	err := m.coord.RequestSuspend(self, target)
	switch {
	case err == nil:
		defer m.coord.Resume(target)
		m.suspended.Add(1)
	case errors.Is(err, thread.ErrTerminated):
		m.skipped.Add(1)
	default:
		return err
	}

	m.rewrite(w, owner)
	return nil
}

// rewrite CASes w to its unbiased form until some writer has removed the
// bias toward owner.
func (m *Manager) rewrite(w *lockword.Word, owner thread.ID) {
	for {
		v := w.Load()
		if done(v) || thread.ID(lockword.ThreadID(v)) != owner {
			return
		}
		if w.CompareAndSwap(v, Unbias(v)) {
			m.unreserved.Add(1)
			return
		}
	}
}

// done reports whether v carries no bias toward any thread.
//
//go:nosplit
func done(v uint32) bool {
	return lockword.IsFat(v) || !lockword.IsReserved(v) || lockword.ThreadID(v) == 0
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Unreserved: m.unreserved.Load(),
		Self:       m.self.Load(),
		Suspended:  m.suspended.Load(),
		Skipped:    m.skipped.Load(),
		Noop:       m.noop.Load(),
	}
}
