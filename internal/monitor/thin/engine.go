// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thin

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/kolkov/thinmon/internal/monitor/fattable"
	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/osmon"
	"github.com/kolkov/thinmon/internal/monitor/reserve"
	"github.com/kolkov/thinmon/internal/monitor/result"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Engine runs the thin-lock protocol over lock words.
//
// Thread Safety: All methods are safe for concurrent calls. Every method
// taking a *thread.Thread must be called by the goroutine that thread
// represents.
type Engine struct {
	opts Options

	threads *thread.Registry
	coord   *thread.Coordinator
	table   *fattable.Table
	reserve *reserve.Manager

	stats counters
}

// counters are the engine's own statistics.
type counters struct {
	thinAcquires     atomic.Uint64
	reservedAcquires atomic.Uint64
	fatAcquires      atomic.Uint64
	busy             atomic.Uint64
	spins            atomic.Uint64
	yields           atomic.Uint64
	contentionWaits  atomic.Uint64
	maxDepthInflates atomic.Uint64
	contendedExits   atomic.Uint64
	exhaustedExits   atomic.Uint64
	waitInflates     atomic.Uint64
}

// New creates an engine for the threads in reg.
func New(reg *thread.Registry, opts Options) *Engine {
	opts = opts.Normalize()
	coord := &thread.Coordinator{}
	return &Engine{
		opts:    opts,
		threads: reg,
		coord:   coord,
		table:   fattable.New(opts.Table),
		reserve: reserve.New(reg, coord),
	}
}

// Options returns the normalized options.
func (e *Engine) Options() Options {
	return e.opts
}

// Table returns the fat monitor table.
func (e *Engine) Table() *fattable.Table {
	return e.table
}

// Create initializes w for a new object. Only the hash is kept.
func (e *Engine) Create(w *lockword.Word) {
	reservable := !e.opts.DisableReservation
	for {
		v := w.Load()
		if w.CompareAndSwap(v, lockword.Init(lockword.Hash(v), reservable)) {
			return
		}
	}
}

// outcome is what one pass over the lock word decided.
type outcome int

const (
	acquired outcome = iota
	busy
	retry
	needUnreserve
	needInflate
	fat
)

// attempt makes one acquisition pass inside an unsafe region.
func (e *Engine) attempt(self *thread.Thread, w *lockword.Word) outcome {
	self.EnterUnsafe()
	defer self.LeaveUnsafe()

	tid := uint16(self.ID())
	v := w.Load()

	switch lockword.StateOf(v) {
	case lockword.Fat:
		return fat

	case lockword.Free:
		var nv uint32
		reserved := lockword.IsReserved(v) && !e.opts.DisableReservation
		if reserved {
			nv = lockword.Thin(v, tid, 1, true)
		} else {
			nv = lockword.Thin(v, tid, 0, false)
		}
		if !w.CompareAndSwap(v, nv) {
			return retry
		}
		if reserved {
			e.stats.reservedAcquires.Add(1)
		} else {
			e.stats.thinAcquires.Add(1)
		}
		return acquired

	default:
		if lockword.ThreadID(v) != tid {
			if lockword.IsReserved(v) {
				return needUnreserve
			}
			return busy
		}
		if lockword.Depth(v) >= e.opts.MaxRecursion {
			return needInflate
		}
		nv, ok := lockword.IncRecursion(v)
		if !ok {
			return needInflate
		}
		if lockword.IsReserved(v) {
			// Nobody else writes a word reserved to us while we are unsafe.
			w.Store(nv)
			e.stats.reservedAcquires.Add(1)
			return acquired
		}
		if !w.CompareAndSwap(v, nv) {
			// Contention flag; owner fields are ours.
			return retry
		}
		e.stats.thinAcquires.Add(1)
		return acquired
	}
}

// monitorOf returns the fat monitor named by v. A bad id means the word is
// corrupt, which is not recoverable.
func (e *Engine) monitorOf(v uint32) *osmon.Monitor {
	m, err := e.table.Get(lockword.FatID(v))
	if err != nil {
		panic(err)
	}
	return m
}

// TryEnter acquires w if that is possible without blocking on its owner.
//
// A reserved lock owned by another thread is unreserved first, which may
// briefly wait for that thread to reach a safepoint. Errors are limited to
// inflation failures (ErrResourceExhausted) when the caller is at the
// recursion limit.
func (e *Engine) TryEnter(self *thread.Thread, w *lockword.Word) (result.Status, error) {
	for {
		switch e.attempt(self, w) {
		case acquired:
			return result.Acquired, nil
		case busy:
			e.stats.busy.Add(1)
			return result.Busy, nil
		case needUnreserve:
			if err := e.reserve.Unreserve(self, w); err != nil {
				return result.Busy, err
			}
		case needInflate:
			m, err := e.table.Inflate(self, w, e.reserve)
			if err != nil {
				return result.Busy, err
			}
			e.stats.maxDepthInflates.Add(1)
			m.Enter(self.ID())
			e.stats.fatAcquires.Add(1)
			return result.Acquired, nil
		case fat:
			if e.monitorOf(w.Load()).TryEnter(self.ID()) {
				e.stats.fatAcquires.Add(1)
				return result.Acquired, nil
			}
			e.stats.busy.Add(1)
			return result.Busy, nil
		case retry:
		}
	}
}

// Enter acquires w, blocking while another thread holds it.
//
// Contention is handled in stages: SpinCount immediate retries, then
// YieldCount retries after runtime.Gosched, then the contender flags the
// word and sleeps until the owner inflates it on exit. Once the lock is
// fat, Enter blocks in the fat monitor. All blocking happens in a safe
// region with the thread marked Blocked.
func (e *Engine) Enter(self *thread.Thread, w *lockword.Word) error {
	spins, yields := 0, 0
	for {
		st, err := e.TryEnter(self, w)
		if err != nil {
			return err
		}
		if st == result.Acquired {
			return nil
		}

		v := w.Load()
		if lockword.IsFat(v) {
			m := e.monitorOf(v)
			self.BeginBlocking()
			m.Enter(self.ID())
			self.EndBlocking()
			e.stats.fatAcquires.Add(1)
			return nil
		}

		switch {
		case spins < e.opts.SpinCount:
			spins++
			e.stats.spins.Add(1)
		case yields < e.opts.YieldCount:
			yields++
			e.stats.yields.Add(1)
			runtime.Gosched()
		default:
			e.awaitInflation(self, w)
		}
	}
}

// awaitInflation flags w as contended and sleeps until some lock inflates
// or ContentionPoll elapses.
func (e *Engine) awaitInflation(self *thread.Thread, w *lockword.Word) {
	// Take the event before setting the flag so the owner's inflation
	// cannot slip in between.
	ev := e.table.InflationEvent()
	if !flagContended(w, uint16(self.ID())) {
		return
	}
	e.stats.contentionWaits.Add(1)

	timer := time.NewTimer(e.opts.ContentionPoll)
	defer timer.Stop()

	self.BeginBlocking()
	select {
	case <-ev:
	case <-timer.C:
	}
	self.EndBlocking()
}

// flagContended sets the contention flag on a thin word held by another
// thread. It returns false if the word is no longer in that state.
func flagContended(w *lockword.Word, self uint16) bool {
	for {
		v := w.Load()
		if lockword.StateOf(v) != lockword.ThinOwned || lockword.ThreadID(v) == self {
			return false
		}
		if lockword.IsContended(v) {
			return true
		}
		if w.CompareAndSwap(v, lockword.SetContended(v)) {
			return true
		}
	}
}

// Exit releases one hold on w.
//
// Fails with ErrIllegalState if self does not hold w, including a second
// exit of a reserved lock whose last hold was already released. The final
// release of a thin lock that a contender flagged inflates it first, so the
// contender finds a fat monitor to block on. If the table is full the lock
// is released thin instead and the contender retries.
//
// A reserved lock is released with a plain store: only its owner writes
// it, and an unreserver suspends the owner before rewriting.
func (e *Engine) Exit(self *thread.Thread, w *lockword.Word) error {
	self.EnterUnsafe()
	defer self.LeaveUnsafe()

	tid := uint16(self.ID())
	for {
		v := w.Load()
		if lockword.IsFat(v) {
			return e.monitorOf(v).Exit(self.ID())
		}
		if lockword.ThreadID(v) != tid || lockword.Depth(v) == 0 {
			return result.NotOwner("exit", tid)
		}

		var nv uint32
		switch {
		case lockword.IsReserved(v):
			// The last hold keeps the bias with depth 0.
			nv, _ = lockword.DecRecursion(v)
			w.Store(nv)
			return nil
		case lockword.Recursion(v) > 0:
			nv, _ = lockword.DecRecursion(v)
		case lockword.IsContended(v):
			m, err := e.table.Inflate(self, w, e.reserve)
			if err == nil {
				e.stats.contendedExits.Add(1)
				return m.Exit(self.ID())
			}
			e.stats.exhaustedExits.Add(1)
			nv = lockword.Released(v)
		default:
			nv = lockword.Released(v)
		}
		if w.CompareAndSwap(v, nv) {
			return nil
		}
	}
}

// Inflate turns w into a fat lock. Only the owner may inflate.
func (e *Engine) Inflate(self *thread.Thread, w *lockword.Word) (*osmon.Monitor, error) {
	return e.table.Inflate(self, w, e.reserve)
}

// IsFat reports whether w has been inflated.
func (e *Engine) IsFat(w *lockword.Word) bool {
	return lockword.IsFat(w.Load())
}

// Owner returns the thread holding w, 0 if none.
//
// The answer may be stale by the time it is returned.
func (e *Engine) Owner(w *lockword.Word) thread.ID {
	v := w.Load()
	if lockword.IsFat(v) {
		m, err := e.table.Get(lockword.FatID(v))
		if err != nil {
			return 0
		}
		return m.Owner()
	}
	if lockword.Depth(v) == 0 {
		return 0
	}
	return thread.ID(lockword.ThreadID(v))
}

// Recursion returns how many holds the owner of w has, 0 if free.
//
// The answer may be stale by the time it is returned.
func (e *Engine) Recursion(w *lockword.Word) int {
	v := w.Load()
	if lockword.IsFat(v) {
		m, err := e.table.Get(lockword.FatID(v))
		if err != nil {
			return 0
		}
		return m.RecursionCount()
	}
	return int(lockword.Depth(v))
}

// Sweep runs one collection cycle over the fat table.
//
// live lists the lock words of every object that is still reachable. Fat
// monitors named by none of them are destroyed unless a thread still uses
// them. A live word inflated during the scan keeps its monitor. Returns
// the number of monitors reclaimed.
func (e *Engine) Sweep(live []*lockword.Word) int {
	e.table.BeginCycle()
	for _, w := range live {
		v := w.Load()
		if lockword.IsFat(v) {
			_ = e.table.MarkLive(lockword.FatID(v))
		}
	}
	return e.table.ReclaimUnmarked()
}

// Threads returns the registry the engine resolves owners in.
func (e *Engine) Threads() *thread.Registry {
	return e.threads
}
