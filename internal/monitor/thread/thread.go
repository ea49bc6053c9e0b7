// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// ID is a monitor thread identifier. 0 is never a live thread.
type ID uint16

// MaxID is the largest id that fits the owner field of a lock word.
const MaxID ID = 0x7FFF

// Status is the scheduling status of a thread as seen by other threads.
type Status int32

const (
	// Running means the thread may be touching its own lock words.
	Running Status = iota
	// Blocked means the thread is parked on a monitor (enter or wait).
	Blocked
	// Terminated means the thread was detached and will never run monitor code again.
	Terminated
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Thread is the monitor-side state of one goroutine.
//
// disable and status are written only by the thread itself. request is
// written by suspenders. The interrupt flag is written by anyone.
type Thread struct {
	id   ID
	name string

	// disable is the unsafe-region nesting depth (0 = Safe).
	disable atomic.Int32

	// request counts pending suspend requests.
	request atomic.Int32

	// state publishes the SafeState for introspection.
	state atomic.Int32

	status atomic.Int32

	interrupted atomic.Bool
	interruptCh chan struct{}

	// mu and cond carry both the "reached safe region" and the "resume"
	// events.
	mu   sync.Mutex
	cond *sync.Cond

	// parks counts how often the thread was held at a safepoint.
	parks atomic.Uint64
}

// New creates a detached Thread with the given id.
//
// Most callers want [Registry.Attach] instead, which allocates the id.
func New(id ID, name string) *Thread {
	t := &Thread{
		id:          id,
		name:        name,
		interruptCh: make(chan struct{}, 1),
	}
	t.cond = sync.NewCond(&t.mu)
	t.state.Store(int32(Safe))
	return t
}

// ID returns the thread id.
//
//go:nosplit
func (t *Thread) ID() ID {
	return t.id
}

// Name returns the name given at creation.
func (t *Thread) Name() string {
	return t.name
}

// String returns "name#id" or "thread#id".
func (t *Thread) String() string {
	n := t.name
	if n == "" {
		n = "thread"
	}
	return n + "#" + strconv.Itoa(int(t.id))
}

// Status returns the current status. The value may be stale by the time
// the caller looks at it.
func (t *Thread) Status() Status {
	return Status(t.status.Load())
}

// IsIdle reports whether the thread is blocked on a monitor or terminated.
func (t *Thread) IsIdle() bool {
	s := t.Status()
	return s == Blocked || s == Terminated
}

// IsTerminated reports whether the thread was detached.
func (t *Thread) IsTerminated() bool {
	return t.Status() == Terminated
}

// BeginBlocking marks the thread Blocked. Must be called in a safe region.
func (t *Thread) BeginBlocking() {
	t.status.Store(int32(Blocked))
}

// EndBlocking marks the thread Running again.
func (t *Thread) EndBlocking() {
	t.status.Store(int32(Running))
}

// terminate marks the thread Terminated and wakes anyone waiting on it.
func (t *Thread) terminate() {
	t.mu.Lock()
	t.status.Store(int32(Terminated))
	t.cond.Broadcast()
	t.mu.Unlock()
}

// Interrupt sets the interrupt flag and wakes an interruptible wait.
func (t *Thread) Interrupt() {
	t.interrupted.Store(true)
	select {
	case t.interruptCh <- struct{}{}:
	default:
	}
}

// Interrupted reports whether an interrupt is pending without consuming it.
func (t *Thread) Interrupted() bool {
	return t.interrupted.Load()
}

// ConsumeInterrupt clears a pending interrupt and reports whether there was one.
//
// Exactly one caller observes true per Interrupt call that set the flag.
func (t *Thread) ConsumeInterrupt() bool {
	if !t.interrupted.CompareAndSwap(true, false) {
		return false
	}
	select {
	case <-t.interruptCh:
	default:
	}
	return true
}

// Interrupts returns the channel that receives a token on Interrupt.
//
// A token may be stale; interruptible waits confirm with ConsumeInterrupt.
func (t *Thread) Interrupts() <-chan struct{} {
	return t.interruptCh
}

// Parks returns how often the thread has been held at a safepoint.
func (t *Thread) Parks() uint64 {
	return t.parks.Load()
}
