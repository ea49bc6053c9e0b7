// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor provides per-object monitors for Go programs.
//
// See doc.go for detailed documentation and examples.
package monitor

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolkov/thinmon/internal/monitor/fattable"
	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/result"
	"github.com/kolkov/thinmon/internal/monitor/thin"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Word is the lock word of one object. Embed it in the object; the zero
// value is a free, reservable lock.
type Word = lockword.Word

// ThreadID identifies a monitor thread. 0 means no thread.
type ThreadID = thread.ID

// Status is the result of TryEnter.
type Status = result.Status

// WaitResult is the reason a timed or interruptible wait returned.
type WaitResult = result.WaitResult

// Stats is a snapshot of monitor activity.
type Stats = thin.Stats

// TryEnter and wait results.
const (
	Acquired = result.Acquired
	Busy     = result.Busy

	Notified    = result.Notified
	TimedOut    = result.TimedOut
	Interrupted = result.Interrupted
)

var (
	// ErrIllegalState reports an operation by a thread that does not hold
	// the lock.
	ErrIllegalState = result.ErrIllegalState

	// ErrResourceExhausted reports that a lock could not be inflated.
	ErrResourceExhausted = result.ErrResourceExhausted

	// ErrNoThread reports that the calling goroutine could not be given a
	// thread id.
	ErrNoThread = result.ErrNoThread
)

// Options configures the runtime created by InitWithOptions.
//
// Zero values select defaults.
type Options struct {
	// MaxThreads caps concurrently attached goroutines.
	// Default and upper bound: 32767.
	MaxThreads int

	// MaxRecursion is the deepest thin-lock nesting before inflation.
	// Default and upper bound: 31.
	MaxRecursion uint32

	// SpinCount and YieldCount bound the busy stages of Enter.
	// Defaults: 64 and 16. Negative means none.
	SpinCount  int
	YieldCount int

	// ContentionPoll bounds one sleep on a contended thin lock.
	// Default: 1ms.
	ContentionPoll time.Duration

	// DisableReservation turns off biased locking.
	DisableReservation bool

	// TableSize and TableGrowBy size the fat monitor table.
	// Defaults: 32 and 32.
	TableSize   int
	TableGrowBy int
}

// engineOptions converts o to the engine's form.
func (o Options) engineOptions() thin.Options {
	return thin.Options{
		MaxRecursion:       o.MaxRecursion,
		SpinCount:          o.SpinCount,
		YieldCount:         o.YieldCount,
		ContentionPoll:     o.ContentionPoll,
		DisableReservation: o.DisableReservation,
		Table: fattable.Options{
			InitialSize: o.TableSize,
			GrowBy:      o.TableGrowBy,
		},
	}
}

// subsystem is one initialized monitor runtime.
type subsystem struct {
	reg *thread.Registry
	eng *thin.Engine
}

var (
	// initMu serializes Init, InitWithOptions and Fini.
	initMu sync.Mutex

	// rt is the active runtime, nil before Init and after Fini.
	rt atomic.Pointer[subsystem]
)

// Init initializes the monitor runtime with default options.
//
// Calling any other function first initializes it implicitly. Init
// replaces a previous runtime; locks taken under the old one must not be
// used afterwards.
//
//	func main() {
//		monitor.Init()
//		defer monitor.Fini()
//		// ...
//	}
func Init() {
	InitWithOptions(Options{})
}

// InitWithOptions initializes the monitor runtime.
func InitWithOptions(opts Options) {
	initMu.Lock()
	defer initMu.Unlock()

	rt.Store(newSubsystem(opts))
}

func newSubsystem(opts Options) *subsystem {
	reg := thread.NewRegistry(opts.MaxThreads)
	return &subsystem{
		reg: reg,
		eng: thin.New(reg, opts.engineOptions()),
	}
}

// Fini shuts the runtime down and prints a summary report to stderr.
//
// Only the first call after an Init prints. Later calls are no-ops.
//
// Example output:
//
//	==================
//	Monitor Report
//	==================
//	Acquires: 1200 reserved, 310 thin, 42 fat
//	...
//	==================
func Fini() {
	initMu.Lock()
	r := rt.Swap(nil)
	initMu.Unlock()
	if r == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "\n")
	r.eng.WriteReport(os.Stderr)
	fmt.Fprintf(os.Stderr, "\n")
}

// state returns the active runtime, initializing one if needed.
func state() *subsystem {
	if r := rt.Load(); r != nil {
		return r
	}
	initMu.Lock()
	defer initMu.Unlock()
	if r := rt.Load(); r != nil {
		return r
	}
	r := newSubsystem(Options{})
	rt.Store(r)
	return r
}

// current returns the calling goroutine's thread, attaching it on first use.
func (r *subsystem) current() (*thread.Thread, error) {
	if t := r.reg.Current(); t != nil {
		return t, nil
	}
	t, err := r.reg.Attach("")
	if err != nil {
		return nil, &result.Error{
			Op:         "attach",
			Kind:       result.ErrNoThread,
			Message:    err.Error(),
			Suggestion: "Call monitor.Detach in goroutines that are done with monitors, or raise Options.MaxThreads",
		}
	}
	return t, nil
}

// Attach binds the calling goroutine to a named monitor thread and
// returns its id. A goroutine that is already attached keeps its thread.
//
// Attaching is optional; every operation attaches implicitly. Naming a
// thread makes reports easier to read.
func Attach(name string) (ThreadID, error) {
	t, err := state().reg.Attach(name)
	if err != nil {
		return 0, &result.Error{Op: "attach", Kind: result.ErrNoThread, Message: err.Error()}
	}
	return t.ID(), nil
}

// Detach releases the calling goroutine's thread id.
//
// Call it when a goroutine that used monitors is about to exit. Locks it
// still holds stay held by the released id.
func Detach() {
	state().reg.Detach()
}

// Self returns the calling goroutine's thread id, 0 if not attached.
func Self() ThreadID {
	if t := state().reg.Current(); t != nil {
		return t.ID()
	}
	return 0
}

// Create initializes w for a new object. Only an installed hash survives.
func Create(w *Word) {
	state().eng.Create(w)
}

// Enter acquires w, blocking while another goroutine holds it.
func Enter(w *Word) error {
	r := state()
	t, err := r.current()
	if err != nil {
		return err
	}
	return r.eng.Enter(t, w)
}

// TryEnter acquires w if it is free or held by the caller.
func TryEnter(w *Word) (Status, error) {
	r := state()
	t, err := r.current()
	if err != nil {
		return Busy, err
	}
	return r.eng.TryEnter(t, w)
}

// Exit releases one hold on w. Fails with ErrIllegalState if the caller
// does not hold w.
func Exit(w *Word) error {
	r := state()
	t, err := r.current()
	if err != nil {
		return err
	}
	return r.eng.Exit(t, w)
}

// Synchronized runs fn while holding w.
//
//	var obj struct {
//		monitor.Word
//		n int
//	}
//	_ = monitor.Synchronized(&obj.Word, func() error {
//		obj.n++
//		return nil
//	})
func Synchronized(w *Word, fn func() error) error {
	if err := Enter(w); err != nil {
		return err
	}
	ferr := fn()
	if err := Exit(w); err != nil && ferr == nil {
		return err
	}
	return ferr
}

// Wait releases w, blocks until notified, and reacquires w at the same depth.
func Wait(w *Word) error {
	r := state()
	t, err := r.current()
	if err != nil {
		return err
	}
	return r.eng.Wait(t, w)
}

// WaitTimed is Wait with a timeout. timeout <= 0 waits forever.
func WaitTimed(w *Word, timeout time.Duration) (WaitResult, error) {
	r := state()
	t, err := r.current()
	if err != nil {
		return Notified, err
	}
	return r.eng.WaitTimed(t, w, timeout)
}

// WaitInterruptible is WaitTimed that also returns Interrupted when the
// caller's thread is interrupted. The interrupt is consumed.
func WaitInterruptible(w *Word, timeout time.Duration) (WaitResult, error) {
	r := state()
	t, err := r.current()
	if err != nil {
		return Notified, err
	}
	return r.eng.WaitInterruptible(t, w, timeout)
}

// Notify wakes one goroutine waiting on w. The caller must hold w.
func Notify(w *Word) error {
	r := state()
	t, err := r.current()
	if err != nil {
		return err
	}
	return r.eng.Notify(t, w)
}

// NotifyAll wakes every goroutine waiting on w. The caller must hold w.
func NotifyAll(w *Word) error {
	r := state()
	t, err := r.current()
	if err != nil {
		return err
	}
	return r.eng.NotifyAll(t, w)
}

// Interrupt interrupts the thread with the given id. It reports whether
// that thread exists.
func Interrupt(id ThreadID) bool {
	t := state().reg.Lookup(id)
	if t == nil {
		return false
	}
	t.Interrupt()
	return true
}

// Owner returns the id of the thread holding w, 0 if none. The result is
// advisory and may be stale.
func Owner(w *Word) ThreadID {
	return state().eng.Owner(w)
}

// Recursion returns how many holds the owner of w has. The result is
// advisory and may be stale.
func Recursion(w *Word) int {
	return state().eng.Recursion(w)
}

// Sweep reclaims the fat monitors of objects that are no longer
// reachable. live lists the lock words of every object that still is.
func Sweep(live []*Word) int {
	return state().eng.Sweep(live)
}

// GetStats returns a snapshot of monitor activity.
func GetStats() Stats {
	return state().eng.Stats()
}

// Report writes the summary report that Fini prints.
func Report(w io.Writer) {
	state().eng.WriteReport(w)
}
