// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fattable maps fat lock ids to their blocking monitors.
//
// The table is a growable slice of monitor slots plus a parallel liveness
// byte array that the collector fills during a sweep:
//
//	slots: [m0][nil][m2][m3][nil] ...
//	live:  [ 1][  0][ 0][ 1][  0] ...
//	                  ^ reclaimed by the next ReclaimUnmarked
//
// Ids are slot indexes and stay valid until the slot is reclaimed. The
// table never shrinks; it grows by Options.GrowBy when a full scan from the
// rotating cursor finds no empty slot, so reclaimed slots are reused first.
//
// One mutex guards slot allocation, lookup and reclamation.
package fattable

import (
	"sync"

	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/osmon"
	"github.com/kolkov/thinmon/internal/monitor/result"
)

// Options configures a Table.
type Options struct {
	// InitialSize is the number of slots allocated up front.
	// Default: 32.
	InitialSize int

	// GrowBy is the number of slots added when the table is full.
	// Default: 32.
	GrowBy int

	// MaxSize caps the table. Growth beyond it fails with
	// ErrResourceExhausted. Default and upper bound: lockword.MaxFatID+1.
	MaxSize int
}

// Normalize fills in defaults and clamps out-of-range values.
func (o Options) Normalize() Options {
	if o.MaxSize <= 0 || o.MaxSize > lockword.MaxFatID+1 {
		o.MaxSize = lockword.MaxFatID + 1
	}
	if o.InitialSize <= 0 {
		o.InitialSize = 32
	}
	if o.InitialSize > o.MaxSize {
		o.InitialSize = o.MaxSize
	}
	if o.GrowBy <= 0 {
		o.GrowBy = 32
	}
	return o
}

// Stats is a snapshot of table counters.
type Stats struct {
	Size       int    // Slots allocated.
	Used       int    // Slots holding a monitor.
	Grows      uint64 // Number of growth steps.
	Puts       uint64 // Monitors inserted.
	Reclaimed  uint64 // Monitors destroyed by ReclaimUnmarked.
	Inflations uint64 // Successful Inflate calls that created a monitor.
}

// Table is the fat monitor table.
//
// Thread Safety: All methods are safe for concurrent calls.
type Table struct {
	mu sync.Mutex

	opts Options

	slots []*osmon.Monitor
	live  []byte

	// cursor is where the next free-slot scan starts.
	cursor int

	// marked is set by MarkLive or BeginCycle and cleared by ReclaimUnmarked.
	marked bool

	// inflated is closed and replaced on every inflation.
	inflated chan struct{}

	grows, puts, reclaimed, inflations uint64
}

// New creates a table.
func New(opts Options) *Table {
	opts = opts.Normalize()
	return &Table{
		opts:     opts,
		slots:    make([]*osmon.Monitor, opts.InitialSize),
		live:     make([]byte, opts.InitialSize),
		inflated: make(chan struct{}),
	}
}

// Put stores m and returns its id.
//
// The scan starts at the rotating cursor and takes the first empty slot
// that is not marked live. If there is none the table grows and m goes into
// the first new slot. Fails with ErrResourceExhausted at MaxSize.
//
// A slot filled while a collection cycle is open is marked live: the
// collector may already have scanned the object that owns it.
func (t *Table) Put(m *osmon.Monitor) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.put(m)
}

// put is Put with mu held.
func (t *Table) put(m *osmon.Monitor) (uint32, error) {
	n := len(t.slots)
	for i := 0; i < n; i++ {
		idx := (t.cursor + i) % n
		if t.slots[idx] == nil && t.live[idx] == 0 {
			t.slots[idx] = m
			if t.marked {
				t.live[idx] = 1
			}
			t.cursor = (idx + 1) % n
			t.puts++
			//nolint:gosec // G115: n <= MaxFatID+1.
			return uint32(idx), nil
		}
	}

	if n >= t.opts.MaxSize {
		return 0, result.Errorf("put", result.ErrResourceExhausted,
			"fat monitor table full at %d slots", n)
	}
	grow := t.opts.GrowBy
	if n+grow > t.opts.MaxSize {
		grow = t.opts.MaxSize - n
	}
	t.slots = append(t.slots, make([]*osmon.Monitor, grow)...)
	t.live = append(t.live, make([]byte, grow)...)
	t.grows++

	t.slots[n] = m
	if t.marked {
		t.live[n] = 1
	}
	t.cursor = (n + 1) % len(t.slots)
	t.puts++
	//nolint:gosec // G115: n < MaxFatID+1.
	return uint32(n), nil
}

// Get returns the monitor for id. Fails with ErrInvalidIndex if id is out
// of bounds or the slot is empty.
func (t *Table) Get(id uint32) (*osmon.Monitor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(id)
}

// get is Get with mu held.
func (t *Table) get(id uint32) (*osmon.Monitor, error) {
	if int64(id) >= int64(len(t.slots)) || t.slots[id] == nil {
		return nil, result.Errorf("get", result.ErrInvalidIndex,
			"fat monitor id %d (table size %d)", id, len(t.slots))
	}
	return t.slots[id], nil
}

// MarkLive records that the object owning fat lock id is still reachable.
//
// The collector calls this during liveness scanning, once per live fat lock.
func (t *Table) MarkLive(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int64(id) >= int64(len(t.live)) {
		return result.Errorf("markLive", result.ErrInvalidIndex,
			"fat monitor id %d (table size %d)", id, len(t.live))
	}
	t.live[id] = 1
	t.marked = true
	return nil
}

// BeginCycle opens a collection cycle.
//
// The collector calls it before scanning, so a cycle that finds no live
// fat lock still reclaims. Monitors put into the table from here until
// ReclaimUnmarked count as live.
func (t *Table) BeginCycle() {
	t.mu.Lock()
	t.marked = true
	t.mu.Unlock()
}

// ReclaimUnmarked destroys every monitor whose slot was not marked live
// since the previous call, and clears the marks for the next cycle.
//
// Without any MarkLive or BeginCycle since the last reclamation it does
// nothing, so a cycle in which the collector did not scan never frees
// monitors. A
// monitor that is still owned, waited on or being entered is kept.
//
// Returns the number of monitors destroyed.
func (t *Table) ReclaimUnmarked() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.marked {
		return 0
	}
	freed := 0
	for i, m := range t.slots {
		if m == nil {
			t.live[i] = 0
			continue
		}
		if t.live[i] == 0 && !m.InUse() {
			m.Destroy()
			t.slots[i] = nil
			freed++
		}
		t.live[i] = 0
	}
	t.marked = false
	t.reclaimed += uint64(freed)
	return freed
}

// InflationEvent returns a channel that is closed at the next inflation.
func (t *Table) InflationEvent() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflated
}

// signalInflation wakes everyone waiting on the current event. Caller holds mu.
func (t *Table) signalInflation() {
	close(t.inflated)
	t.inflated = make(chan struct{})
}

// Len returns the number of slots.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

// Stats returns a snapshot of the table counters.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	used := 0
	for _, m := range t.slots {
		if m != nil {
			used++
		}
	}
	return Stats{
		Size:       len(t.slots),
		Used:       used,
		Grows:      t.grows,
		Puts:       t.puts,
		Reclaimed:  t.reclaimed,
		Inflations: t.inflations,
	}
}
