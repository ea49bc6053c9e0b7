// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thin

import (
	"fmt"
	"io"

	"github.com/kolkov/thinmon/internal/monitor/fattable"
	"github.com/kolkov/thinmon/internal/monitor/reserve"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Stats is a snapshot of engine activity.
type Stats struct {
	// ThinAcquires counts acquisitions of unreserved thin locks.
	ThinAcquires uint64
	// ReservedAcquires counts acquisitions that set or kept a reservation.
	ReservedAcquires uint64
	// FatAcquires counts acquisitions through a fat monitor.
	FatAcquires uint64
	// Busy counts TryEnter calls that found the lock held.
	Busy uint64
	// Spins and Yields count Enter retries in each contention stage.
	Spins, Yields uint64
	// ContentionWaits counts sleeps on the contention flag.
	ContentionWaits uint64

	// Inflations by cause.
	MaxDepthInflations  uint64
	ContendedInflations uint64
	WaitInflations      uint64

	// ExhaustedReleases counts contended exits that released the lock thin
	// because the fat table was full.
	ExhaustedReleases uint64

	Table       fattable.Stats
	Reservation reserve.Stats
	Suspension  thread.CoordinatorStats
}

// Stats returns a snapshot of the counters.
func (e *Engine) Stats() Stats {
	return Stats{
		ThinAcquires:        e.stats.thinAcquires.Load(),
		ReservedAcquires:    e.stats.reservedAcquires.Load(),
		FatAcquires:         e.stats.fatAcquires.Load(),
		Busy:                e.stats.busy.Load(),
		Spins:               e.stats.spins.Load(),
		Yields:              e.stats.yields.Load(),
		ContentionWaits:     e.stats.contentionWaits.Load(),
		MaxDepthInflations:  e.stats.maxDepthInflates.Load(),
		ContendedInflations: e.stats.contendedExits.Load(),
		ExhaustedReleases:   e.stats.exhaustedExits.Load(),
		WaitInflations:      e.stats.waitInflates.Load(),
		Table:               e.table.Stats(),
		Reservation:         e.reserve.Stats(),
		Suspension:          e.coord.Stats(),
	}
}

// WriteReport prints a human-readable summary of s.
//
// Example output:
//
//	==================
//	Monitor Report
//	==================
//	Acquires: 1200 reserved, 310 thin, 42 fat
//	Contention: 18 busy, 640 spins, 96 yields, 3 waits
//	Inflations: 1 depth, 3 contended, 2 wait, 0 failed on exit
//	Fat table: 6/32 slots used, 0 grows, 0 reclaimed
//	Unreservations: 4 (1 self, 3 suspended, 0 skipped)
//	Suspensions: 3 requests, 1 waited
//	==================
func (s Stats) WriteReport(w io.Writer) {
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Monitor Report\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Acquires: %d reserved, %d thin, %d fat\n",
		s.ReservedAcquires, s.ThinAcquires, s.FatAcquires)
	fmt.Fprintf(w, "Contention: %d busy, %d spins, %d yields, %d waits\n",
		s.Busy, s.Spins, s.Yields, s.ContentionWaits)
	fmt.Fprintf(w, "Inflations: %d depth, %d contended, %d wait, %d failed on exit\n",
		s.MaxDepthInflations, s.ContendedInflations, s.WaitInflations, s.ExhaustedReleases)
	fmt.Fprintf(w, "Fat table: %d/%d slots used, %d grows, %d reclaimed\n",
		s.Table.Used, s.Table.Size, s.Table.Grows, s.Table.Reclaimed)
	fmt.Fprintf(w, "Unreservations: %d (%d self, %d suspended, %d skipped)\n",
		s.Reservation.Unreserved, s.Reservation.Self, s.Reservation.Suspended, s.Reservation.Skipped)
	fmt.Fprintf(w, "Suspensions: %d requests, %d waited\n",
		s.Suspension.Requests, s.Suspension.Waits)
	fmt.Fprintf(w, "==================\n")
}

// WriteReport prints the engine's current statistics to w.
func (e *Engine) WriteReport(w io.Writer) {
	e.Stats().WriteReport(w)
}
