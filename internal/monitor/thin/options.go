// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thin

import (
	"time"

	"github.com/kolkov/thinmon/internal/monitor/fattable"
	"github.com/kolkov/thinmon/internal/monitor/lockword"
)

// Options configures an Engine.
//
// The numeric knobs only tune performance. Any value within range gives
// correct locking.
//
// Usage:
//
//	// Defaults: reservation on, depth 31 before inflation.
//	e := thin.New(reg, thin.Options{})
//
//	// Inflate early and never bias.
//	e := thin.New(reg, thin.Options{
//	    MaxRecursion:       4,
//	    DisableReservation: true,
//	})
type Options struct {
	// MaxRecursion is the deepest nesting a thin lock holds. The next
	// enter by the owner inflates the lock.
	// Default and upper bound: lockword.MaxRecursion (31).
	MaxRecursion uint32

	// SpinCount is the number of immediate retries Enter makes against a
	// busy thin lock.
	// Default: 64.
	SpinCount int

	// YieldCount is the number of retries after spinning, each preceded by
	// runtime.Gosched.
	// Default: 16.
	YieldCount int

	// ContentionPoll bounds how long a contender sleeps on the contention
	// flag before looking at the word again.
	// Default: 1ms.
	ContentionPoll time.Duration

	// DisableReservation turns off biasing. Freshly created words are
	// then unreservable and every acquisition is a plain CAS.
	// Default: false (reservation on).
	DisableReservation bool

	// Table configures the fat monitor table.
	Table fattable.Options
}

// Normalize fills in defaults and clamps out-of-range values.
func (o Options) Normalize() Options {
	if o.MaxRecursion == 0 || o.MaxRecursion > lockword.MaxRecursion {
		o.MaxRecursion = lockword.MaxRecursion
	}
	if o.SpinCount < 0 {
		o.SpinCount = 0
	} else if o.SpinCount == 0 {
		o.SpinCount = 64
	}
	if o.YieldCount < 0 {
		o.YieldCount = 0
	} else if o.YieldCount == 0 {
		o.YieldCount = 16
	}
	if o.ContentionPoll <= 0 {
		o.ContentionPoll = time.Millisecond
	}
	o.Table = o.Table.Normalize()
	return o
}
