// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fattable

import (
	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/osmon"
	"github.com/kolkov/thinmon/internal/monitor/result"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Unreserver removes the reservation bias from a lock word.
type Unreserver interface {
	Unreserve(self *thread.Thread, w *lockword.Word) error
}

// Inflate turns the thin lock in w, owned by self, into a fat lock.
//
// Steps, all under the table lock:
//  1. If w is already fat, return its monitor.
//  2. If w is reserved, unreserve it (self-unreservation, no suspension).
//  3. Put a new monitor in the table.
//  4. Enter it as self at the thin lock's depth and store the fat id into w.
//
// Only the owner may inflate, so the word's ownership cannot change under
// us. Non-owners may still set the contention flag; the final store is a
// CAS loop that keeps the hash and drops the flag.
//
// Fails with ErrIllegalState if self does not own w and with
// ErrResourceExhausted if the table cannot grow. On failure w is unchanged
// apart from a possible unreservation, which is semantically neutral.
func (t *Table) Inflate(self *thread.Thread, w *lockword.Word, u Unreserver) (*osmon.Monitor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := w.Load()
	if lockword.IsFat(v) {
		return t.get(lockword.FatID(v))
	}

	tid := uint16(self.ID())
	if lockword.ThreadID(v) != tid || lockword.Depth(v) == 0 {
		return nil, result.NotOwner("inflate", tid)
	}

	if lockword.IsReserved(v) {
		if err := u.Unreserve(self, w); err != nil {
			return nil, err
		}
		v = w.Load()
	}

	m := osmon.New()
	id, err := t.put(m)
	if err != nil {
		return nil, err
	}
	// No one can reach the slot before w names it.
	m.EnterN(self.ID(), int(lockword.Depth(v)))
	w.SetFat(id)
	t.inflations++
	t.signalInflation()
	return m, nil
}
