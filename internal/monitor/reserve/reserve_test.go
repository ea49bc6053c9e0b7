// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package reserve

import (
	"sync"
	"testing"
	"time"

	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

func setup(t *testing.T) (*thread.Registry, *thread.Coordinator, *Manager) {
	t.Helper()
	reg := thread.NewRegistry(16)
	coord := &thread.Coordinator{}
	return reg, coord, New(reg, coord)
}

func mustNew(t *testing.T, reg *thread.Registry, name string) *thread.Thread {
	t.Helper()
	th, err := reg.New(name)
	if err != nil {
		t.Fatal(err)
	}
	return th
}

// TestUnbias tests the pure word transformation.
func TestUnbias(t *testing.T) {
	tests := []struct {
		name string
		in   uint32
		want uint32
	}{
		{"held depth 3", lockword.Thin(0x1A, 7, 3, true), lockword.Thin(0x1A, 7, 2, false)},
		{"held depth 1", lockword.Thin(0x1A, 7, 1, true), lockword.Thin(0x1A, 7, 0, false)},
		{"biased unheld", lockword.Thin(0x1A, 7, 0, true), lockword.Released(0x1A)},
		{"contended flag dropped", lockword.SetContended(lockword.Thin(0, 7, 2, true)), lockword.Thin(0, 7, 1, false)},
		{"already thin", lockword.Thin(0x1A, 7, 2, false), lockword.Thin(0x1A, 7, 2, false)},
		{"fresh free", lockword.Init(0x1A, true), lockword.Init(0x1A, true)},
		{"fat", lockword.SetFat(0x1A, 9), lockword.SetFat(0x1A, 9)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Unbias(tt.in)
			if got != tt.want {
				t.Errorf("Unbias(%s) = %s, want %s",
					lockword.Format(tt.in), lockword.Format(got), lockword.Format(tt.want))
			}
			if lockword.Depth(got) != lockword.Depth(tt.in) {
				t.Errorf("depth changed: %d -> %d", lockword.Depth(tt.in), lockword.Depth(got))
			}
		})
	}
}

// TestUnreserveIdempotent tests that repeated calls have no side effects.
func TestUnreserveIdempotent(t *testing.T) {
	reg, coord, m := setup(t)
	self := mustNew(t, reg, "self")
	owner := mustNew(t, reg, "owner")

	var w lockword.Word
	w.Store(lockword.Thin(0, uint16(owner.ID()), 2, true))

	if err := m.Unreserve(self, &w); err != nil {
		t.Fatal(err)
	}
	first := coord.Stats()
	want := lockword.Thin(0, uint16(owner.ID()), 1, false)
	if w.Load() != want {
		t.Fatalf("word = %s, want %s", lockword.Format(w.Load()), lockword.Format(want))
	}

	for i := 0; i < 2; i++ {
		if err := m.Unreserve(self, &w); err != nil {
			t.Fatal(err)
		}
	}
	if coord.Stats() != first {
		t.Errorf("coordinator stats changed on no-op calls: %+v -> %+v", first, coord.Stats())
	}
	if w.Load() != want {
		t.Errorf("no-op call changed word to %s", lockword.Format(w.Load()))
	}
	if owner.SuspendRequested() {
		t.Error("owner left with a suspend request")
	}

	s := m.Stats()
	if s.Unreserved != 1 || s.Noop != 2 || s.Suspended != 1 {
		t.Errorf("Stats() = %+v", s)
	}

	var fat lockword.Word
	fat.Store(lockword.SetFat(0, 3))
	if err := m.Unreserve(self, &fat); err != nil || fat.Load() != lockword.SetFat(0, 3) {
		t.Errorf("Unreserve(fat) = %v, word %s", err, lockword.Format(fat.Load()))
	}
}

// TestUnreserveSelf tests that self-unreservation never suspends.
func TestUnreserveSelf(t *testing.T) {
	reg, coord, m := setup(t)
	self := mustNew(t, reg, "self")

	var w lockword.Word
	w.Store(lockword.Thin(0x05, uint16(self.ID()), 0, true))
	if err := m.Unreserve(self, &w); err != nil {
		t.Fatal(err)
	}
	if w.Load() != lockword.Released(0x05) {
		t.Errorf("word = %s, want free", lockword.Format(w.Load()))
	}
	if coord.Stats().Requests != 0 {
		t.Error("self-unreservation issued a suspend request")
	}
	if m.Stats().Self != 1 {
		t.Errorf("Self = %d, want 1", m.Stats().Self)
	}
}

// TestUnreserveTerminatedOwner tests the no-suspension path for dead owners.
func TestUnreserveTerminatedOwner(t *testing.T) {
	reg, coord, m := setup(t)
	self := mustNew(t, reg, "self")
	owner := mustNew(t, reg, "owner")
	id := uint16(owner.ID())
	reg.Release(owner)

	var w lockword.Word
	w.Store(lockword.Thin(0, id, 1, true))
	if err := m.Unreserve(self, &w); err != nil {
		t.Fatal(err)
	}
	if lockword.IsReserved(w.Load()) {
		t.Errorf("word still reserved: %s", lockword.Format(w.Load()))
	}
	if coord.Stats().Requests != 0 {
		t.Error("terminated owner was suspended")
	}
	if m.Stats().Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", m.Stats().Skipped)
	}
}

// TestUnreserveBlockedOwner tests that a blocked owner is not waited for
// and is released afterwards.
func TestUnreserveBlockedOwner(t *testing.T) {
	reg, coord, m := setup(t)
	self := mustNew(t, reg, "self")
	owner := mustNew(t, reg, "owner")
	owner.BeginBlocking()

	var w lockword.Word
	w.Store(lockword.Thin(0, uint16(owner.ID()), 1, true))
	if err := m.Unreserve(self, &w); err != nil {
		t.Fatal(err)
	}
	if coord.Stats().Waits != 0 {
		t.Error("suspender waited for a blocked owner")
	}
	if owner.SuspendRequested() {
		t.Error("blocked owner left with a pending request")
	}
	if lockword.IsReserved(w.Load()) {
		t.Error("word still reserved")
	}
}

// TestUnreserveRunningOwner tests a live owner inside an unsafe region.
//
// The owner must reach a safepoint before the word changes, and must run
// again afterwards.
func TestUnreserveRunningOwner(t *testing.T) {
	reg, _, m := setup(t)
	self := mustNew(t, reg, "self")
	owner := mustNew(t, reg, "owner")

	var w lockword.Word
	w.Store(lockword.Thin(0, uint16(owner.ID()), 1, true))

	inUnsafe := make(chan struct{})
	ownerDone := make(chan uint32)
	go func() {
		owner.EnterUnsafe()
		close(inUnsafe)
		time.Sleep(20 * time.Millisecond)
		seen := w.Load()
		owner.LeaveUnsafe()
		ownerDone <- seen
	}()

	<-inUnsafe
	if err := m.Unreserve(self, &w); err != nil {
		t.Fatal(err)
	}

	select {
	case seen := <-ownerDone:
		if !lockword.IsReserved(seen) {
			t.Errorf("word rewritten while owner was unsafe: %s", lockword.Format(seen))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("owner left suspended")
	}
	if lockword.IsReserved(w.Load()) {
		t.Error("word still reserved")
	}
	if owner.SuspendRequested() {
		t.Error("owner left with a pending request")
	}
}

// TestConcurrentUnreserve tests that racing unreservers agree.
func TestConcurrentUnreserve(t *testing.T) {
	reg, _, m := setup(t)
	owner := mustNew(t, reg, "owner")

	var w lockword.Word
	w.Store(lockword.Thin(0x11, uint16(owner.ID()), 4, true))

	const n = 6
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		self := mustNew(t, reg, "contender")
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Unreserve(self, &w); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	want := lockword.Thin(0x11, uint16(owner.ID()), 3, false)
	if w.Load() != want {
		t.Errorf("word = %s, want %s", lockword.Format(w.Load()), lockword.Format(want))
	}
	if got := m.Stats().Unreserved; got != 1 {
		t.Errorf("Unreserved = %d, want exactly 1", got)
	}
	if owner.SuspendRequested() {
		t.Error("owner left with a pending request")
	}
}

// BenchmarkUnreserveSelf measures self-unreservation.
func BenchmarkUnreserveSelf(b *testing.B) {
	reg := thread.NewRegistry(2)
	m := New(reg, &thread.Coordinator{})
	self, _ := reg.New("b")
	tid := uint16(self.ID())

	var w lockword.Word
	for i := 0; i < b.N; i++ {
		w.Store(lockword.Thin(0, tid, 1, true))
		_ = m.Unreserve(self, &w)
	}
}
