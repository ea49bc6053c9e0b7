// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockword

import "testing"

// TestStateOf tests decoding of every logical state.
func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		v    uint32
		want State
	}{
		{name: "zero word", v: 0, want: Free},
		{name: "unreserved free", v: UnreservedBit, want: Free},
		{name: "free with hash", v: UnreservedBit | 0x1AB, want: Free},
		{name: "reserved held once", v: Thin(0, 3, 1, true), want: Reserved},
		{name: "reserved not held", v: Thin(0, 3, 0, true), want: Reserved},
		{name: "thin owned", v: Thin(0, 7, 0, false), want: ThinOwned},
		{name: "thin owned contended", v: SetContended(Thin(0, 7, 4, false)), want: ThinOwned},
		{name: "fat", v: SetFat(0, 12), want: Fat},
		{name: "fat id zero", v: FatBit, want: Fat},
		{name: "all ones", v: 0xFFFFFFFF, want: Fat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(tt.v); got != tt.want {
				t.Errorf("StateOf(%#x) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

// TestThinFields tests packing and unpacking of owner and recursion.
func TestThinFields(t *testing.T) {
	tests := []struct {
		tid       uint16
		recursion uint32
		reserved  bool
		wantDepth uint32
	}{
		{tid: 1, recursion: 0, reserved: false, wantDepth: 1},
		{tid: 1, recursion: 0, reserved: true, wantDepth: 0},
		{tid: 42, recursion: 5, reserved: true, wantDepth: 5},
		{tid: 42, recursion: 5, reserved: false, wantDepth: 6},
		{tid: MaxThreadID, recursion: MaxRecursion, reserved: false, wantDepth: 32},
	}

	for _, tt := range tests {
		v := Thin(0x155, tt.tid, tt.recursion, tt.reserved)
		if got := ThreadID(v); got != tt.tid {
			t.Errorf("ThreadID(%s) = %d, want %d", Format(v), got, tt.tid)
		}
		if got := Recursion(v); got != tt.recursion {
			t.Errorf("Recursion(%s) = %d, want %d", Format(v), got, tt.recursion)
		}
		if got := IsReserved(v); got != tt.reserved {
			t.Errorf("IsReserved(%s) = %v, want %v", Format(v), got, tt.reserved)
		}
		if got := Depth(v); got != tt.wantDepth {
			t.Errorf("Depth(%s) = %d, want %d", Format(v), got, tt.wantDepth)
		}
		if got := Hash(v); got != 0x155 {
			t.Errorf("Hash(%s) = %#x, want 0x155", Format(v), got)
		}
		if IsFat(v) {
			t.Errorf("IsFat(%s) = true, want false", Format(v))
		}
	}
}

// TestRecursionNeverWraps tests the saturating behaviour at both ends.
func TestRecursionNeverWraps(t *testing.T) {
	v := Thin(0, 9, 0, false)

	if _, ok := DecRecursion(v); ok {
		t.Error("DecRecursion at zero succeeded, want ok=false")
	}

	for i := uint32(1); i <= MaxRecursion; i++ {
		var ok bool
		v, ok = IncRecursion(v)
		if !ok {
			t.Fatalf("IncRecursion #%d failed early", i)
		}
		if Recursion(v) != i {
			t.Fatalf("Recursion after %d increments = %d", i, Recursion(v))
		}
	}

	got, ok := IncRecursion(v)
	if ok || got != v {
		t.Errorf("IncRecursion at max = (%#x, %v), want (%#x, false)", got, ok, v)
	}
	if ThreadID(got) != 9 {
		t.Errorf("owner clobbered at max recursion: %s", Format(got))
	}
}

// TestFatEncoding tests that fat ids round-trip and keep the hash.
func TestFatEncoding(t *testing.T) {
	for _, id := range []uint32{0, 1, 255, 4096, MaxFatID} {
		v := SetFat(Thin(0x0AB, 5, 3, true), id)
		if !IsFat(v) {
			t.Fatalf("SetFat(%d) not fat", id)
		}
		if got := FatID(v); got != id {
			t.Errorf("FatID(SetFat(%d)) = %d", id, got)
		}
		if got := Hash(v); got != 0x0AB {
			t.Errorf("Hash after SetFat(%d) = %#x, want 0xab", id, got)
		}
		if IsReserved(v) || IsContended(v) {
			t.Errorf("fat word %s reports reserved or contended", Format(v))
		}
	}
}

// TestHashPreserved tests that no codec transition touches the hash segment.
func TestHashPreserved(t *testing.T) {
	const h = 0x1F3
	start := Init(h, true)

	transitions := []struct {
		name string
		f    func(uint32) uint32
	}{
		{"thin", func(v uint32) uint32 { return Thin(v, 3, 0, false) }},
		{"inc", func(v uint32) uint32 { v, _ = IncRecursion(v); return v }},
		{"dec", func(v uint32) uint32 { v, _ = DecRecursion(v); return v }},
		{"contended", SetContended},
		{"released", Released},
		{"fat", func(v uint32) uint32 { return SetFat(v, 77) }},
	}

	v := start
	for _, tr := range transitions {
		v = tr.f(v)
		if Hash(v) != h {
			t.Errorf("after %s: hash = %#x, want %#x", tr.name, Hash(v), h)
		}
	}
}

// TestInit tests create-time values.
func TestInit(t *testing.T) {
	if v := Init(0xFFFFFFFF, true); v != HashMask {
		t.Errorf("Init(all ones, reservable) = %#x, want %#x", v, HashMask)
	}
	if v := Init(0, false); v != UnreservedBit {
		t.Errorf("Init(0, unreservable) = %#x, want %#x", v, UnreservedBit)
	}
	if !IsReserved(Init(0, true)) {
		t.Error("reservable init word not reserved-looking")
	}
}

// TestWithHash tests replacing the hash segment only.
func TestWithHash(t *testing.T) {
	v := Thin(0x001, 11, 2, false)
	got := WithHash(v, 0x1FF)
	if Hash(got) != 0x1FF {
		t.Errorf("Hash = %#x, want 0x1ff", Hash(got))
	}
	if got&^HashMask != v&^HashMask {
		t.Errorf("WithHash changed state bits: %s -> %s", Format(v), Format(got))
	}
}

// TestWordSetFat tests the atomic fat transition.
func TestWordSetFat(t *testing.T) {
	var w Word
	w.Store(Thin(0x42, 2, 1, true))

	old := w.SetFat(9)
	if ThreadID(old) != 2 {
		t.Errorf("SetFat returned %s, want previous thin word", Format(old))
	}
	if got := w.Load(); !IsFat(got) || FatID(got) != 9 || Hash(got) != 0x42 {
		t.Errorf("word after SetFat = %s", Format(got))
	}
}

// TestFormat tests diagnostic rendering.
func TestFormat(t *testing.T) {
	tests := []struct {
		v    uint32
		want string
	}{
		{0, "free(reservable,hash=0x0)"},
		{UnreservedBit, "free(hash=0x0)"},
		{Thin(0x15, 3, 2, false), "thin(tid=3,rec=2,hash=0x15)"},
		{SetContended(Thin(0, 3, 0, false)), "thin(tid=3,rec=0,contended,hash=0x0)"},
		{Thin(0, 8, 1, true), "reserved(tid=8,rec=1,hash=0x0)"},
		{SetFat(0x1, 4), "fat(id=4,hash=0x1)"},
	}

	for _, tt := range tests {
		if got := Format(tt.v); got != tt.want {
			t.Errorf("Format(%#x) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

// BenchmarkStateOf measures the decode fast path.
func BenchmarkStateOf(b *testing.B) {
	v := Thin(0, 3, 2, true)
	var s State
	for i := 0; i < b.N; i++ {
		s = StateOf(v)
	}
	_ = s
}

// BenchmarkIncRecursion measures the recursion update.
func BenchmarkIncRecursion(b *testing.B) {
	v := Thin(0, 3, 0, true)
	for i := 0; i < b.N; i++ {
		n, ok := IncRecursion(v)
		if !ok {
			n = Thin(n, 3, 0, true)
		}
		v = n
	}
}
