// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lockword

import (
	"strconv"
	"sync/atomic"
)

// Bit layout constants.
const (
	// HashBits is the width of the identity hash segment (bits 0..8).
	HashBits = 9

	// HashMask extracts the identity hash segment (0x000001FF).
	HashMask = (1 << HashBits) - 1

	// ContendedBit is set by a non-owner that gave up spinning and wants
	// the owner to inflate the lock on release.
	ContendedBit = 1 << 9

	// UnreservedBit is CLEAR for a reserved (biased) lock and SET for an
	// ordinary thin lock. A zero word is therefore reservable.
	UnreservedBit = 1 << 10

	// RecursionShift is the offset of the 5-bit recursion field.
	RecursionShift = 11

	// RecursionMask extracts the recursion field (0x0000F800).
	RecursionMask = 0x1F << RecursionShift

	// MaxRecursion is the largest value the recursion field can hold.
	MaxRecursion = 31

	// ThreadShift is the offset of the 15-bit owner thread id.
	ThreadShift = 16

	// ThreadMask extracts the owner thread id (0x7FFF0000).
	ThreadMask = 0x7FFF << ThreadShift

	// MaxThreadID is the largest thread id that fits the owner field.
	MaxThreadID = 0x7FFF

	// FatBit marks an inflated lock.
	FatBit = 1 << 31

	// FatShift is the offset of the fat monitor id.
	FatShift = 11

	// FatIDMask extracts the fat monitor id (0x7FFFF800).
	FatIDMask = 0xFFFFF << FatShift

	// MaxFatID is the largest fat monitor table index that can be encoded.
	MaxFatID = 0xFFFFF

	// stateMask covers everything but the hash segment.
	stateMask = ^uint32(HashMask)
)

// State is the logical state decoded from a lock word.
type State int

const (
	// Free means nobody owns the lock. A fresh reservable word is Free too.
	Free State = iota
	// ThinOwned means a thread owns the lock through the word alone.
	ThinOwned
	// Reserved means the lock is biased towards the thread in the owner field.
	Reserved
	// Fat means the word indexes an inflated monitor.
	Fat
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case ThinOwned:
		return "thin"
	case Reserved:
		return "reserved"
	case Fat:
		return "fat"
	default:
		return "unknown"
	}
}

// Init returns the create-time value for a lock word.
//
// Only the hash segment of hash survives. If reservable is false the
// reservation bit is set so the first acquisition takes an ordinary thin
// lock instead of biasing it.
//
//go:nosplit
func Init(hash uint32, reservable bool) uint32 {
	v := hash & HashMask
	if !reservable {
		v |= UnreservedBit
	}
	return v
}

// IsFat reports whether the word references a fat monitor.
//
//go:nosplit
func IsFat(v uint32) bool {
	return v&FatBit != 0
}

// FatID returns the fat monitor table index. Meaningless unless IsFat(v).
//
//go:nosplit
func FatID(v uint32) uint32 {
	return (v & FatIDMask) >> FatShift
}

// SetFat returns v converted to a fat word for monitor id.
//
// Owner, recursion, reservation and contention are dropped; the hash
// segment is kept. Ids above MaxFatID are truncated, so the table must
// never hand one out.
//
//go:nosplit
func SetFat(v, id uint32) uint32 {
	return FatBit | (id&MaxFatID)<<FatShift | v&HashMask
}

// ThreadID returns the owner thread id (0 = free). Meaningless for fat words.
//
//go:nosplit
func ThreadID(v uint32) uint16 {
	//nolint:gosec // G115: masked to 15 bits.
	return uint16((v & ThreadMask) >> ThreadShift)
}

// Recursion returns the raw recursion field.
//
//go:nosplit
func Recursion(v uint32) uint32 {
	return (v & RecursionMask) >> RecursionShift
}

// IncRecursion returns v with the recursion field incremented.
//
// At MaxRecursion it returns v unchanged and ok=false: the caller has to
// inflate instead, the field never wraps.
//
//go:nosplit
func IncRecursion(v uint32) (uint32, bool) {
	r := Recursion(v)
	if r >= MaxRecursion {
		return v, false
	}
	return v&^RecursionMask | (r+1)<<RecursionShift, true
}

// DecRecursion returns v with the recursion field decremented.
//
// At zero it returns v unchanged and ok=false.
//
//go:nosplit
func DecRecursion(v uint32) (uint32, bool) {
	r := Recursion(v)
	if r == 0 {
		return v, false
	}
	return v&^RecursionMask | (r-1)<<RecursionShift, true
}

// IsReserved reports whether the reservation bit is in its reserved (zero) state.
//
// Fat words are never reserved. A fresh word with no owner is reservable
// and reports true here while State reports Free.
//
//go:nosplit
func IsReserved(v uint32) bool {
	return v&(FatBit|UnreservedBit) == 0
}

// IsContended reports whether a waiter asked the owner to inflate.
//
//go:nosplit
func IsContended(v uint32) bool {
	return v&(FatBit|ContendedBit) == ContendedBit
}

// SetContended returns v with the contention flag set.
//
//go:nosplit
func SetContended(v uint32) uint32 {
	return v | ContendedBit
}

// Hash returns the identity hash segment.
//
//go:nosplit
func Hash(v uint32) uint32 {
	return v & HashMask
}

// WithHash returns v with its hash segment replaced by h.
//
//go:nosplit
func WithHash(v, h uint32) uint32 {
	return v&stateMask | h&HashMask
}

// Thin builds a thin word owned by tid with the given recursion field.
//
// The hash of v is kept and the contention flag is cleared.
//
//go:nosplit
func Thin(v uint32, tid uint16, recursion uint32, reserved bool) uint32 {
	w := uint32(tid)<<ThreadShift&ThreadMask | (recursion&MaxRecursion)<<RecursionShift | v&HashMask
	if !reserved {
		w |= UnreservedBit
	}
	return w
}

// Released returns the free, unreserved word that keeps the hash of v.
//
//go:nosplit
func Released(v uint32) uint32 {
	return UnreservedBit | v&HashMask
}

// StateOf decodes the logical state. Every value maps to exactly one State.
//
//go:nosplit
func StateOf(v uint32) State {
	switch {
	case IsFat(v):
		return Fat
	case ThreadID(v) == 0:
		return Free
	case v&UnreservedBit == 0:
		return Reserved
	default:
		return ThinOwned
	}
}

// Depth returns how many times the owner has entered a thin word.
//
// For a reserved word the recursion field counts holds (0 = biased but not
// held). For an unreserved owned word it counts holds minus one. Free and
// fat words report 0; the fat depth lives in the monitor.
//
//go:nosplit
func Depth(v uint32) uint32 {
	switch StateOf(v) {
	case Reserved:
		return Recursion(v)
	case ThinOwned:
		return Recursion(v) + 1
	default:
		return 0
	}
}

// Format renders a word for diagnostics, e.g. "thin(tid=3,rec=2,hash=0x15)".
// Not for hot paths.
func Format(v uint32) string {
	h := "hash=0x" + strconv.FormatUint(uint64(Hash(v)), 16)
	switch s := StateOf(v); s {
	case Fat:
		return "fat(id=" + strconv.FormatUint(uint64(FatID(v)), 10) + "," + h + ")"
	case Free:
		if IsReserved(v) {
			return "free(reservable," + h + ")"
		}
		return "free(" + h + ")"
	default:
		out := s.String() + "(tid=" + strconv.FormatUint(uint64(ThreadID(v)), 10) +
			",rec=" + strconv.FormatUint(uint64(Recursion(v)), 10)
		if IsContended(v) {
			out += ",contended"
		}
		return out + "," + h + ")"
	}
}

// Word is a lock word embedded in a monitored object.
//
// The zero Word is a free, reservable lock with hash 0. Word must not be
// copied after first use.
type Word struct {
	v atomic.Uint32
}

// Load returns the current value.
//
//go:nosplit
func (w *Word) Load() uint32 {
	return w.v.Load()
}

// Store replaces the value.
//
//go:nosplit
func (w *Word) Store(v uint32) {
	w.v.Store(v)
}

// CompareAndSwap replaces old with v if the word still holds old.
//
//go:nosplit
func (w *Word) CompareAndSwap(old, v uint32) bool {
	return w.v.CompareAndSwap(old, v)
}

// SetFat atomically turns the word into a fat word for id and returns the
// value it replaced. The hash segment is kept; a contention flag set
// concurrently is dropped.
func (w *Word) SetFat(id uint32) uint32 {
	for {
		old := w.v.Load()
		if w.v.CompareAndSwap(old, SetFat(old, id)) {
			return old
		}
	}
}

// String returns Format of the current value.
func (w *Word) String() string {
	return Format(w.v.Load())
}
