// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package lockword implements the 32-bit lock word carried by every monitored object.
//
// A lock word packs the complete thin-lock state into one machine word so
// that the uncontended paths never touch anything but that word:
//
//	 31   30 ........... 16   15 ...... 11   10      9        8 ....... 0
//	fat   thread id (15)      recursion (5)  unres   contended  hash (9)
//
// When the fat bit is set, bits 11..30 hold the index of the inflated
// monitor in the fat monitor table instead of owner and recursion.
//
// The identity hash segment (bits 0..8) is preserved by every transition.
// All state comparisons mask it out first.
//
// The codec functions are pure and allocation-free. Concurrency is the
// caller's business: [Word] only exposes Load, Store and CompareAndSwap on
// the whole word.
package lockword
