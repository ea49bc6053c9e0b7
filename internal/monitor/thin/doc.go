// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thin implements enter, exit, wait and notify over lock words.
//
// A lock starts free. The first acquirer of a freshly created word reserves
// it, after which that thread re-enters and exits with plain stores inside
// an unsafe region, never a CAS. Other threads first unreserve the word
// through package reserve and then compete with a CAS on the owner field. The lock inflates to a fat monitor when:
//   - its owner nests deeper than Options.MaxRecursion
//   - its owner waits on it
//   - its owner releases it while a contender has flagged it
//
// Inflation is permanent.
//
// Lock word transitions:
//
//	free(reservable) --enter T--> reserved(T,1) --exit--> reserved(T,0)
//	reserved(T,d)    --unreserve-> thin(T,d) or free(unreservable)
//	free             --enter T--> thin(T,1)    --exit--> free
//	thin(T,d)        --inflate--> fat(id)
//
// Every method that takes a *thread.Thread must be called from the
// goroutine that thread stands for.
package thin
