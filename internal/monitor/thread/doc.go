// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package thread implements monitor thread identity and the safe-region
// suspension protocol.
//
// Every goroutine that takes monitor locks is attached to a [Thread]. A
// Thread carries:
//   - ID: stable small integer (1..32767) stored in lock words, 0 = free
//   - Safe-region state: nesting depth of unsafe regions plus pending
//     suspend requests
//   - Status: Running, Blocked (parked on a monitor) or Terminated
//   - Interrupt flag with at-most-once delivery
//
// # Safe Regions
//
// A thread mutates lock words it owns only inside an unsafe region
// ([Thread.EnterUnsafe] / [Thread.LeaveUnsafe]). Outside of one it is Safe
// and another thread may inspect or rewrite state the thread "owns". A
// suspender asks for that with [Coordinator.RequestSuspend]:
//
//	Suspender                     Target
//	---------                     ------
//	request++                     EnterUnsafe: disable++
//	load disable                  load request
//
// Both sides use sequentially consistent atomics, so at least one of them
// observes the other. If the target saw the request it backs out and parks
// until [Coordinator.Resume]. If the suspender saw disable > 0 it sleeps on
// the target's condition variable until LeaveUnsafe brings the depth to 0
// and the target parks in [Thread.ReachSafepoint].
//
// Every blocking operation in the monitor packages runs in a safe region,
// so a blocked thread never delays a suspender.
//
// # Registry
//
// [Registry] hands out thread ids from a FIFO reuse pool and maps goroutine
// ids to their Thread, so callers that do not pass a Thread around can use
// [Registry.Current].
package thread
