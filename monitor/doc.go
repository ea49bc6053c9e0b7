// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor gives any Go value a recursive lock with wait and notify,
// stored in a single 32-bit lock word embedded in the value.
//
// Locks start thin. The first goroutine to take a fresh lock reserves it
// and afterwards re-enters and exits it without contending with anyone.
// When another goroutine wants the lock the reservation is revoked, and
// the lock moves to a fat monitor from a shared table once it is waited
// on, nested too deeply, or contended.
//
// # Quick Start
//
//	package main
//
//	import "github.com/kolkov/thinmon/monitor"
//
//	type account struct {
//		monitor.Word
//		balance int
//	}
//
//	func main() {
//		monitor.Init()
//		defer monitor.Fini()
//
//		var a account
//		monitor.Create(&a.Word)
//
//		_ = monitor.Synchronized(&a.Word, func() error {
//			a.balance += 10
//			return nil
//		})
//	}
//
// # API Overview
//
// The package provides functions for:
//   - Initialization and finalization: [Init], [InitWithOptions], [Fini]
//   - Locking: [Create], [Enter], [TryEnter], [Exit], [Synchronized]
//   - Condition waiting: [Wait], [WaitTimed], [WaitInterruptible],
//     [Notify], [NotifyAll], [Interrupt]
//   - Introspection: [Owner], [Recursion], [GetStats], [Report]
//   - Goroutine identity: [Attach], [Detach], [Self]
//   - Reclamation: [Sweep]
//   - Version information: [GetInfo], [Version], [Compatible]
//
// # Threads
//
// Every goroutine that touches a monitor is given a small thread id on
// first use. Ids are recycled through [Detach]; goroutines that use
// monitors and then exit should call it.
//
// # Errors
//
// Operations by a goroutine that does not hold the lock fail with an
// error matching [ErrIllegalState] under errors.Is. Failure to inflate
// matches [ErrResourceExhausted]. A corrupted lock word panics.
//
// # Performance Characteristics
//
//	Reserved enter/exit:  plain stores to the owner's own word, no CAS
//	Thin enter/exit:      one CAS each
//	Fat enter/exit:       sync.Mutex under the hood
//	Inflation:            table lock, once per object
package monitor
