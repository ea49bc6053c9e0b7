// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package result defines the outcomes and errors shared by the monitor packages.
//
// Expected, non-exceptional outcomes are values ([Status], [WaitResult]).
// Caller bugs and resource failures are errors built from [Error], which
// always unwraps to one of the kind sentinels so callers can use errors.Is:
//
//	if errors.Is(err, result.ErrIllegalState) {
//	    // caller does not own the lock
//	}
package result

import (
	"errors"
	"fmt"
)

// Kind sentinels.
var (
	// ErrIllegalState reports an operation by a thread that does not own the
	// lock, or a release of a lock that is not held.
	ErrIllegalState = errors.New("illegal monitor state")

	// ErrInvalidIndex reports a fat lock id outside the monitor table. It
	// implies a corrupted lock word.
	ErrInvalidIndex = errors.New("invalid fat monitor index")

	// ErrResourceExhausted reports that a monitor or table slot could not be
	// allocated during inflation.
	ErrResourceExhausted = errors.New("monitor resources exhausted")

	// ErrDestroyed reports use of a monitor after the collector reclaimed it.
	ErrDestroyed = errors.New("monitor destroyed")

	// ErrNoThread reports a call from a goroutine that is not attached to a
	// monitor thread.
	ErrNoThread = errors.New("no monitor thread attached")
)

// Status is the outcome of a non-blocking acquisition attempt.
type Status int

const (
	// Acquired means the calling thread now owns the lock.
	Acquired Status = iota
	// Busy means another thread owns the lock.
	Busy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Acquired:
		return "Acquired"
	case Busy:
		return "Busy"
	default:
		return "Unknown"
	}
}

// WaitResult is the reason a wait returned.
type WaitResult int

const (
	// Notified means a notify woke the waiter.
	Notified WaitResult = iota
	// TimedOut means the wait timeout elapsed first.
	TimedOut
	// Interrupted means the waiting thread was interrupted. The interrupt
	// flag has been consumed.
	Interrupted
)

// String returns the wait result name.
func (r WaitResult) String() string {
	switch r {
	case Notified:
		return "Notified"
	case TimedOut:
		return "TimedOut"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// Error is a monitor operation failure with context.
//
// Format: "op: message (thread N)" with an optional suggestion on a
// separate paragraph.
//
// Thread Safety: Immutable after creation, safe for concurrent use.
type Error struct {
	Op         string // Operation that failed, e.g. "exit".
	Kind       error  // One of the Err* sentinels.
	Thread     uint16 // Calling thread id, 0 if unknown.
	Message    string // Human-readable detail.
	Suggestion string // Optional hint for fixing the caller.
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	result := e.Op + ": " + msg
	if e.Thread != 0 {
		result += fmt.Sprintf(" (thread %d)", e.Thread)
	}
	if e.Suggestion != "" {
		result += "\n\nSuggestion: " + e.Suggestion
	}
	return result
}

// Unwrap returns the kind sentinel.
func (e *Error) Unwrap() error {
	return e.Kind
}

// NotOwner builds the ErrIllegalState error raised when tid calls op on a
// lock it does not hold.
func NotOwner(op string, tid uint16) *Error {
	return &Error{
		Op:         op,
		Kind:       ErrIllegalState,
		Thread:     tid,
		Message:    "current thread is not the lock owner",
		Suggestion: "Call " + op + " only between a successful enter and the matching exit",
	}
}

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(op string, kind error, format string, args ...any) *Error {
	return &Error{
		Op:      op,
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}
