// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thin

import (
	"time"

	"github.com/kolkov/thinmon/internal/monitor/lockword"
	"github.com/kolkov/thinmon/internal/monitor/osmon"
	"github.com/kolkov/thinmon/internal/monitor/result"
	"github.com/kolkov/thinmon/internal/monitor/thread"
)

// Wait releases w completely and blocks until notified.
//
// The lock is inflated first if it is still thin. On return the caller
// holds w again at the depth it had before. Fails with ErrIllegalState if
// self does not hold w.
func (e *Engine) Wait(self *thread.Thread, w *lockword.Word) error {
	_, err := e.wait("wait", self, w, 0, false)
	return err
}

// WaitTimed is Wait with a timeout. It returns result.TimedOut if the
// timeout elapsed before a notify; the lock is held again either way.
// timeout <= 0 waits without a deadline.
func (e *Engine) WaitTimed(self *thread.Thread, w *lockword.Word, timeout time.Duration) (result.WaitResult, error) {
	return e.wait("waitTimed", self, w, timeout, false)
}

// WaitInterruptible is WaitTimed that also ends on self.Interrupt. A
// result.Interrupted return has consumed the interrupt.
func (e *Engine) WaitInterruptible(self *thread.Thread, w *lockword.Word, timeout time.Duration) (result.WaitResult, error) {
	return e.wait("waitInterruptible", self, w, timeout, true)
}

func (e *Engine) wait(op string, self *thread.Thread, w *lockword.Word, timeout time.Duration, interruptible bool) (result.WaitResult, error) {
	m, err := e.fatFor(op, self, w)
	if err != nil {
		return result.Notified, err
	}

	self.BeginBlocking()
	defer self.EndBlocking()
	return m.Wait(self, timeout, interruptible)
}

// fatFor returns the fat monitor of w, inflating it if self holds it thin.
func (e *Engine) fatFor(op string, self *thread.Thread, w *lockword.Word) (*osmon.Monitor, error) {
	v := w.Load()
	if lockword.IsFat(v) {
		return e.monitorOf(v), nil
	}
	tid := uint16(self.ID())
	if lockword.ThreadID(v) != tid || lockword.Depth(v) == 0 {
		return nil, result.NotOwner(op, tid)
	}
	m, err := e.table.Inflate(self, w, e.reserve)
	if err != nil {
		return nil, err
	}
	e.stats.waitInflates.Add(1)
	return m, nil
}

// Notify wakes one thread waiting on w.
//
// On a thin lock nobody can be waiting, so for the owner this is a no-op.
// Fails with ErrIllegalState if self does not hold w.
func (e *Engine) Notify(self *thread.Thread, w *lockword.Word) error {
	return e.notify("notify", self, w, false)
}

// NotifyAll wakes every thread waiting on w. Same rules as Notify.
func (e *Engine) NotifyAll(self *thread.Thread, w *lockword.Word) error {
	return e.notify("notifyAll", self, w, true)
}

func (e *Engine) notify(op string, self *thread.Thread, w *lockword.Word, all bool) error {
	v := w.Load()
	if lockword.IsFat(v) {
		m := e.monitorOf(v)
		if all {
			return m.NotifyAll(self.ID())
		}
		return m.Notify(self.ID())
	}
	tid := uint16(self.ID())
	if lockword.ThreadID(v) != tid || lockword.Depth(v) == 0 {
		return result.NotOwner(op, tid)
	}
	return nil
}
