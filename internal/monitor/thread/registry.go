// Copyright 2025 The thinmon Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package thread

import (
	"errors"
	"sync"
)

// ErrExhausted is returned when all thread ids are in use.
var ErrExhausted = errors.New("thread ids exhausted")

// Registry allocates thread ids and tracks live threads.
//
// Ids come from a FIFO pool so a released id is reused as late as
// possible; a lock word that still names a terminated thread is then
// unlikely to be mistaken for one owned by its successor.
//
// Thread Safety: All methods are safe for concurrent calls.
type Registry struct {
	// mu protects free and threads.
	mu sync.Mutex

	// free is the queue of available ids, popped from the front.
	free []ID

	// threads is indexed by id; nil for unused ids.
	threads []*Thread

	// byGID maps goroutine ids to attached threads.
	// Key: int64 (goroutine ID), Value: *Thread.
	byGID sync.Map
}

// NewRegistry creates a registry with ids 1..maxThreads available.
//
// maxThreads <= 0 or above MaxID means MaxID.
func NewRegistry(maxThreads int) *Registry {
	if maxThreads <= 0 || maxThreads > int(MaxID) {
		maxThreads = int(MaxID)
	}
	r := &Registry{
		free:    make([]ID, 0, maxThreads),
		threads: make([]*Thread, maxThreads+1),
	}
	for i := 1; i <= maxThreads; i++ {
		//nolint:gosec // G115: i <= MaxID.
		r.free = append(r.free, ID(i))
	}
	return r
}

// New allocates an id and returns a Running thread that is not bound to
// any goroutine.
func (r *Registry) New(name string) (*Thread, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) == 0 {
		return nil, ErrExhausted
	}
	id := r.free[0]
	r.free = r.free[1:]

	t := New(id, name)
	r.threads[id] = t
	return t, nil
}

// Release terminates t and returns its id to the pool.
//
// t must not be used afterwards. Releasing twice is a no-op.
func (r *Registry) Release(t *Thread) {
	t.terminate()

	r.mu.Lock()
	defer r.mu.Unlock()
	if int(t.id) < len(r.threads) && r.threads[t.id] == t {
		r.threads[t.id] = nil
		r.free = append(r.free, t.id)
	}
}

// Lookup returns the live thread with the given id, or nil.
func (r *Registry) Lookup(id ID) *Thread {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) >= len(r.threads) {
		return nil
	}
	return r.threads[id]
}

// Live returns the number of threads that have not been released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.threads) - 1 - len(r.free)
}

// Attach binds the calling goroutine to a new thread, or returns the
// thread it is already bound to.
func (r *Registry) Attach(name string) (*Thread, error) {
	gid := goroutineID()
	if val, ok := r.byGID.Load(gid); ok {
		return val.(*Thread), nil
	}

	t, err := r.New(name)
	if err != nil {
		return nil, err
	}
	r.byGID.Store(gid, t)
	return t, nil
}

// Current returns the thread bound to the calling goroutine, or nil.
func (r *Registry) Current() *Thread {
	if val, ok := r.byGID.Load(goroutineID()); ok {
		return val.(*Thread)
	}
	return nil
}

// Detach releases the thread bound to the calling goroutine, if any.
func (r *Registry) Detach() {
	gid := goroutineID()
	val, ok := r.byGID.LoadAndDelete(gid)
	if !ok {
		return
	}
	r.Release(val.(*Thread))
}
