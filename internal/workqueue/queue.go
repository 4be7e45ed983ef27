// Copyright 2023 The netcache Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package workqueue enforces the storage engine's bounded parallelism: at
// most a fixed number of read operations and a fixed number of write
// operations may be actively performing I/O at once, everything else
// waits in Storage's own FIFO queues. Rather than hand-roll a worker pool,
// each Limiter wraps a golang.org/x/sync/semaphore.Weighted and lets the
// Go runtime's goroutine scheduler do the actual multiplexing -- the
// semaphore only decides whether a given goroutine may start.
package workqueue

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Limiter bounds how many callers may hold it concurrently.
type Limiter struct {
	sem *semaphore.Weighted
	max int64
}

// NewLimiter returns a Limiter that admits at most max concurrent holders.
func NewLimiter(max int64) *Limiter {
	return &Limiter{sem: semaphore.NewWeighted(max), max: max}
}

// TryAcquire reports whether a slot was available and, if so, claims it.
// Storage's dispatch loop uses this instead of a blocking Acquire because
// a full limiter means "stop dispatching for now", not "block the caller".
func (l *Limiter) TryAcquire() bool {
	return l.sem.TryAcquire(1)
}

// Release frees a slot claimed by a prior successful TryAcquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}

// Max returns the configured concurrency cap.
func (l *Limiter) Max() int64 {
	return l.max
}

// Pool names one of the engine's two logical work queues (foreground and
// background) and runs submitted work on its own goroutine. It exists so
// call sites can say "run this on the background queue" the way the spec
// does, even though Go goroutines -- not a fixed thread pool -- are what
// actually executes the work; the Limiter passed to Storage's dispatch
// code is what bounds real concurrency.
type Pool struct {
	name string
}

// NewPool returns a named Pool.
func NewPool(name string) *Pool {
	return &Pool{name: name}
}

// Name returns the pool's name, for logging.
func (p *Pool) Name() string {
	return p.name
}

// Go runs fn on a new goroutine belonging to this pool.
func (p *Pool) Go(fn func()) {
	go fn()
}

// GoContext runs fn on a new goroutine, skipping the call entirely if ctx
// is already done. It does not otherwise observe ctx -- fn is responsible
// for checking ctx.Err() if it can run long.
func (p *Pool) GoContext(ctx context.Context, fn func()) {
	if ctx.Err() != nil {
		return
	}
	go fn()
}
