// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package scheduler implements the bounded concurrency controller: a
// per-profile FIFO queue, a worker pool sized to max_concurrent, and a
// process-wide semaphore capping total concurrent downloads across
// every open profile.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

const (
	// DefaultMaxConcurrent is a profile's worker-pool size absent
	// config.
	DefaultMaxConcurrent = 25
	// DefaultGlobalMax is CU_GLOBAL_MAX absent config.
	DefaultGlobalMax = 50

	tickInterval = 50 * time.Millisecond
	idleTicks    = 100
)

// Global is the process-wide semaphore every Controller acquires
// before its own per-profile permit, in that fixed order, to avoid the
// deadlock a reversed acquire order would invite.
var Global = semaphore.NewWeighted(DefaultGlobalMax)

// SetGlobalMax replaces Global with a semaphore of a new size. Existing
// holders of the old semaphore are unaffected; it simply stops being
// handed out to new acquirers once this returns.
func SetGlobalMax(n int64) {
	Global = semaphore.NewWeighted(n)
}

// Job is one unit of dispatchable work: a media reference plus the
// function that actually performs the transfer. The function's bool
// result is the cooperative-stop contract: false means the worker
// should treat the job as stopped rather than failed.
type Job struct {
	MediaName string
	Run       func(ctx context.Context) (ok bool, err error)
}

// Controller owns one profile's queue, worker pool, and active set. A
// zero Controller is not valid; use New.
type Controller struct {
	store *catalog.Store

	mu       sync.Mutex
	queue    []Job
	active   map[string]struct{}
	queued   map[string]struct{}
	sem      *semaphore.Weighted
	poolSize int64

	stopCh  chan struct{}
	doneCh  chan struct{}
	kickCh  chan struct{}
	started bool
	idle    int
}

// New builds a Controller for one profile's catalog store, sized to
// maxConcurrent (DefaultMaxConcurrent if <= 0).
func New(store *catalog.Store, maxConcurrent int64) *Controller {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Controller{
		store:    store,
		active:   make(map[string]struct{}),
		queued:   make(map[string]struct{}),
		sem:      semaphore.NewWeighted(maxConcurrent),
		poolSize: maxConcurrent,
		kickCh:   make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the FIFO queue if its media is not already
// active or queued. The caller is
// responsible for having already transitioned the media's status to
// Waiting.
func (c *Controller) Enqueue(j Job) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[j.MediaName]; ok {
		return
	}
	if _, ok := c.queued[j.MediaName]; ok {
		return
	}
	c.queued[j.MediaName] = struct{}{}
	c.queue = append(c.queue, j)
	c.kick()
}

// kick wakes the tick loop early; non-blocking, coalesces into a
// single pending wake since the channel is buffered at 1.
func (c *Controller) kick() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

// Kick is the boot watchdog's hook: called when the queue
// is non-empty but no worker has been active for >= 30s.
func (c *Controller) Kick() { c.kick() }

// ActiveCount reports the number of media currently downloading.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// QueueDepth reports the number of jobs waiting for a worker.
func (c *Controller) QueueDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Start launches the tick loop in a background goroutine. Safe to call
// once; a second call is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop ends the tick loop without cancelling in-flight transfers.
// It blocks until the loop goroutine has actually exited.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// run is the ~50ms scheduler tick: reap finished workers
// implicitly via the semaphore release in runJob's defer, then dispatch
// as many queued jobs as permits allow.
func (c *Controller) run(ctx context.Context) {
	defer close(c.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.dispatch(ctx)
		case <-c.kickCh:
			c.dispatch(ctx)
		}
	}
}

// dispatch pops as many queued jobs as the global and per-profile
// semaphores allow and hands each to its own worker goroutine. Both
// permits are taken before a job leaves the queue, so FIFO order within
// the profile is preserved across ticks.
func (c *Controller) dispatch(ctx context.Context) {
	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.idle++
			if c.idle == idleTicks {
				log.Printf("[scheduler] idle: queue empty, %d active", len(c.active))
			}
			c.mu.Unlock()
			return
		}
		// Both permits are captured here so runJob releases the exact
		// semaphores it acquired, even if SetMaxConcurrent/SetGlobalMax
		// swap the fields while the job is still running.
		sem := c.sem
		global := Global
		// Deadlock avoidance: the global permit is always acquired
		// before the per-profile one, in this one fixed order,
		// everywhere in the codebase.
		if !global.TryAcquire(1) {
			c.mu.Unlock()
			return
		}
		if !sem.TryAcquire(1) {
			global.Release(1)
			c.mu.Unlock()
			return
		}
		c.idle = 0

		j := c.queue[0]
		c.queue = c.queue[1:]
		delete(c.queued, j.MediaName)

		c.active[j.MediaName] = struct{}{}
		c.mu.Unlock()

		if err := c.store.Mutate(j.MediaName, func(m *catalog.Media) error {
			if err := catalog.Transition(m.Status, catalog.StatusDownloading); err != nil {
				return err
			}
			m.Status = catalog.StatusDownloading
			return nil
		}); err != nil {
			log.Printf("[scheduler] %s: refusing dispatch, %v", j.MediaName, err)
			c.mu.Lock()
			delete(c.active, j.MediaName)
			c.mu.Unlock()
			global.Release(1)
			sem.Release(1)
			continue
		}

		go c.runJob(ctx, j, sem, global)
	}
}

// runJob executes one job, releasing both permits and clearing the
// active-set entry when it returns (the "reap" half of the tick).
// Exceptions are never allowed to escape a worker goroutine.
func (c *Controller) runJob(ctx context.Context, j Job, sem, global *semaphore.Weighted) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] job %s panicked: %v", j.MediaName, r)
		}
		c.mu.Lock()
		delete(c.active, j.MediaName)
		c.mu.Unlock()
		global.Release(1)
		sem.Release(1)
		c.kick()
	}()

	if _, err := j.Run(ctx); err != nil {
		log.Printf("[scheduler] job %s failed: %v", j.MediaName, err)
	}
}

// SetMaxConcurrent replaces the worker-pool semaphore with one sized
// n, letting jobs already running under the old semaphore finish
// undisturbed. Permits already released against the old semaphore are
// simply discarded; the new semaphore starts fully available.
func (c *Controller) SetMaxConcurrent(n int64) {
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	c.mu.Lock()
	c.sem = semaphore.NewWeighted(n)
	c.poolSize = n
	c.mu.Unlock()
	c.kick()
}

// MaxConcurrent returns the controller's current pool size.
func (c *Controller) MaxConcurrent() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poolSize
}

// IsActive reports whether a media name currently holds a worker slot.
func (c *Controller) IsActive(mediaName string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[mediaName]
	return ok
}
