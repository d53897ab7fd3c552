// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

func newTestStore(t *testing.T, names ...string) *catalog.Store {
	t.Helper()
	s := catalog.NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	cat := &catalog.Catalog{}
	for _, n := range names {
		cat.Medias = append(cat.Medias, catalog.Media{
			ID:     n,
			Name:   n,
			Status: catalog.StatusWaiting,
		})
	}
	if err := s.Save(cat); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	return s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestControllerDispatchesAndReaps(t *testing.T) {
	store := newTestStore(t, "a", "b", "c")
	c := New(store, 2)

	var ran int32
	var wg sync.WaitGroup
	wg.Add(3)
	for _, name := range []string{"a", "b", "c"} {
		name := name
		c.Enqueue(Job{
			MediaName: name,
			Run: func(ctx context.Context) (bool, error) {
				atomic.AddInt32(&ran, 1)
				wg.Done()
				return true, nil
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs never completed")
	}

	waitFor(t, time.Second, func() bool { return c.ActiveCount() == 0 })
	if got := atomic.LoadInt32(&ran); got != 3 {
		t.Fatalf("expected 3 jobs run, got %d", got)
	}
}

func TestControllerEnqueueIsIdempotent(t *testing.T) {
	store := newTestStore(t, "a")
	c := New(store, 1)
	c.Enqueue(Job{MediaName: "a", Run: func(context.Context) (bool, error) { return true, nil }})
	c.Enqueue(Job{MediaName: "a", Run: func(context.Context) (bool, error) { return true, nil }})
	if depth := c.QueueDepth(); depth != 1 {
		t.Fatalf("expected queue depth 1, got %d", depth)
	}
}

func TestControllerRespectsPerProfileLimit(t *testing.T) {
	store := newTestStore(t, "a", "b", "c")
	c := New(store, 1)

	release := make(chan struct{})
	var peak int32
	var cur int32
	for _, name := range []string{"a", "b", "c"} {
		name := name
		c.Enqueue(Job{
			MediaName: name,
			Run: func(ctx context.Context) (bool, error) {
				n := atomic.AddInt32(&cur, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&cur, -1)
				return true, nil
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	waitFor(t, time.Second, func() bool { return c.ActiveCount() == 1 })
	time.Sleep(150 * time.Millisecond) // a few ticks; peak must not exceed 1
	close(release)

	waitFor(t, time.Second, func() bool { return c.ActiveCount() == 0 })
	if atomic.LoadInt32(&peak) != 1 {
		t.Fatalf("expected peak concurrency 1, got %d", peak)
	}
}

func TestSetMaxConcurrentChangesPoolSize(t *testing.T) {
	store := newTestStore(t, "a")
	c := New(store, 1)
	if c.MaxConcurrent() != 1 {
		t.Fatalf("expected initial pool size 1, got %d", c.MaxConcurrent())
	}
	c.SetMaxConcurrent(5)
	if c.MaxConcurrent() != 5 {
		t.Fatalf("expected pool size 5 after resize, got %d", c.MaxConcurrent())
	}
}

func TestControllerTransitionsMediaToDownloading(t *testing.T) {
	store := newTestStore(t, "a")
	c := New(store, 1)

	seen := make(chan catalog.Status, 1)
	c.Enqueue(Job{
		MediaName: "a",
		Run: func(ctx context.Context) (bool, error) {
			snap := store.Snapshot()
			i := snap.ByName("a")
			seen <- snap.Medias[i].Status
			return true, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Stop()

	select {
	case status := <-seen:
		if status != catalog.StatusDownloading {
			t.Fatalf("expected Downloading at dispatch time, got %s", status)
		}
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}
