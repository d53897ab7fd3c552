// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

func newFailedStore(t *testing.T, names ...string) *catalog.Store {
	t.Helper()
	s := catalog.NewStore(filepath.Join(t.TempDir(), "catalog.json"))
	cat := &catalog.Catalog{}
	for _, n := range names {
		cat.Medias = append(cat.Medias, catalog.Media{ID: n, Name: n, Status: catalog.StatusFailed})
	}
	if err := s.Save(cat); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestScanOnceReenqueuesEligibleFailed(t *testing.T) {
	store := newFailedStore(t, "a", "b")

	var mu sync.Mutex
	var enqueued []string
	sup := NewSupervisor(store, func(name string) {
		mu.Lock()
		enqueued = append(enqueued, name)
		mu.Unlock()
	}, 10, time.Minute)

	sup.scanOnce(time.Now())

	mu.Lock()
	defer mu.Unlock()
	if len(enqueued) != 2 {
		t.Fatalf("expected both eligible items re-enqueued, got %v", enqueued)
	}
	snap := store.Snapshot()
	for _, m := range snap.Medias {
		if m.Status != catalog.StatusWaiting {
			t.Fatalf("expected %s to become Waiting, got %s", m.Name, m.Status)
		}
		if m.RetryCount != 1 {
			t.Fatalf("expected retry_count 1 for %s, got %d", m.Name, m.RetryCount)
		}
	}
}

func TestScanOnceCapsAtMaxPerPass(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f"}
	store := newFailedStore(t, names...)

	var mu sync.Mutex
	var enqueued []string
	sup := NewSupervisor(store, func(name string) {
		mu.Lock()
		enqueued = append(enqueued, name)
		mu.Unlock()
	}, 10, time.Minute)

	sup.scanOnce(time.Now())

	mu.Lock()
	defer mu.Unlock()
	if len(enqueued) != maxPerPass {
		t.Fatalf("expected at most %d items per pass, got %d", maxPerPass, len(enqueued))
	}
}

func TestScanOnceRespectsLimitAndDelay(t *testing.T) {
	store := newFailedStore(t, "a")

	calls := 0
	sup := NewSupervisor(store, func(string) { calls++ }, 1, time.Hour)

	now := time.Now()
	sup.scanOnce(now)
	if calls != 1 {
		t.Fatalf("expected first pass to enqueue, got %d calls", calls)
	}

	// Media is Waiting now, not Failed, so a second immediate scan
	// (simulating it failing again instantly) should be blocked by the
	// exhausted attempts budget once it's Failed again.
	if err := store.Mutate("a", func(m *catalog.Media) error {
		m.Status = catalog.StatusFailed
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sup.scanOnce(now)
	if calls != 1 {
		t.Fatalf("expected limit=1 to block a second re-enqueue, got %d calls", calls)
	}
}

func TestScanOnceResetsMetaWhenLeavingFailed(t *testing.T) {
	store := newFailedStore(t, "a")
	sup := NewSupervisor(store, func(string) {}, 10, time.Minute)

	sup.scanOnce(time.Now())
	if _, ok := sup.meta["a"]; !ok {
		t.Fatal("expected meta tracked for a")
	}

	if err := store.Mutate("a", func(m *catalog.Media) error {
		m.Status = catalog.StatusCompleted
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	sup.scanOnce(time.Now())
	if _, ok := sup.meta["a"]; ok {
		t.Fatal("expected meta reset once media left Failed")
	}
}
