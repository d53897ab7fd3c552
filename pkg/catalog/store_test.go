// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreLoadMissingIsNil(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope.json"))
	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatalf("expected nil catalog, got %+v", c)
	}
}

func TestStoreLoadCorruptResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path)
	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Medias) != 0 {
		t.Fatalf("expected empty catalog, got %+v", c)
	}
}

func TestUpsertThenSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	s := NewStore(path)
	if err := s.Upsert(Media{Name: "a.mp4", Status: StatusMissing, SizeHTTP: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(Media{Name: "a.mp4", Status: StatusWaiting, SizeHTTP: 100}); err != nil {
		t.Fatal(err)
	}

	s2 := NewStore(path)
	c, err := s2.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Medias) != 1 {
		t.Fatalf("expected a single deduplicated entry by name, got %d", len(c.Medias))
	}
	if c.Medias[0].Status != StatusWaiting {
		t.Fatalf("expected updated status, got %s", c.Medias[0].Status)
	}
}

func TestSaveLoadRoundTripLaw(t *testing.T) {
	// save(load(x)) == load(x)
	path := filepath.Join(t.TempDir(), "p.json")
	s := NewStore(path)
	_ = s.Upsert(Media{Name: "x.jpg", Status: StatusCompleted, SizeHTTP: 10, LocalSize: 10, Percent: 100})

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(loaded); err != nil {
		t.Fatal(err)
	}
	reloaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Medias) != 1 || reloaded.Medias[0] != loaded.Medias[0] {
		t.Fatalf("round-trip mismatch: %+v vs %+v", reloaded, loaded)
	}
}

func TestSetIgnoredSticky(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	s := NewStore(path)
	_ = s.Upsert(Media{Name: "a.mp4", Status: StatusMissing})
	if err := s.SetIgnored("a.mp4", true, false); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.Medias[0].Status != StatusIgnored {
		t.Fatalf("expected Ignored, got %s", snap.Medias[0].Status)
	}
}

func TestForceCompleteOverridesFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	s := NewStore(path)
	_ = s.Upsert(Media{Name: "a.mp4", Status: StatusFailed, Error: "Échec complet"})

	if err := s.ForceComplete("a.mp4", 4096); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	m := snap.Medias[0]
	if m.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", m.Status)
	}
	if m.LocalSize != 4096 || m.SizeHTTP != 4096 || m.Percent != 100 {
		t.Fatalf("expected size/percent forced, got %+v", m)
	}
	if m.HashCheck != " (forced)" {
		t.Fatalf("expected forced diagnostic in hash_check, got %q", m.HashCheck)
	}
	if m.Error != "" {
		t.Fatalf("expected error cleared, got %q", m.Error)
	}
}

func TestTransitionRejectsInvalidEdge(t *testing.T) {
	if err := Transition(StatusCompleted, StatusDownloading); err == nil {
		t.Fatal("expected error for Completed -> Downloading")
	}
	if err := Transition(StatusMissing, StatusWaiting); err != nil {
		t.Fatalf("expected valid edge, got %v", err)
	}
}

func TestRecomputePercentClamped(t *testing.T) {
	m := Media{SizeHTTP: 100, LocalSize: 150}
	m.RecomputePercent()
	if m.Percent != 100 {
		t.Fatalf("expected clamp to 100, got %v", m.Percent)
	}
}
