// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package restore

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

func TestScanFinalFileBecomesCompleted(t *testing.T) {
	dir := t.TempDir()
	content := []byte("hello world")
	if err := os.WriteFile(filepath.Join(dir, "a.mp4"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.mp4", Status: catalog.StatusDownloading}}}
	if err := Scan(dir, cat, false); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusCompleted {
		t.Fatalf("expected Completed, got %s", cat.Medias[0].Status)
	}
	if cat.Medias[0].LocalSize != int64(len(content)) {
		t.Fatalf("expected local size %d, got %d", len(content), cat.Medias[0].LocalSize)
	}
}

func TestScanTmpOnlyBecomesPaused(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp4.tmp"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.mp4", Status: catalog.StatusWaiting, SizeHTTP: 100}}}
	if err := Scan(dir, cat, false); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusPaused {
		t.Fatalf("expected Paused, got %s", cat.Medias[0].Status)
	}
}

func TestScanNothingAndIgnoredStaysIgnored(t *testing.T) {
	dir := t.TempDir()
	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.mp4", Status: catalog.StatusIgnored, LocalSize: 999}}}
	if err := Scan(dir, cat, false); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusIgnored {
		t.Fatalf("expected Ignored to stick, got %s", cat.Medias[0].Status)
	}
	if cat.Medias[0].LocalSize != 0 {
		t.Fatalf("expected local size reset to 0, got %d", cat.Medias[0].LocalSize)
	}
}

func TestScanNothingAndNotIgnoredBecomesMissing(t *testing.T) {
	dir := t.TempDir()
	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.mp4", Status: catalog.StatusCompleted}}}
	if err := Scan(dir, cat, false); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusMissing {
		t.Fatalf("expected Missing, got %s", cat.Medias[0].Status)
	}
}

func TestScanTransientStatusesNormalizeToPaused(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.mp4.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.mp4", Status: catalog.StatusRetrying}}}
	if err := Scan(dir, cat, false); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusPaused {
		t.Fatalf("expected Paused, got %s", cat.Medias[0].Status)
	}
}

func TestScanStrictModeMarksHashMismatchIncomplete(t *testing.T) {
	dir := t.TempDir()
	content := []byte("tampered content")
	if err := os.WriteFile(filepath.Join(dir, "a.jpg"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	wrongHash := sha256.Sum256([]byte("original content"))
	cdnPath := "/data/xx/" + hex.EncodeToString(wrongHash[:]) + ".jpg"

	cat := &catalog.Catalog{Medias: []catalog.Media{{Name: "a.jpg", CDNPath: cdnPath, Status: catalog.StatusCompleted}}}
	if err := Scan(dir, cat, true); err != nil {
		t.Fatal(err)
	}
	if cat.Medias[0].Status != catalog.StatusIncomplete {
		t.Fatalf("expected Incomplete, got %s", cat.Medias[0].Status)
	}
	if cat.Medias[0].HashCheck == "" {
		t.Fatal("expected a hash_check diagnostic")
	}
}
