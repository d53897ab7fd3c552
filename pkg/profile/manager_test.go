// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/coomerdl/coomerdl/pkg/apipager"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func onePostServer(t *testing.T, id string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/onlyfans/user/alice/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("page") || r.URL.Query().Has("before_id") ||
			r.URL.Query().Has("max_id") || r.URL.Query().Has("before") || r.URL.Query().Has("o") {
			w.Write(mustJSON(t, []apipager.Post{}))
			return
		}
		w.Write(mustJSON(t, []apipager.Post{{
			ID:   id,
			File: &apipager.Attachment{Name: id + ".jpg", Path: "/data/xx/" + id + ".jpg"},
		}}))
	})
	return httptest.NewServer(mux)
}

func TestRefreshInsertsNewMediaOnly(t *testing.T) {
	srv := onePostServer(t, "post1")
	defer srv.Close()

	dataDir := t.TempDir()
	key := Key{Service: "onlyfans", Username: "alice"}
	mgr := New(srv.Client(), httpclient.Options{}, dataDir, nil)
	mgr.overrideBaseURL(srv.URL + "/api/v1")

	n, err := mgr.Refresh(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 inserted media, got %d", n)
	}

	// A second Refresh against an unchanged remote must insert nothing
	// new (round-trip law: refresh is idempotent).
	n2, err := mgr.Refresh(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("expected 0 newly inserted media on second refresh, got %d", n2)
	}

	store := catalog.NewStore(CatalogPath(dataDir, key))
	cat, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Medias) != 1 {
		t.Fatalf("expected 1 media total, got %d", len(cat.Medias))
	}
}

func TestListKeysWalksDataDir(t *testing.T) {
	dataDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dataDir, "onlyfans"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "onlyfans", "alice.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "onlyfans", "bob.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	keys, err := ListKeys(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d: %+v", len(keys), keys)
	}
}

func TestListKeysMissingDirIsEmpty(t *testing.T) {
	keys, err := ListKeys(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected 0 keys, got %d", len(keys))
	}
}

func TestKeyRoundTrip(t *testing.T) {
	k := Key{Service: "onlyfans", Username: "alice"}
	parsed, err := ParseKey(k.String())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != k {
		t.Fatalf("got %+v, want %+v", parsed, k)
	}
}

func TestParseKeyRejectsMissingColon(t *testing.T) {
	if _, err := ParseKey("noservice"); err == nil {
		t.Fatal("expected error for key without a colon")
	}
}

func TestDeleteRemovesCatalogAndTree(t *testing.T) {
	dataDir := t.TempDir()
	baseDir := t.TempDir()
	key := Key{Service: "onlyfans", Username: "alice"}
	mgr := New(http.DefaultClient, httpclient.Options{}, dataDir, nil)

	store := catalog.NewStore(CatalogPath(dataDir, key))
	if err := store.Save(&catalog.Catalog{ProfileName: key.Username}); err != nil {
		t.Fatal(err)
	}
	dlDir := DownloadDir(baseDir, key)
	if err := EnsureTree(dlDir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dlDir, subdirVideo, "a.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := mgr.Delete(key, baseDir); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(CatalogPath(dataDir, key)); !os.IsNotExist(err) {
		t.Fatalf("expected catalog removed, stat err = %v", err)
	}
	if _, err := os.Stat(dlDir); !os.IsNotExist(err) {
		t.Fatalf("expected tree removed, stat err = %v", err)
	}
}

func TestMoveRelocatesTreeAndReportsProgress(t *testing.T) {
	dataDir := t.TempDir()
	oldBase := t.TempDir()
	newBase := t.TempDir()
	key := Key{Service: "onlyfans", Username: "alice"}
	mgr := New(http.DefaultClient, httpclient.Options{}, dataDir, nil)

	store := catalog.NewStore(CatalogPath(dataDir, key))
	if err := store.Save(&catalog.Catalog{ProfileName: key.Username}); err != nil {
		t.Fatal(err)
	}

	oldDir := DownloadDir(oldBase, key)
	if err := EnsureTree(oldDir); err != nil {
		t.Fatal(err)
	}
	content := []byte("hello world")
	if err := os.WriteFile(filepath.Join(oldDir, subdirVideo, "a.mp4"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	var lastMoved, lastTotal int64
	err := mgr.Move(context.Background(), key, oldBase, newBase, func(moved, total int64) {
		lastMoved, lastTotal = moved, total
	})
	if err != nil {
		t.Fatal(err)
	}
	_ = lastMoved
	_ = lastTotal

	newDir := DownloadDir(newBase, key)
	got, err := os.ReadFile(filepath.Join(newDir, subdirVideo, "a.mp4"))
	if err != nil {
		t.Fatalf("file not found at new location: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: %q", got)
	}
	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Fatalf("expected old tree removed, stat err = %v", err)
	}

	cat, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cat.CustomDir != newBase {
		t.Fatalf("expected custom_dir %q, got %q", newBase, cat.CustomDir)
	}
}

func TestImportExistingMatchesFilesByHash(t *testing.T) {
	const content = "the quick brown fox"
	hash := sha256Hex(content)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/onlyfans/user/alice/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("page") || r.URL.Query().Has("before_id") ||
			r.URL.Query().Has("max_id") || r.URL.Query().Has("before") || r.URL.Query().Has("o") {
			w.Write(mustJSON(t, []apipager.Post{}))
			return
		}
		w.Write(mustJSON(t, []apipager.Post{{
			ID:   "post1",
			File: &apipager.Attachment{Name: "canonical.jpg", Path: "/data/xx/" + hash + ".jpg"},
		}}))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dataDir := t.TempDir()
	importDir := t.TempDir()
	baseDir := t.TempDir()
	key := Key{Service: "onlyfans", Username: "alice"}

	if err := os.WriteFile(filepath.Join(importDir, "unsorted.jpg"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	mgr := New(srv.Client(), httpclient.Options{}, dataDir, nil)
	mgr.overrideBaseURL(srv.URL + "/api/v1")

	if err := mgr.ImportExisting(context.Background(), key, importDir, baseDir); err != nil {
		t.Fatal(err)
	}

	store := catalog.NewStore(CatalogPath(dataDir, key))
	cat, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Medias) != 1 {
		t.Fatalf("expected 1 media, got %d", len(cat.Medias))
	}
	if cat.Medias[0].Status != catalog.StatusCompleted {
		t.Fatalf("expected matched file to be Completed, got %s", cat.Medias[0].Status)
	}

	dstDir := DownloadDir(baseDir, key)
	if _, err := os.Stat(filepath.Join(TypeDir(dstDir, catalog.TypeImage), "canonical.jpg")); err != nil {
		t.Fatalf("expected file renamed into canonical location: %v", err)
	}
}
