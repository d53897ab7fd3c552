// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package apipager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

func postJSON(ids ...string) []Post {
	var posts []Post
	for _, id := range ids {
		posts = append(posts, Post{
			ID: id,
			File: &Attachment{
				Name: id + ".jpg",
				Path: "/data/xx/" + id + ".jpg",
			},
		})
	}
	return posts
}

// TestPagerModeFallbackToPage: page 1 returns
// some posts, before_id/max_id/before all return nothing new, page=2
// returns new posts, and mode "page" is adopted for the remainder.
func TestPagerModeFallbackToPage(t *testing.T) {
	var gotPage2, gotPage3 bool

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/onlyfans/user/someone/posts", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Has("before_id"), q.Has("max_id"), q.Has("before"):
			w.Write(mustJSON(t, []Post{}))
		case q.Get("page") == "2" && !gotPage2:
			gotPage2 = true
			w.Write(mustJSON(t, postJSON("p2", "p3")))
		case q.Get("page") == "3":
			gotPage3 = true
			w.Write(mustJSON(t, []Post{}))
		default:
			w.Write(mustJSON(t, postJSON("p1")))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	pgr := New(srv.Client(), httpclient.Options{}, "onlyfans", "someone")
	pgr.BaseURL = srv.URL + "/api/v1"

	var pages []Page
	err := pgr.Run(context.Background(), func(pg Page) { pages = append(pages, pg) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pgr.mode != modePage {
		t.Fatalf("expected mode page, got %s", pgr.mode)
	}
	if !gotPage2 {
		t.Fatal("expected a page=2 request")
	}
	if !gotPage3 {
		t.Fatal("expected pagination to continue to page=3 and stop there")
	}
	total := 0
	for _, pg := range pages {
		total += len(pg.Media)
	}
	if total != 3 {
		t.Fatalf("expected 3 distinct media across pages, got %d", total)
	}
}

func TestDuplicateKeyDedup(t *testing.T) {
	a := Attachment{Path: "/data/xx/foo.jpg"}
	b := Attachment{Path: "/data/yy/foo.jpg"}
	if duplicateKey(a) != duplicateKey(b) {
		t.Fatal("expected same basename-without-extension to produce the same key")
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
