// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

type recordingObserver struct {
	progressCalls int
	retries       []string
}

func (r *recordingObserver) OnProgress(downloaded int64, speed string, total int64) {
	r.progressCalls++
}
func (r *recordingObserver) OnRetry(attempt int, mirror string, err error) {
	r.retries = append(r.retries, mirror)
}

// withFixedMirrors points candidateURLs at an explicit list for the
// duration of a test instead of the real coomer.st hosts.
func withFixedMirrors(t *testing.T, urls []string) {
	t.Helper()
	orig := candidateURLs
	candidateURLs = func(string) []string { return urls }
	t.Cleanup(func() { candidateURLs = orig })
}

func TestDownloadFreshTransfer(t *testing.T) {
	content := strings.Repeat("x", 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(content))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "a.bin")

	sum := sha256.Sum256([]byte(content))
	in := Input{
		FinalPath:    dst,
		ExpectedSize: int64(len(content)),
		CDNHash:      hex.EncodeToString(sum[:]),
		Client:       srv.Client(),
		Opts:         httpclient.Options{},
	}
	withFixedMirrors(t, []string{srv.URL})

	obs := &recordingObserver{}
	res := Download(context.Background(), in, obs)
	if !res.OK {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != content {
		t.Fatal("downloaded content mismatch")
	}
	if obs.progressCalls == 0 {
		t.Fatal("expected at least one progress callback")
	}
}

func TestDownloadResumesFromExistingTmp(t *testing.T) {
	full := strings.Repeat("y", 8192)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Write([]byte(full))
			return
		}
		start, err := parseRangeStart(rangeHeader)
		if err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(full[start:]))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "a.bin")
	tmp := dst + ".tmp"
	half := len(full) / 2
	if err := os.WriteFile(tmp, []byte(full[:half]), 0o644); err != nil {
		t.Fatal(err)
	}

	sum := sha256.Sum256([]byte(full))
	in := Input{
		FinalPath:    dst,
		ExpectedSize: int64(len(full)),
		CDNHash:      hex.EncodeToString(sum[:]),
		Client:       srv.Client(),
	}
	withFixedMirrors(t, []string{srv.URL})

	res := Download(context.Background(), in, &recordingObserver{})
	if !res.OK {
		t.Fatalf("expected success, got error: %s", res.Error)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != full {
		t.Fatal("resumed content mismatch")
	}
}

func TestDownloadFailsOverOnForbidden(t *testing.T) {
	content := "hello"
	var hitSecond bool
	mux := http.NewServeMux()
	mux.HandleFunc("/bad", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		hitSecond = true
		w.Write([]byte(content))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "a.bin")

	sum := sha256.Sum256([]byte(content))
	in := Input{
		FinalPath:    dst,
		ExpectedSize: int64(len(content)),
		CDNHash:      hex.EncodeToString(sum[:]),
		Client:       srv.Client(),
	}
	withFixedMirrors(t, []string{srv.URL + "/bad", srv.URL + "/good"})

	res := Download(context.Background(), in, &recordingObserver{})
	if !res.OK {
		t.Fatalf("expected eventual success via fail-over, got: %s", res.Error)
	}
	if !hitSecond {
		t.Fatal("expected the second mirror to be hit")
	}
}

func TestAttemptTripsCircuitBreakerOnRepeatedFailure(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dst := filepath.Join(dir, "a.bin")
	breakers := httpclient.NewMirrorBreakers()
	in := Input{FinalPath: dst, Client: srv.Client(), Breakers: breakers}

	// Drive 5 consecutive failures directly through attempt() (bypassing
	// Download's retry backoff, which would make this test slow) to
	// cross the breaker's ReadyToTrip threshold.
	for i := 0; i < 5; i++ {
		if ok, _, _ := attempt(context.Background(), in, srv.URL, dst+".tmp", &recordingObserver{}); ok {
			t.Fatal("server always fails, attempt should never succeed")
		}
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Fatalf("expected 5 real requests so far, got %d", got)
	}

	if _, _, err := attempt(context.Background(), in, srv.URL, dst+".tmp", &recordingObserver{}); err == nil {
		t.Fatal("expected the open breaker to reject this attempt")
	}
	if got := atomic.LoadInt32(&hits); got != 5 {
		t.Fatalf("expected the open breaker to short-circuit without a new request, got %d hits", got)
	}
}

func TestVerifyTransferRejectsSizeBelowThreshold(t *testing.T) {
	dir := t.TempDir()
	tmp := filepath.Join(dir, "a.bin.tmp")
	if err := os.WriteFile(tmp, []byte("short"), 0o644); err != nil {
		t.Fatal(err)
	}
	in := Input{ExpectedSize: 1000, Validator: nopValidator{}}
	if err := verifyTransfer(tmp, in); err == nil {
		t.Fatal("expected size-threshold rejection")
	}
}

func TestVerifyTransferSizeBoundaryAt95Percent(t *testing.T) {
	dir := t.TempDir()
	in := Input{ExpectedSize: 1000, Validator: nopValidator{}}

	// Exactly 95% of the declared size is still incomplete.
	at := filepath.Join(dir, "at.tmp")
	if err := os.WriteFile(at, bytes.Repeat([]byte("x"), 950), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyTransfer(at, in); err == nil {
		t.Fatal("expected a file of exactly 95% to be rejected")
	}

	// One byte more and verification proceeds.
	above := filepath.Join(dir, "above.tmp")
	if err := os.WriteFile(above, bytes.Repeat([]byte("x"), 951), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := verifyTransfer(above, in); err != nil {
		t.Fatalf("expected 95%% + 1 byte to pass the size gate, got %v", err)
	}
}

func TestFormatSpeed(t *testing.T) {
	if got := formatSpeed(500); got != "500 B/s" {
		t.Fatalf("unexpected: %s", got)
	}
	if got := formatSpeed(2 << 20); got == "" {
		t.Fatal("expected non-empty speed string")
	}
}

// parseRangeStart parses "bytes=<start>-" into start. Test-only; real
// range parsing happens server-side on the actual CDN.
func parseRangeStart(header string) (int, error) {
	rest := strings.TrimSuffix(strings.TrimPrefix(header, "bytes="), "-")
	return strconv.Atoi(rest)
}
