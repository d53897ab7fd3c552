// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/iohelpers"
	"github.com/coomerdl/coomerdl/pkg/retry"
)

// Download runs one resumable transfer to completion or failure. It
// never returns an error directly: all outcomes are reported through
// the returned Result so callers (the scheduler's worker) can persist
// a terminal catalog status uniformly.
func Download(ctx context.Context, in Input, obs Observer) Result {
	if obs == nil {
		obs = NopObserver{}
	}
	if in.Validator == nil {
		in.Validator = nopValidator{}
	}

	candidates := candidateURLs(in.URL)
	tmpPath := in.FinalPath + ".tmp"

	b := retry.NewBackoff(2*time.Second, 2, 30*time.Second)
	totalAttempts := 0

	var lastErr error
	for _, mirrorURL := range candidates {
		for nodeAttempt := 0; nodeAttempt < perNodeRetries; nodeAttempt++ {
			if totalAttempts >= totalRetries {
				return failResult(tmpPath, lastErr)
			}
			totalAttempts++

			ok, status, err := attempt(ctx, in, mirrorURL, tmpPath, obs)
			if ok {
				// Verification failure is an attempt failure, not a
				// terminal one: the next attempt resumes at full size,
				// gets a 416, discards the tmp, and restarts from zero.
				if err = finalize(in, tmpPath); err == nil {
					return Result{OK: true}
				}
			}
			lastErr = err

			if status == http.StatusForbidden || status == http.StatusNotFound {
				break // move to the next mirror candidate immediately
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				break // breaker is open for this mirror, don't burn retries on it
			}

			if ctx.Err() != nil {
				return failResult(tmpPath, ctx.Err())
			}

			safeOnRetry(obs, totalAttempts, mirrorURL, err)
			if !retry.Sleep(ctx, b.Next()) {
				return failResult(tmpPath, ctx.Err())
			}
		}
	}
	if lastErr != nil && errors.Is(lastErr, errChecksum) {
		return failResult(tmpPath, lastErr)
	}
	return failResult(tmpPath, fmt.Errorf("Échec complet: %w", lastErr))
}

// attempt runs a single candidate-mirror transfer attempt, handling
// Range resume and its 416 / "200 despite Range" edge cases. It
// returns ok=true only once the full body has been streamed to
// tmpPath.
func attempt(ctx context.Context, in Input, mirrorURL, tmpPath string, obs Observer) (ok bool, status int, err error) {
	resumeFrom := int64(0)
	if fi, statErr := os.Stat(tmpPath); statErr == nil && fi.Size() > 0 {
		resumeFrom = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirrorURL, nil)
	if err != nil {
		return false, 0, err
	}
	httpclient.Prepare(req, in.Opts)
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	do := func() (*http.Response, error) { return in.Client.Do(req) }
	if in.Breakers != nil {
		if host := mirrorHost(mirrorURL); host != "" {
			breaker := in.Breakers.For(host)
			orig := do
			// 5xx counts as a breaker failure (the mirror is unhealthy);
			// 403/404 does not (the mirror is up, this file isn't there).
			do = func() (*http.Response, error) {
				return breaker.Execute(func() (*http.Response, error) {
					resp, err := orig()
					if err != nil {
						return nil, err
					}
					if resp.StatusCode >= 500 {
						io.Copy(io.Discard, resp.Body)
						resp.Body.Close()
						return nil, fmt.Errorf("mirror returned %s", resp.Status)
					}
					return resp, nil
				})
			}
		}
	}

	resp, err := do()
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if resumeFrom > 0 {
			// Server ignored our Range request: it is replaying the
			// whole body, so any partial tmp data would double up.
			os.Remove(tmpPath)
			resumeFrom = 0
		}
	case http.StatusPartialContent:
		// expected resume path, nothing to adjust
	case http.StatusRequestedRangeNotSatisfiable:
		return handleRangeNotSatisfiable(tmpPath, in)
	case http.StatusForbidden, http.StatusNotFound:
		return false, resp.StatusCode, fmt.Errorf("mirror returned %s", resp.Status)
	default:
		return false, resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return false, resp.StatusCode, err
	}
	defer out.Close()

	total := in.ExpectedSize
	if resp.ContentLength > 0 {
		total = resumeFrom + resp.ContentLength
	}

	err = streamWithWatchdog(ctx, resp.Body, out, resumeFrom, total, obs)
	if err != nil {
		return false, resp.StatusCode, err
	}
	return true, resp.StatusCode, nil
}

// handleRangeNotSatisfiable implements the 416 branch:
// "treat as already complete: verify the tmp file; if valid, rename
// and return success; otherwise delete tmp and retry from zero."
func handleRangeNotSatisfiable(tmpPath string, in Input) (bool, int, error) {
	verr := verifyTransfer(tmpPath, in)
	if verr == nil {
		return true, http.StatusRequestedRangeNotSatisfiable, nil
	}
	os.Remove(tmpPath)
	if errors.Is(verr, errChecksum) {
		return false, http.StatusRequestedRangeNotSatisfiable, verr
	}
	return false, http.StatusRequestedRangeNotSatisfiable, fmt.Errorf("416 and tmp file failed verification: %w", verr)
}

// streamWithWatchdog copies src into dst in chunkSize blocks, emitting
// throttled progress and aborting if no chunk arrives within
// chunkWatchdog seconds.
func streamWithWatchdog(ctx context.Context, src io.Reader, dst io.Writer, already, total int64, obs Observer) error {
	buf := make([]byte, chunkSize)
	downloaded := already
	lastEmit := time.Time{}
	lastBytes := downloaded
	lastSpeedCheck := time.Now()

	type readResult struct {
		n   int
		err error
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resultCh := make(chan readResult, 1)
		go func() {
			n, err := src.Read(buf)
			resultCh <- readResult{n, err}
		}()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunkWatchdog * time.Second):
			return fmt.Errorf("downloader: no data for %ds, aborting", chunkWatchdog)
		case res := <-resultCh:
			if res.n > 0 {
				if _, werr := dst.Write(buf[:res.n]); werr != nil {
					return werr
				}
				downloaded += int64(res.n)

				now := time.Now()
				if now.Sub(lastEmit) >= 100*time.Millisecond {
					elapsed := now.Sub(lastSpeedCheck).Seconds()
					speed := "0 B/s"
					if elapsed > 0 {
						speed = formatSpeed(float64(downloaded-lastBytes) / elapsed)
					}
					safeOnProgress(obs, downloaded, speed, total)
					lastEmit = now
					lastBytes = downloaded
					lastSpeedCheck = now
				}
			}
			if res.err == io.EOF {
				safeOnProgress(obs, downloaded, "0 B/s", downloaded)
				return nil
			}
			if res.err != nil {
				return res.err
			}
		}
	}
}

// formatSpeed renders bytes/sec as a short human string, e.g. "3.4 MB/s".
func formatSpeed(bps float64) string {
	switch {
	case bps >= 1<<20:
		return fmt.Sprintf("%.1f MB/s", bps/(1<<20))
	case bps >= 1<<10:
		return fmt.Sprintf("%.1f KB/s", bps/(1<<10))
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}

// finalize verifies and atomically commits a completed tmp file. A
// non-nil return means the attempt failed and the caller's retry loop
// decides what happens next; the tmp file is left in place (failResult
// prunes undersized ones at the very end).
func finalize(in Input, tmpPath string) error {
	if err := verifyTransfer(tmpPath, in); err != nil {
		return err
	}
	return iohelpers.AtomicReplace(tmpPath, in.FinalPath)
}

// verifyTransfer checks size and, if a CDN hash is available, SHA-256:
// size must be more than 95% of ExpectedSize when known, then the external
// Validator (no-op by default), then the hash.
func verifyTransfer(tmpPath string, in Input) error {
	fi, err := os.Stat(tmpPath)
	if err != nil {
		return err
	}
	if in.ExpectedSize > 0 {
		// Strictly more than 95% is required: a file of exactly 95% of
		// the declared size is still incomplete.
		threshold := int64(float64(in.ExpectedSize) * 0.95)
		if fi.Size() <= threshold {
			return fmt.Errorf("size %d not above 95%% of expected %d", fi.Size(), in.ExpectedSize)
		}
	}
	if err := in.Validator.Accept(tmpPath); err != nil {
		return fmt.Errorf("validator rejected file: %w", err)
	}
	if in.CDNHash != "" {
		sum, err := iohelpers.SHA256Stream(tmpPath)
		if err != nil {
			return err
		}
		if !strings.EqualFold(sum, in.CDNHash) {
			return fmt.Errorf("%w: expected %s got %s", errChecksum, in.CDNHash, sum)
		}
	}
	return nil
}

// mirrorHost extracts the host component of a candidate mirror URL for
// circuit-breaker keying; an unparsable URL disables breaking for it.
func mirrorHost(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

// errChecksum is the terminal hash-mismatch failure; its French wording
// is the user-visible error string for this condition.
var errChecksum = errors.New("Checksum invalide")

func failResult(tmpPath string, err error) Result {
	if err == nil {
		err = fmt.Errorf("downloader: unknown failure")
	}
	if fi, statErr := os.Stat(tmpPath); statErr == nil && fi.Size() < minValidTmpSize {
		os.Remove(tmpPath)
	}
	res := Result{OK: false, Error: err.Error()}
	if errors.Is(err, errChecksum) {
		res.HashCheck = err.Error()
	}
	return res
}

// safeOnProgress and safeOnRetry recover and log a panicking Observer
// so a faulty implementation can never abort the transfer.
func safeOnProgress(obs Observer, downloaded int64, speed string, total int64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[downloader] observer panicked: %v", r)
		}
	}()
	obs.OnProgress(downloaded, speed, total)
}

func safeOnRetry(obs Observer, attempt int, mirror string, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[downloader] observer panicked: %v", r)
		}
	}()
	obs.OnRetry(attempt, mirror, err)
}
