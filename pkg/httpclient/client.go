// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package httpclient builds the process-wide HTTP client used by the
// API pager and the downloader: a shared connection pool, a fixed
// redirect policy, default headers, and a retry wrapper for transient
// failures.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/coomerdl/coomerdl/pkg/retry"
)

const (
	connectTimeout = 10 * time.Second
	readTimeout    = 30 * time.Second
	userAgent      = "coomerdl/1 (+https://github.com/coomerdl/coomerdl)"
)

// Options configures the shared client.
type Options struct {
	// Referer/Origin are set to the profile page being scraped, as the
	// site's API empirically requires them.
	Referer string
	Origin  string
	// Jar carries forward a session + DDG cookie jar acquired out of
	// band; cookie acquisition itself happens elsewhere.
	Jar http.CookieJar
}

// New builds the process-wide *http.Client: connection pool
// sized >=32, no automatic redirect following (a 3xx from the API is an
// anti-bot interstitial and must surface as an error to the caller),
// and the fixed connect timeout on the dialer. The 30s read deadline
// is applied per request by DoWithRetry rather than here, so the
// downloader can run long transfers under its own per-chunk watchdog.
func New(opts Options) *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		MaxIdleConns:        64,
		MaxIdleConnsPerHost: 32,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Transport: tr,
		Jar:       opts.Jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// ErrAntiBot is returned when the API answers with an observed 3xx
// redirect, which this site uses as an anti-bot interstitial rather
// than a real redirect.
var ErrAntiBot = errors.New("httpclient: unexpected redirect (anti-bot interstitial)")

// Prepare sets the default headers required by the content API on req.
func Prepare(req *http.Request, opts Options) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/css")
	if opts.Referer != "" {
		req.Header.Set("Referer", opts.Referer)
	}
	if opts.Origin != "" {
		req.Header.Set("Origin", opts.Origin)
	}
}

// DoWithRetry executes req (rebuilt per attempt via newReq, since an
// *http.Request's body can only be read once) up to 4 times total,
// retrying on transient HTTP status codes and socket errors with a
// 2s-base, 1.6x backoff capped at 30s, honoring Retry-After when
// present. Each attempt carries the 30s read deadline on its request
// context; on success the deadline keeps covering the body read and is
// released when the caller closes the body.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 4
	b := retry.NewBackoff(2*time.Second, 1.6, 30*time.Second)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, readTimeout)
		req, err := newReq(attemptCtx)
		if err != nil {
			cancel()
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			cancel()
			lastErr = err
		} else if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			resp.Body.Close()
			cancel()
			return nil, ErrAntiBot
		} else if isTransient(resp.StatusCode) {
			delay, ok := retry.RetryAfterDelay(resp.Header.Get("Retry-After"), 30*time.Second)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			cancel()
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			if attempt == maxAttempts {
				break
			}
			if !ok {
				delay = b.Next()
			}
			log.Printf("[http] retrying after status %d (attempt %d/%d, wait %s)", resp.StatusCode, attempt, maxAttempts, delay)
			if !retry.Sleep(ctx, delay) {
				return nil, ctx.Err()
			}
			continue
		} else {
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		if attempt == maxAttempts {
			break
		}
		log.Printf("[http] retrying after error %v (attempt %d/%d)", lastErr, attempt, maxAttempts)
		if !retry.Sleep(ctx, b.Next()) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// cancelOnClose ties an attempt's read-deadline context to the response
// body: closing the body releases the deadline timer.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func isTransient(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
