// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package downloader implements the single-file resumable transfer:
// CDN mirror fail-over, HTTP Range resume, chunked streaming with a
// stall watchdog, hash verification, and atomic finalization.
package downloader

import (
	"net/http"

	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

const (
	chunkSize       = 8 * 1024
	chunkWatchdog   = 30 // seconds, see download.go
	perNodeRetries  = 3
	totalRetries    = 8
	minValidTmpSize = 1024 // below this a failed tmp is deleted outright
)

// Input describes one transfer request.
type Input struct {
	// URL is the CDN-relative path (e.g. "/data/xx/yy/hash.jpg"); the
	// mirror candidate list is derived from it.
	URL string
	// FinalPath is the destination file; the in-progress write lands
	// at FinalPath + ".tmp" until finalization.
	FinalPath string
	// ExpectedSize is the size reported by the catalog (size_http), 0
	// if unknown.
	ExpectedSize int64
	// CDNHash is the hex digest embedded in the CDN path's basename,
	// used for post-transfer verification.
	CDNHash string
	// Validator is an optional external acceptance hook.
	Validator Validator

	Client *http.Client
	Opts   httpclient.Options

	// Breakers, if non-nil, routes each mirror's request through a
	// per-host circuit breaker so a mirror that is already
	// failing stops absorbing new connection attempts from every
	// in-flight download. Nil disables breaking (e.g. in tests that
	// point candidateURLs at a single httptest server).
	Breakers *httpclient.MirrorBreakers
}

// Validator optionally rejects a finished download before it is
// finalized. The zero Validator always accepts.
type Validator interface {
	Accept(path string) error
}

// Observer receives progress and lifecycle events during a transfer.
// It is an interface rather than a bare callback so a caller can batch
// delivery (e.g. onto an event bus) instead of being called directly
// from the download goroutine. A panicking Observer method is
// recovered and logged — it must never
// abort the transfer itself.
type Observer interface {
	OnProgress(downloadedBytes int64, speed string, totalBytes int64)
	OnRetry(attempt int, mirror string, err error)
}

// NopObserver implements Observer with no-ops.
type NopObserver struct{}

func (NopObserver) OnProgress(int64, string, int64) {}
func (NopObserver) OnRetry(int, string, error)      {}

// nopValidator implements Validator with an always-accept rule.
type nopValidator struct{}

func (nopValidator) Accept(string) error { return nil }

// Result is the transfer's outcome.
type Result struct {
	OK    bool
	Error string
	// HashCheck carries a non-empty diagnostic when verification
	// failed but the transfer otherwise completed.
	HashCheck string
}
