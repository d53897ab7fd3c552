// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package httpclient

import (
	"net/http"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// MirrorBreaker wraps CDN mirror requests with a per-mirror circuit
// breaker, so a mirror that is currently down stops absorbing
// connection attempts from every in-flight download instead of failing
// each one individually.
type MirrorBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// NewMirrorBreaker builds a breaker for a single mirror host. It trips
// after 5 consecutive failures, half-opens after 30s, and allows a
// single trial request in the half-open state.
func NewMirrorBreaker(name string) *MirrorBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &MirrorBreaker{cb: gobreaker.NewCircuitBreaker[*http.Response](settings)}
}

// Execute runs fn through the breaker. ErrOpenState / ErrTooManyRequests
// propagate to the caller, who should advance to the next mirror
// candidate rather than retry this one.
func (b *MirrorBreaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	return b.cb.Execute(fn)
}

// State reports the breaker's current state, for status/metrics surfacing.
func (b *MirrorBreaker) State() string {
	return b.cb.State().String()
}

// MirrorBreakers keeps one MirrorBreaker per CDN host, created lazily
// since the candidate list is fixed but a process may only
// ever touch a subset of mirrors. Safe for concurrent use by the worker
// pool.
type MirrorBreakers struct {
	mu     sync.Mutex
	byHost map[string]*MirrorBreaker
}

// NewMirrorBreakers returns an empty registry.
func NewMirrorBreakers() *MirrorBreakers {
	return &MirrorBreakers{byHost: make(map[string]*MirrorBreaker)}
}

// For returns the breaker for host, creating one on first use.
func (m *MirrorBreakers) For(host string) *MirrorBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.byHost[host]; ok {
		return b
	}
	b := NewMirrorBreaker(host)
	m.byHost[host] = b
	return b
}
