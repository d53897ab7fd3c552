// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"log"
	"sync"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

const (
	// DefaultExternalRetryLimit is EXTERNAL_RETRY_LIMIT absent config.
	DefaultExternalRetryLimit = 10
	// DefaultExternalRetryDelay is EXTERNAL_RETRY_DELAY_SECONDS absent
	// config. 60s sits well above the supervisor's own 10s scan cadence
	// so an item is not re-enqueued on every single pass.
	DefaultExternalRetryDelay = 60 * time.Second

	scanInterval = 10 * time.Second
	maxPerPass   = 5
)

type retryMeta struct {
	attempts int
	nextTS   time.Time
}

// Supervisor periodically re-enqueues Failed media that haven't
// exhausted their external retry budget. It holds no
// reference to a scheduler.Controller directly — Enqueue is a plain
// callback so this package stays a dependency-light import for
// apipager, downloader, httpclient and boot.
type Supervisor struct {
	store   *catalog.Store
	Enqueue func(mediaName string)
	Limit   int
	Delay   time.Duration

	mu   sync.Mutex
	meta map[string]*retryMeta

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewSupervisor builds a Supervisor over store, re-enqueueing through
// enqueue. limit/delay fall back to the package defaults when <= 0.
func NewSupervisor(store *catalog.Store, enqueue func(mediaName string), limit int, delay time.Duration) *Supervisor {
	if limit <= 0 {
		limit = DefaultExternalRetryLimit
	}
	if delay <= 0 {
		delay = DefaultExternalRetryDelay
	}
	return &Supervisor{
		store:   store,
		Enqueue: enqueue,
		Limit:   limit,
		Delay:   delay,
		meta:    make(map[string]*retryMeta),
	}
}

// Start launches the 10s scan loop in the background. Safe to call
// once.
func (s *Supervisor) Start() {
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.mu.Unlock()

	go s.run(stopCh, doneCh)
}

// Stop ends the scan loop and waits for the current pass to finish.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	stopCh := s.stopCh
	doneCh := s.doneCh
	s.stopCh = nil
	s.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
}

func (s *Supervisor) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(scanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.scanOnce(time.Now())
		}
	}
}

// scanOnce runs a single pass: at most maxPerPass items are
// re-enqueued, in catalog order, to avoid a thundering-herd
// re-dispatch.
func (s *Supervisor) scanOnce(now time.Time) {
	snap := s.store.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	seenFailed := make(map[string]bool, len(snap.Medias))
	pushed := 0
	for i := range snap.Medias {
		m := &snap.Medias[i]
		if m.Status != catalog.StatusFailed {
			continue
		}
		seenFailed[m.Name] = true

		meta, ok := s.meta[m.Name]
		if !ok {
			meta = &retryMeta{}
			s.meta[m.Name] = meta
		}
		if meta.attempts >= s.Limit {
			continue
		}
		if now.Before(meta.nextTS) {
			continue
		}
		if pushed >= maxPerPass {
			continue
		}

		if err := s.store.Mutate(m.Name, func(mm *catalog.Media) error {
			if err := catalog.Transition(mm.Status, catalog.StatusWaiting); err != nil {
				return err
			}
			mm.Status = catalog.StatusWaiting
			mm.RetryCount++
			return nil
		}); err != nil {
			log.Printf("[retrysupervisor] %s: %v", m.Name, err)
			continue
		}

		meta.attempts++
		meta.nextTS = now.Add(s.Delay)
		pushed++
		s.Enqueue(m.Name)
	}

	// Reset bookkeeping for anything that left Failed since the last
	// pass.
	for name := range s.meta {
		if !seenFailed[name] {
			delete(s.meta, name)
		}
	}
}
