// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package boot

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/downloader"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/profile"
	"github.com/coomerdl/coomerdl/pkg/retry"
	"github.com/coomerdl/coomerdl/pkg/scheduler"
)

const watchdogInterval = 30 * time.Second

// Config configures one profile's Pipeline.
type Config struct {
	Key           profile.Key
	DownloadDir   string
	MaxConcurrent int64
	Strict        bool // strict restore: SHA-256 verify existing final files

	// RetryLimit/RetryDelay override the retry supervisor's
	// EXTERNAL_RETRY_LIMIT/EXTERNAL_RETRY_DELAY_SECONDS.
	// Zero means the package defaults.
	RetryLimit int
	RetryDelay time.Duration
}

// RenderFunc is the one-shot post-restore catalog render. Out of scope
// collaborators (desktop UI) implement it; a nil RenderFunc is a no-op.
type RenderFunc func(*catalog.Catalog)

// Pipeline drives one profile's boot sequence: restore, one-shot
// render, then scheduler + retry supervisor + watchdog.
type Pipeline struct {
	cfg    Config
	store  *catalog.Store
	bus    *eventbus.Bus
	ctrl   *scheduler.Controller
	sup    *retry.Supervisor
	render RenderFunc

	dl downloadFunc

	renderOnce sync.Once

	watchdogStop chan struct{}
	watchdogDone chan struct{}

	mu     sync.Mutex
	opened bool
	closed bool
}

// downloadFunc performs one media's transfer; swappable in tests.
type downloadFunc func(ctx context.Context, m catalog.Media, downloadDir string, obs downloader.Observer) downloader.Result

// New builds a Pipeline for one profile. bus may be nil (no events
// published). render may be nil (no render hook called).
func New(cfg Config, store *catalog.Store, bus *eventbus.Bus, render RenderFunc, dl downloadFunc) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = scheduler.DefaultMaxConcurrent
	}
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		bus:    bus,
		ctrl:   scheduler.New(store, cfg.MaxConcurrent),
		render: render,
		dl:     dl,
	}
}

// Open runs the full boot sequence.
func (p *Pipeline) Open(ctx context.Context) error {
	p.mu.Lock()
	if p.opened {
		p.mu.Unlock()
		return nil
	}
	p.opened = true
	p.mu.Unlock()

	if err := profile.EnsureTree(p.cfg.DownloadDir); err != nil {
		return err
	}

	var scanErr error
	runRestore := func() {
		cat, err := p.store.Load()
		if err != nil {
			scanErr = err
			return
		}
		if cat == nil {
			cat = &catalog.Catalog{ProfileName: p.cfg.Key.Username}
		}
		if err := scanTree(p.cfg.DownloadDir, cat, p.cfg.Strict); err != nil {
			scanErr = err
			return
		}
		if err := p.store.Save(cat); err != nil {
			scanErr = err
		}
	}

	if p.bus != nil {
		p.bus.SuppressDuring(runRestore)
	} else {
		runRestore()
	}
	if scanErr != nil {
		return scanErr
	}

	p.renderOnce.Do(func() {
		if p.render != nil {
			p.render(p.store.Snapshot())
		}
	})

	p.enqueueEligible()

	p.ctrl.Start(ctx)
	p.sup = retry.NewSupervisor(p.store, p.enqueueOne, p.cfg.RetryLimit, p.cfg.RetryDelay)
	p.sup.Start()
	p.startWatchdog(ctx)

	return nil
}

// enqueueEligible enqueues every media whose status is eligible for
// dispatch and is not already active or queued — Controller.Enqueue
// itself guards the latter two, so this only needs to filter on
// status.
func (p *Pipeline) enqueueEligible() {
	cat := p.store.Snapshot()
	for _, m := range cat.Medias {
		if !eligibleForDispatch(m.Status) {
			continue
		}
		p.enqueueOne(m.Name)
	}
}

func eligibleForDispatch(s catalog.Status) bool {
	switch s {
	case catalog.StatusMissing, catalog.StatusPaused, catalog.StatusFailed, catalog.StatusIncomplete:
		return true
	default:
		return false
	}
}

func (p *Pipeline) enqueueOne(name string) {
	if err := p.store.Mutate(name, func(m *catalog.Media) error {
		if m.Status == catalog.StatusWaiting || m.Status == catalog.StatusDownloading {
			return nil
		}
		if err := catalog.Transition(m.Status, catalog.StatusWaiting); err != nil {
			return err
		}
		m.Status = catalog.StatusWaiting
		return nil
	}); err != nil {
		log.Printf("[boot] %s: cannot enqueue, %v", name, err)
		return
	}

	p.ctrl.Enqueue(scheduler.Job{
		MediaName: name,
		Run: func(ctx context.Context) (bool, error) {
			return p.runOne(ctx, name)
		},
	})
}

func (p *Pipeline) runOne(ctx context.Context, name string) (bool, error) {
	cat := p.store.Snapshot()
	idx := cat.ByName(name)
	if idx < 0 {
		return false, nil
	}
	m := cat.Medias[idx]

	obs := &pipelineObserver{store: p.store, name: name}
	res := p.dl(ctx, m, p.cfg.DownloadDir, obs)

	// A cooperative stop is not a failure: the tmp file stays for a
	// later resume and the entry parks at Paused.
	if !res.OK && ctx.Err() != nil {
		return false, p.store.Mutate(name, func(m *catalog.Media) error {
			if err := catalog.Transition(m.Status, catalog.StatusPaused); err != nil {
				return nil
			}
			m.Status = catalog.StatusPaused
			return nil
		})
	}

	return p.finish(name, res)
}

func (p *Pipeline) finish(name string, res downloader.Result) (bool, error) {
	if res.OK {
		return true, p.store.Mutate(name, func(m *catalog.Media) error {
			if err := catalog.Transition(m.Status, catalog.StatusCompleted); err != nil {
				return err
			}
			m.Status = catalog.StatusCompleted
			m.Percent = 100
			m.Error = ""
			m.HashCheck = res.HashCheck
			return nil
		})
	}

	return false, p.store.Mutate(name, func(m *catalog.Media) error {
		if err := catalog.Transition(m.Status, catalog.StatusFailed); err != nil {
			// A cooperative stop leaves the entry mid-transfer; restore
			// on the next boot will resolve it to Paused or Missing.
			return nil
		}
		m.Status = catalog.StatusFailed
		m.Error = res.Error
		m.HashCheck = res.HashCheck
		return nil
	})
}

// startWatchdog runs the boot watchdog: if the queue is non-empty but
// no worker has been active for >= 30s, kick the scheduler.
func (p *Pipeline) startWatchdog(ctx context.Context) {
	p.watchdogStop = make(chan struct{})
	p.watchdogDone = make(chan struct{})
	idleSince := time.Now()

	go func() {
		defer close(p.watchdogDone)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.watchdogStop:
				return
			case <-ticker.C:
				if p.ctrl.ActiveCount() > 0 {
					idleSince = time.Now()
					continue
				}
				if p.ctrl.QueueDepth() > 0 && time.Since(idleSince) >= watchdogInterval {
					p.ctrl.Kick()
					idleSince = time.Now()
				}
			}
		}
	}()
}

// Shutdown is idempotent: normalize active-status entries
// to Paused, save with fsync, stop the scheduler without cancelling
// in-flight transfers, and stop the watchdog/supervisor.
func (p *Pipeline) Shutdown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.watchdogStop != nil {
		close(p.watchdogStop)
		<-p.watchdogDone
	}
	if p.sup != nil {
		p.sup.Stop()
	}
	p.ctrl.Stop()

	cat, err := p.store.Load()
	if err != nil {
		return err
	}
	if cat == nil {
		return nil
	}
	for i := range cat.Medias {
		switch cat.Medias[i].Status {
		case catalog.StatusDownloading, catalog.StatusWaiting, catalog.StatusRetrying:
			cat.Medias[i].Status = catalog.StatusPaused
		}
	}
	if err := p.store.Save(cat); err != nil {
		return err
	}

	if p.bus != nil {
		key := p.cfg.Key.String()
		ev := eventbus.Event{Topic: eventbus.TopicProfileUpdate, Reason: eventbus.ReasonWindowClose, ProfileKey: key}
		p.bus.Publish(ev)
		ev.Topic = eventbus.UpdateTopic(key)
		p.bus.Publish(ev)
	}
	return nil
}

// Controller exposes the underlying scheduler.Controller, e.g. for a
// CLI command that wants queue-depth/active-count telemetry.
func (p *Pipeline) Controller() *scheduler.Controller { return p.ctrl }

// Store exposes the underlying catalog.Store, e.g. for a status API
// handler or metrics poller that needs read-only catalog access
// without holding its own reference.
func (p *Pipeline) Store() *catalog.Store { return p.store }
