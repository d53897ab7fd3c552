// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/coomerdl/coomerdl/pkg/boot"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

// pipelineRegistry tracks which profiles currently have an open
// pkg/boot.Pipeline. The unit of concurrent work here is a whole
// profile's boot lifecycle, not a single download.
type pipelineRegistry struct {
	mu        sync.Mutex
	cfg       Config
	bus       *eventbus.Bus
	client    *http.Client
	pipelines map[profile.Key]*boot.Pipeline

	// baseCtx outlives any single HTTP request: a pipeline opened by a
	// handler must keep downloading long after that request's own
	// context is cancelled. ListenAndServe rebinds it to the server's
	// lifetime context.
	baseCtx context.Context
}

func newRegistry(cfg Config, bus *eventbus.Bus, client *http.Client) *pipelineRegistry {
	return &pipelineRegistry{
		cfg:       cfg,
		bus:       bus,
		client:    client,
		pipelines: make(map[profile.Key]*boot.Pipeline),
		baseCtx:   context.Background(),
	}
}

// Open starts a Pipeline for key if one isn't already running. Opening
// an already-open profile is a no-op success.
func (r *pipelineRegistry) Open(key profile.Key) error {
	r.mu.Lock()
	if _, ok := r.pipelines[key]; ok {
		r.mu.Unlock()
		return nil
	}

	downloadDir := profile.DownloadDir(r.cfg.DownloadDir, key)
	if err := profile.EnsureTree(downloadDir); err != nil {
		r.mu.Unlock()
		return err
	}

	store := catalog.NewStore(profile.CatalogPath(r.cfg.DataDir, key))
	dl := boot.NewDownloadFunc(r.client, r.cfg.ClientOpts)
	pipe := boot.New(boot.Config{
		Key:           key,
		DownloadDir:   downloadDir,
		MaxConcurrent: r.cfg.MaxConcurrent,
		Strict:        r.cfg.Strict,
	}, store, r.bus, nil, dl)

	r.pipelines[key] = pipe
	ctx := r.baseCtx
	r.mu.Unlock()

	return pipe.Open(ctx)
}

// Close shuts down key's Pipeline if one is open. Closing an
// already-closed or never-opened profile is a no-op success.
func (r *pipelineRegistry) Close(key profile.Key) error {
	r.mu.Lock()
	pipe, ok := r.pipelines[key]
	if ok {
		delete(r.pipelines, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return pipe.Shutdown()
}

// Get returns key's open Pipeline, if any.
func (r *pipelineRegistry) Get(key profile.Key) (*boot.Pipeline, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipelines[key]
	return p, ok
}

// Keys returns every profile with an open Pipeline.
func (r *pipelineRegistry) Keys() []profile.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]profile.Key, 0, len(r.pipelines))
	for k := range r.pipelines {
		out = append(out, k)
	}
	return out
}

// CloseAll shuts down every open Pipeline, e.g. on server stop.
func (r *pipelineRegistry) CloseAll() {
	r.mu.Lock()
	keys := make([]profile.Key, 0, len(r.pipelines))
	for k := range r.pipelines {
		keys = append(keys, k)
	}
	r.mu.Unlock()

	for _, k := range keys {
		_ = r.Close(k)
	}
}

// newHTTPClient builds the process-wide client a registry's pipelines
// dial out with, honoring cfg.ClientOpts' cookie jar.
func newHTTPClient(opts httpclient.Options) *http.Client {
	return httpclient.New(opts)
}
