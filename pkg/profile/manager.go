// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"net/http"

	"github.com/coomerdl/coomerdl/pkg/apipager"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

// Manager implements the profile lifecycle operations:
// List, Refresh, Move, ImportExisting, Delete. A zero Manager is not
// usable; use New.
type Manager struct {
	Client  *http.Client
	Opts    httpclient.Options
	DataDir string
	Bus     *eventbus.Bus

	// baseURL overrides apipager's default API host; empty means
	// production. Tests point it at an httptest server via
	// overrideBaseURL instead of exporting this directly, keeping the
	// production call sites (cmd/coomerdl) from ever needing it.
	baseURL string
}

// New builds a Manager. bus may be nil (events are then not published).
func New(client *http.Client, opts httpclient.Options, dataDir string, bus *eventbus.Bus) *Manager {
	return &Manager{Client: client, Opts: opts, DataDir: dataDir, Bus: bus}
}

// overrideBaseURL points every subsequent apipager.Pager this Manager
// constructs at a test server instead of the production API host.
func (m *Manager) overrideBaseURL(u string) { m.baseURL = u }

func (m *Manager) newPager(key Key) *apipager.Pager {
	p := apipager.New(m.Client, m.Opts, key.Service, key.Username)
	if m.baseURL != "" {
		p.BaseURL = m.baseURL
	}
	return p
}

// List enumerates every known profile.
func (m *Manager) List() ([]Key, error) {
	return ListKeys(m.DataDir)
}

// Refresh pages the API for key's profile and inserts any media not
// already present in the on-disk catalog, then saves it. It returns
// the number of newly inserted media.
//
// The site's paginated API has no server-side "since" filter, so
// Refresh always walks the full page sequence the same way initial
// ingestion does. Already-known media are skipped, never overwritten,
// which leaves their Status/progress fields untouched and makes
// Refresh naturally idempotent: a second call against an unchanged
// remote yields zero new media.
func (m *Manager) Refresh(ctx context.Context, key Key) (int, error) {
	store := catalog.NewStore(CatalogPath(m.DataDir, key))
	cat, err := store.Load()
	if err != nil {
		return 0, err
	}
	if cat == nil {
		cat = &catalog.Catalog{ProfileName: key.Username}
	}
	known := make(map[string]bool, len(cat.Medias))
	for _, med := range cat.Medias {
		known[med.Name] = true
	}

	pager := m.newPager(key)
	inserted := 0
	pageErr := pager.Run(ctx, func(page apipager.Page) {
		for _, med := range page.Media {
			if known[med.Name] {
				continue
			}
			known[med.Name] = true
			if err := store.Upsert(med); err != nil {
				continue
			}
			inserted++
		}
	})

	reason := eventbus.ReasonManualRefresh
	if len(cat.Medias) == 0 && inserted > 0 {
		reason = eventbus.ReasonProfileAdded
	}
	m.publish(key, reason, inserted == 0)

	return inserted, pageErr
}

func (m *Manager) publish(key Key, reason string, noSort bool) {
	if m.Bus == nil {
		return
	}
	ev := eventbus.Event{
		Topic:      eventbus.TopicProfileUpdate,
		Reason:     reason,
		NoSort:     noSort,
		ProfileKey: key.String(),
	}
	m.Bus.Publish(ev)
	ev.Topic = eventbus.UpdateTopic(key.String())
	m.Bus.Publish(ev)
}

// Delete removes a profile's catalog JSON and its entire download
// tree.
func (m *Manager) Delete(key Key, baseDir string) error {
	if err := removeIfExists(CatalogPath(m.DataDir, key)); err != nil {
		return err
	}
	if err := removeAllIfExists(DownloadDir(baseDir, key)); err != nil {
		return err
	}
	m.publish(key, eventbus.ReasonDirChanged, true)
	return nil
}
