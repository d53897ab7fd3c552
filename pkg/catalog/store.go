// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

// Store is the single writer of one profile's catalog JSON file. Every
// mutation funnels through a Store method while its mutex is held, so
// the on-disk file is never touched by two writers at once.
type Store struct {
	path string

	mu  sync.Mutex
	cat *Catalog
}

// NewStore opens (without loading) the catalog at path. Call Load to
// populate it from disk.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing JSON file path.
func (s *Store) Path() string { return s.path }

// Load reads the catalog from disk. A missing file is not an error: it
// returns (nil, nil) so callers can distinguish "no catalog yet" from
// "catalog load failed". Corrupt JSON is tolerated: the
// store logs a warning and falls back to an empty catalog rather than
// propagating the decode error.
func (s *Store) Load() (*Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		log.Printf("[catalog] %v", wrapCorrupt(s.path, err))
		c = Catalog{}
	}
	s.cat = &c
	return &c, nil
}

// Save atomically persists cat: write to a sibling ".tmp" file, fsync,
// then rename over the target. The JSON file on disk is always
// parseable because a reader only ever observes the pre- or
// post-rename file, never a partial write.
func (s *Store) Save(cat *Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(cat)
}

func (s *Store) saveLocked(cat *Catalog) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := iohelpers.AtomicReplace(tmp, s.path); err != nil {
		return err
	}
	s.cat = cat
	return nil
}

// Upsert inserts or updates a media entry by Name, then persists the
// catalog. profile.Manager.Refresh uses it to insert newly paged media;
// status updates from workers go through Mutate.
func (s *Store) Upsert(m Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cat == nil {
		s.cat = &Catalog{}
	}
	if i := s.cat.ByName(m.Name); i >= 0 {
		s.cat.Medias[i] = m
	} else {
		s.cat.Medias = append(s.cat.Medias, m)
	}
	s.cat.LastUpdate = time.Now().UTC()
	return s.saveLocked(s.cat)
}

// Mutate runs fn against the live catalog under the store's lock and
// persists the result. Used for multi-field updates (status +
// progress + error together) that would otherwise race across two
// separate Upsert calls.
func (s *Store) Mutate(name string, fn func(m *Media) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cat == nil {
		s.cat = &Catalog{}
	}
	i := s.cat.ByName(name)
	if i < 0 {
		return ErrNotFound
	}
	if err := fn(&s.cat.Medias[i]); err != nil {
		return err
	}
	return s.saveLocked(s.cat)
}

// Snapshot returns a deep-enough copy of the current catalog for
// read-only observers; event bus subscribers never hold the mutex or a
// live reference.
func (s *Store) Snapshot() *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cat == nil {
		return &Catalog{}
	}
	cp := *s.cat
	cp.Medias = append([]Media(nil), s.cat.Medias...)
	return &cp
}

// SetIgnored marks a media entry Ignored (sticky: restore never
// overrides it) or, on un-ignore, transitions it to Missing/Completed
// depending on whether the final file is present on disk.
func (s *Store) SetIgnored(name string, ignored bool, fileExists bool) error {
	return s.Mutate(name, func(m *Media) error {
		if ignored {
			if err := Transition(m.Status, StatusIgnored); err != nil {
				return err
			}
			m.Status = StatusIgnored
			m.LocalSize = 0
			m.Percent = 0
			return nil
		}
		target := StatusMissing
		if fileExists {
			target = StatusCompleted
		}
		if err := Transition(m.Status, target); err != nil {
			return err
		}
		m.Status = target
		return nil
	})
}

// ForceComplete marks a media entry Completed regardless of its
// verified hash, recording an opaque diagnostic in HashCheck so a
// forced entry stays distinguishable from a verified one. Like the
// universal ignore edge it is a user-asserted override, valid from any
// state, so it deliberately does not go through Transition — a stuck
// Failed/Paused/Missing entry is exactly what it exists to unstick.
func (s *Store) ForceComplete(name string, size int64) error {
	return s.Mutate(name, func(m *Media) error {
		m.Status = StatusCompleted
		m.LocalSize = size
		if m.SizeHTTP <= 0 {
			m.SizeHTTP = size
		}
		m.Percent = 100
		m.HashCheck = " (forced)"
		m.Error = ""
		return nil
	})
}

// Repair re-derives LocalSize/Percent for a single entry from the
// on-disk file size without running a full restore pass (supplemented
// feature, grounded on original_source/utils/file_utils.py).
func (s *Store) Repair(name string, diskSize int64) error {
	return s.Mutate(name, func(m *Media) error {
		m.LocalSize = diskSize
		m.RecomputePercent()
		return nil
	})
}
