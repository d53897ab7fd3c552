// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

// MoveProgress reports bytes relocated so far out of the total taken
// from a source-size snapshot. It is invoked from
// a background ticker, never from the file-moving goroutine itself.
type MoveProgress func(movedBytes, totalBytes int64)

// Move relocates key's download tree from its current base to newBase,
// preserving the internal v/p/o structure. Progress is
// observable via destination-size polling against a source-size
// snapshot taken before the move starts. Renames are attempted first;
// a cross-filesystem move falls back to copy-then-remove.
func (m *Manager) Move(ctx context.Context, key Key, oldBase, newBase string, onProgress MoveProgress) error {
	srcDir := DownloadDir(oldBase, key)
	dstDir := DownloadDir(newBase, key)

	if srcDir == dstDir {
		return nil
	}

	total, err := iohelpers.DirSize(srcDir)
	if err != nil {
		return err
	}

	stopProgress := make(chan struct{})
	if onProgress != nil {
		go pollMoveProgress(ctx, dstDir, total, stopProgress, onProgress)
	}
	defer close(stopProgress)

	if err := EnsureTree(dstDir); err != nil {
		return err
	}

	err = filepath.WalkDir(srcDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(srcDir, path)
		if relErr != nil {
			return relErr
		}
		return moveFile(path, filepath.Join(dstDir, rel))
	})
	if err != nil {
		return err
	}

	if err := os.RemoveAll(srcDir); err != nil {
		log.Printf("[profile] move %s: could not remove old tree %s: %v", key, srcDir, err)
	}

	if err := m.setCustomDir(key, newBase); err != nil {
		log.Printf("[profile] move %s: could not persist custom_dir: %v", key, err)
	}

	m.publish(key, eventbus.ReasonDirChanged, true)
	return nil
}

// setCustomDir records a profile's relocated base directory on its
// catalog. Move is the only writer of
// this field.
func (m *Manager) setCustomDir(key Key, newBase string) error {
	store := catalog.NewStore(CatalogPath(m.DataDir, key))
	cat, err := store.Load()
	if err != nil {
		return err
	}
	if cat == nil {
		return nil
	}
	cat.CustomDir = newBase
	return store.Save(cat)
}

func pollMoveProgress(ctx context.Context, dstDir string, total int64, stop <-chan struct{}, onProgress MoveProgress) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			moved, err := iohelpers.DirSize(dstDir)
			if err != nil {
				continue
			}
			onProgress(moved, total)
		}
	}
}
