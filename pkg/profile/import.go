// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/coomerdl/coomerdl/pkg/apipager"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/eventbus"
	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

// ImportExisting adopts an already-downloaded, unmanaged directory as
// a profile: it fetches the full
// catalog from the API, reorganizes whatever files already exist in
// dir into the canonical v/p/o tree, SHA-matches and renames files
// whose hash agrees with the CDN-path hash to their canonical media
// name, and persists the resulting catalog.
func (m *Manager) ImportExisting(ctx context.Context, key Key, dir string, baseDir string) error {
	store := catalog.NewStore(CatalogPath(m.DataDir, key))
	cat := &catalog.Catalog{ProfileName: key.Username}

	pager := m.newPager(key)
	pageErr := pager.Run(ctx, func(page apipager.Page) {
		cat.Medias = append(cat.Medias, page.Media...)
	})

	dstDir := DownloadDir(baseDir, key)
	if err := EnsureTree(dstDir); err != nil {
		return err
	}

	existing, err := indexExistingFiles(dir)
	if err != nil {
		return err
	}

	for i := range cat.Medias {
		med := &cat.Medias[i]
		hash := cdnHash(med.CDNPath)
		matched := matchByHash(existing, hash)
		if matched == "" {
			continue
		}
		canonical := filepath.Join(TypeDir(dstDir, med.Type), med.Name)
		if err := moveFile(matched, canonical); err != nil {
			continue
		}
		fi, err := os.Stat(canonical)
		if err != nil {
			continue
		}
		med.Status = catalog.StatusCompleted
		med.LocalSize = fi.Size()
		med.SizeHTTP = fi.Size()
		med.Percent = 100
		delete(existing, hash)
	}

	if err := store.Save(cat); err != nil {
		return err
	}
	m.publish(key, eventbus.ReasonImportDone, false)
	return pageErr
}

// indexExistingFiles builds a map of SHA-256 hash -> file path for
// every regular file under dir, used to match unmanaged files against
// the CDN-path hash embedded in each catalog entry.
func indexExistingFiles(dir string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if d.IsDir() || strings.HasSuffix(path, ".tmp") {
			return nil
		}
		sum, err := iohelpers.SHA256Stream(path)
		if err != nil {
			return nil
		}
		out[sum] = path
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return out, nil
	}
	return out, err
}

func matchByHash(existing map[string]string, hash string) string {
	if hash == "" {
		return ""
	}
	return existing[strings.ToLower(hash)]
}

// cdnHash extracts the hex basename (pre-extension) of a CDN path,
// mirroring restore.cdnHash — kept as
// a small local copy rather than an exported restore API since the two
// packages otherwise have no reason to depend on each other.
func cdnHash(cdnPath string) string {
	base := filepath.Base(cdnPath)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if len(base) != 64 {
		return ""
	}
	return strings.ToLower(base)
}
