// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"os"
	"path/filepath"

	"github.com/coomerdl/coomerdl/pkg/catalog"
)

// CatalogPath returns the per-profile JSON catalog path,
// data/<service>/<username>.json.
func CatalogPath(dataDir string, key Key) string {
	return filepath.Join(dataDir, key.Service, key.Username+".json")
}

// DownloadDir returns a profile's download tree root,
// <base>/<service>/<username>. base is either the global
// download_dir or a per-profile override from settings.json's
// profile_dirs.
func DownloadDir(base string, key Key) string {
	return filepath.Join(base, key.Service, key.Username)
}

// TypeDir returns the type-bucketed subdirectory (v/p/o)
// within a profile's download tree for the given media type.
func TypeDir(downloadDir string, t catalog.MediaType) string {
	switch t {
	case catalog.TypeVideo:
		return filepath.Join(downloadDir, subdirVideo)
	case catalog.TypeImage:
		return filepath.Join(downloadDir, subdirImage)
	default:
		return filepath.Join(downloadDir, subdirOther)
	}
}

// EnsureTree creates the v/p/o subdirectories under downloadDir.
func EnsureTree(downloadDir string) error {
	for _, sub := range []string{subdirVideo, subdirImage, subdirOther} {
		if err := os.MkdirAll(filepath.Join(downloadDir, sub), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ListKeys enumerates every profile by walking data/<service>/*.json.
// A missing dataDir yields an empty, non-error result.
func ListKeys(dataDir string) ([]Key, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []Key
	for _, svcEntry := range entries {
		if !svcEntry.IsDir() {
			continue
		}
		service := svcEntry.Name()
		files, err := os.ReadDir(filepath.Join(dataDir, service))
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			ext := filepath.Ext(f.Name())
			if ext != ".json" {
				continue
			}
			username := f.Name()[:len(f.Name())-len(ext)]
			keys = append(keys, Key{Service: service, Username: username})
		}
	}
	return keys, nil
}
