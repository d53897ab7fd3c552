// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

// DefaultDownloadDir is the global download base absent settings.
const DefaultDownloadDir = "downloads"

// Settings is the settings.json shape: the global default
// download base plus per-profile base overrides keyed by the
// "service:username" serialization of Key.
type Settings struct {
	DownloadDir string            `json:"download_dir"`
	ProfileDirs map[string]string `json:"profile_dirs,omitempty"`
}

// BaseFor resolves the effective download base for key: the
// per-profile override when one exists, the global download_dir
// otherwise.
func (s Settings) BaseFor(key Key) string {
	if dir, ok := s.ProfileDirs[key.String()]; ok && dir != "" {
		return dir
	}
	if s.DownloadDir != "" {
		return s.DownloadDir
	}
	return DefaultDownloadDir
}

// LoadSettings reads settings.json from path. A missing file yields the
// defaults rather than an error.
func LoadSettings(path string) (Settings, error) {
	s := Settings{DownloadDir: DefaultDownloadDir}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return Settings{DownloadDir: DefaultDownloadDir}, err
	}
	if s.DownloadDir == "" {
		s.DownloadDir = DefaultDownloadDir
	}
	return s, nil
}

// SaveSettings persists s at path with the same tmp-then-rename commit
// the catalog store uses, so a reader never observes a partial write.
func SaveSettings(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
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
	return iohelpers.AtomicReplace(tmp, path)
}

// SetProfileDir records (or clears, with an empty dir) a per-profile
// base override in the settings file at path.
func SetProfileDir(path string, key Key, dir string) error {
	s, err := LoadSettings(path)
	if err != nil {
		return err
	}
	if s.ProfileDirs == nil {
		s.ProfileDirs = make(map[string]string)
	}
	if dir == "" {
		delete(s.ProfileDirs, key.String())
	} else {
		s.ProfileDirs[key.String()] = dir
	}
	return SaveSettings(path, s)
}
