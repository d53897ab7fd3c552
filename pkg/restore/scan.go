// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package restore reconciles a profile's catalog with what is actually
// present on disk at boot: final files become Completed, orphaned .tmp
// files become Paused, and missing files reset to Missing unless the
// entry is stickily Ignored.
package restore

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

// Scan reconciles every entry in cat against dir, the profile's
// download root. It mutates cat in place; callers persist the result
// via catalog.Store.Save. When strict is true, existing final files
// are additionally SHA-256-verified against the hex digest encoded in
// the media's CDN path basename.
func Scan(dir string, cat *catalog.Catalog, strict bool) error {
	ignored := snapshotIgnored(cat)

	for i := range cat.Medias {
		m := &cat.Medias[i]
		if err := scanOne(dir, m, strict); err != nil {
			log.Printf("[restore] %s: %v", m.Name, err)
		}
	}

	reapplyIgnored(cat, ignored)
	normalizeTransient(cat)
	return nil
}

// snapshotIgnored records which media are Ignored before the disk scan
// runs, so disk-first logic below can never flip one to Completed.
func snapshotIgnored(cat *catalog.Catalog) map[string]bool {
	out := make(map[string]bool)
	for _, m := range cat.Medias {
		if m.Status == catalog.StatusIgnored {
			out[m.Name] = true
		}
	}
	return out
}

func reapplyIgnored(cat *catalog.Catalog, ignored map[string]bool) {
	for i := range cat.Medias {
		if ignored[cat.Medias[i].Name] {
			cat.Medias[i].Status = catalog.StatusIgnored
			cat.Medias[i].LocalSize = 0
			cat.Medias[i].Percent = 0
		}
	}
}

// normalizeTransient resets any status that only makes sense while a
// process is alive back to Paused, since this scan only runs at boot
// when nothing is actually running yet.
func normalizeTransient(cat *catalog.Catalog) {
	for i := range cat.Medias {
		switch cat.Medias[i].Status {
		case catalog.StatusDownloading, catalog.StatusRetrying, catalog.StatusWaiting:
			cat.Medias[i].Status = catalog.StatusPaused
		}
	}
}

func scanOne(dir string, m *catalog.Media, strict bool) error {
	finalPath := filepath.Join(dir, m.Name)
	tmpPath := finalPath + ".tmp"

	if fi, err := os.Stat(finalPath); err == nil {
		m.LocalSize = fi.Size()
		m.Status = catalog.StatusCompleted
		m.RecomputePercent()
		m.Percent = 100
		m.Error = ""
		if strict {
			return verifyAgainstCDNHash(finalPath, m)
		}
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if fi, err := os.Stat(tmpPath); err == nil {
		m.LocalSize = fi.Size()
		m.Status = catalog.StatusPaused
		m.RecomputePercent()
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if m.Status == catalog.StatusIgnored {
		m.LocalSize = 0
		m.Percent = 0
		return nil
	}

	m.Status = catalog.StatusMissing
	m.LocalSize = 0
	m.Percent = 0
	m.Error = ""
	return nil
}

// verifyAgainstCDNHash checks a completed file's SHA-256 against the
// hex digest embedded in the CDN path's basename. A mismatch marks
// the entry Incomplete rather than failing the whole scan.
func verifyAgainstCDNHash(path string, m *catalog.Media) error {
	expected := cdnHash(m.CDNPath)
	if expected == "" {
		return nil // no embedded hash to check against
	}

	got, err := iohelpers.SHA256Stream(path)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, expected) {
		m.Status = catalog.StatusIncomplete
		m.HashCheck = fmt.Sprintf("expected %s got %s", expected, got)
		return fmt.Errorf("hash mismatch for %s", m.Name)
	}
	m.HashCheck = ""
	return nil
}

// cdnHash extracts the hex basename (pre-extension) of a CDN path,
// returning "" if it doesn't look like a 64-character hex digest.
func cdnHash(cdnPath string) string {
	base := filepath.Base(cdnPath)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if len(base) != 64 {
		return ""
	}
	if _, err := hex.DecodeString(base); err != nil {
		return ""
	}
	return base
}
