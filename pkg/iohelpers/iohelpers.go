// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package iohelpers provides streaming hash, atomic replace, and
// directory-size primitives shared by the catalog, restore, and
// downloader packages.
package iohelpers

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// streamChunk is the buffer size used for hashing and copying; kept
// small and explicit so large media files never load into memory.
const streamChunk = 8 * 1024

// SHA256Stream hashes path in 8 KiB blocks without loading it into memory.
func SHA256Stream(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, streamChunk)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// AtomicReplace renames src over dst. If the rename fails (e.g. dst is
// on a different setup that disallows replacing), it removes dst and
// retries once. Callers treat a nil return as the sole commit point for
// a finalized download.
func AtomicReplace(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	_ = os.Remove(dst)
	return os.Rename(src, dst)
}

// DirSize recursively sums file sizes under root, tolerating files that
// disappear mid-walk (a concurrent downloader finalizing or removing a
// tmp file races harmlessly with this).
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return 0, nil
	}
	return total, err
}
