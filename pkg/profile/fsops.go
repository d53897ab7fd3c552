// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package profile

import (
	"io"
	"os"
	"path/filepath"

	"github.com/coomerdl/coomerdl/pkg/iohelpers"
)

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func removeAllIfExists(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// moveFile relocates src to dst, preferring a rename and falling back
// to copy+remove when src/dst straddle a filesystem boundary (the
// classic EXDEV case iohelpers.AtomicReplace doesn't need to handle
// since its caller always renames within one profile's tree).
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// os.Rename fails across filesystem boundaries (EXDEV) among other
	// opaque *LinkError causes; copy+remove covers all of them.
	return copyThenRemove(src, dst)
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".movetmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := iohelpers.AtomicReplace(tmp, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
