// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package catalog

import "github.com/cockroachdb/errors"

// Sentinel errors for the store. Wrapped with
// cockroachdb/errors so callers keep errors.Is/As compatibility while
// logic-class failures (#7: corruption, missing keys) carry an
// actionable hint instead of a bare message.
var (
	// ErrNotFound is returned by Store.Mutate when name has no matching
	// media entry in the live catalog. Store.Load has no equivalent: a
	// missing catalog file is not an error there, it returns (nil, nil).
	ErrNotFound = errors.New("catalog: not found")
)

// wrapCorrupt annotates a JSON decode failure with a hint that the
// catalog will be reset to empty rather than crash the process.
func wrapCorrupt(path string, err error) error {
	return errors.WithHintf(
		errors.Wrapf(err, "catalog: corrupt JSON at %s", path),
		"the catalog was reset to empty; re-run a profile refresh to repopulate it",
	)
}
