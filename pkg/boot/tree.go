// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package boot orchestrates the per-profile boot sequence: restore, a
// one-shot catalog render, then the scheduler, retry supervisor, and a
// dispatch watchdog. Shutdown is the mirror image and is safe to call
// more than once.
package boot

import (
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/profile"
	"github.com/coomerdl/coomerdl/pkg/restore"
)

// scanTree runs restore.Scan once per type-bucketed subdirectory
// instead of once over the whole download tree, since
// restore.Scan expects every media's file to live directly under the
// directory it is given. Media are partitioned by Type, scanned
// against their own subdirectory, and the results merged back into
// cat in place.
func scanTree(downloadDir string, cat *catalog.Catalog, strict bool) error {
	buckets := map[catalog.MediaType]*catalog.Catalog{
		catalog.TypeVideo: {},
		catalog.TypeImage: {},
		catalog.TypeOther: {},
	}
	index := map[catalog.MediaType][]int{}

	for i, m := range cat.Medias {
		t := m.Type
		if _, ok := buckets[t]; !ok {
			t = catalog.TypeOther
		}
		buckets[t].Medias = append(buckets[t].Medias, m)
		index[t] = append(index[t], i)
	}

	for t, b := range buckets {
		if len(b.Medias) == 0 {
			continue
		}
		if err := restore.Scan(profile.TypeDir(downloadDir, t), b, strict); err != nil {
			return err
		}
		for j, orig := range index[t] {
			cat.Medias[orig] = b.Medias[j]
		}
	}
	return nil
}
