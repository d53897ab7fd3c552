// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package boot

import (
	"github.com/coomerdl/coomerdl/pkg/catalog"
)

// pipelineObserver adapts downloader.Observer progress/retry events
// into catalog.Store mutations, so the downloader package itself never
// needs to know about the catalog.
type pipelineObserver struct {
	store *catalog.Store
	name  string
}

func (o *pipelineObserver) OnProgress(downloaded int64, speed string, total int64) {
	_ = o.store.Mutate(o.name, func(m *catalog.Media) error {
		m.LocalSize = downloaded
		if total > 0 {
			m.SizeHTTP = total
		}
		m.Speed = speed
		m.RecomputePercent()
		return nil
	})
}

func (o *pipelineObserver) OnRetry(attempt int, mirror string, err error) {
	_ = o.store.Mutate(o.name, func(m *catalog.Media) error {
		if err != nil {
			m.Error = err.Error()
		}
		return nil
	})
}
