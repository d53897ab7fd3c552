// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/coomerdl/coomerdl/pkg/boot"
	"github.com/coomerdl/coomerdl/pkg/catalog"
)

// Package-level metrics, promauto-registered against the default
// registry the way djryanj-media-viewer's internal/metrics package
// does it.
var (
	queueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coomerdl_queue_depth",
			Help: "Number of media queued for download, per open profile.",
		},
		[]string{"profile"},
	)

	activeDownloadsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coomerdl_active_downloads",
			Help: "Number of media currently downloading, per open profile.",
		},
		[]string{"profile"},
	)

	openProfilesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coomerdl_open_profiles",
			Help: "Number of profiles with an open boot pipeline.",
		},
	)

	mediaCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coomerdl_media_completed_total",
			Help: "Cumulative count of media transitioned to completed, per profile.",
		},
		[]string{"profile"},
	)
)

// metricsPoller periodically samples every open pipeline's scheduler
// (queue depth, active count are live counters, not cumulative — a
// true Prometheus Counter doesn't fit them, so they are Gauges; only
// mediaCompletedTotal is monotonic and tracked as a Counter).
type metricsPoller struct {
	reg  *pipelineRegistry
	stop chan struct{}
	done chan struct{}
}

func newMetricsPoller(reg *pipelineRegistry) *metricsPoller {
	return &metricsPoller{reg: reg, stop: make(chan struct{}), done: make(chan struct{})}
}

func (p *metricsPoller) Start() {
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		seen := map[string]int{}
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.sample(seen)
			}
		}
	}()
}

func (p *metricsPoller) Stop() {
	close(p.stop)
	<-p.done
}

func (p *metricsPoller) sample(seenCompleted map[string]int) {
	keys := p.reg.Keys()
	openProfilesGauge.Set(float64(len(keys)))
	for _, key := range keys {
		pipe, ok := p.reg.Get(key)
		if !ok {
			continue
		}
		label := key.String()
		ctrl := pipe.Controller()
		queueDepthGauge.WithLabelValues(label).Set(float64(ctrl.QueueDepth()))
		activeDownloadsGauge.WithLabelValues(label).Set(float64(ctrl.ActiveCount()))

		completed := countCompleted(pipe)
		delta := completed - seenCompleted[label]
		if delta > 0 {
			mediaCompletedTotal.WithLabelValues(label).Add(float64(delta))
		}
		seenCompleted[label] = completed
	}
}

func countCompleted(pipe *boot.Pipeline) int {
	cat := pipe.Store().Snapshot()
	n := 0
	for _, m := range cat.Medias {
		if m.Status == catalog.StatusCompleted {
			n++
		}
	}
	return n
}
