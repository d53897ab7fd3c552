// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package catalog owns the per-profile authoritative media list: its
// on-disk JSON representation, the single-writer mutation API, and the
// media status state machine. All catalog mutation funnels through
// Store so the single-writer invariant on the JSON file holds.
package catalog

import "time"

// MediaType is the tagged kind derived from a media's extension at
// ingest time, replacing a stringly-typed "type" field after ingest.
type MediaType string

const (
	TypeVideo MediaType = "video"
	TypeImage MediaType = "image"
	TypeOther MediaType = "other"
)

var videoExts = map[string]bool{
	"mp4": true, "m4v": true, "mov": true, "webm": true,
	"avi": true, "mkv": true, "flv": true,
}

var imageExts = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true,
}

// TypeFromExtension derives a MediaType from a file extension (without
// the leading dot, case-insensitive comparison is the caller's job).
func TypeFromExtension(ext string) MediaType {
	switch {
	case videoExts[ext]:
		return TypeVideo
	case imageExts[ext]:
		return TypeImage
	default:
		return TypeOther
	}
}

// Status is a media's position in the download state machine. It is a
// closed enum; Transition checks every move between values except
// Store.ForceComplete's user-asserted override.
type Status string

const (
	StatusMissing     Status = "missing"
	StatusWaiting     Status = "waiting"
	StatusDownloading Status = "downloading"
	StatusRetrying    Status = "retrying"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusIgnored     Status = "ignored"
	StatusIncomplete  Status = "incomplete"
)

// Media is the atomic catalog entry.
type Media struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CDNPath    string    `json:"cdn_path"`
	URL        string    `json:"url"`
	Type       MediaType `json:"type"`
	SizeHTTP   int64     `json:"size_http"`
	LocalSize  int64     `json:"local_size"`
	Percent    float64   `json:"percent"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	HashCheck  string    `json:"hash_check,omitempty"`
	RetryCount int       `json:"retry_count"`
	Speed      string    `json:"speed,omitempty"`
}

// RecomputePercent derives Percent from LocalSize/SizeHTTP, clamped to
// [0, 100]. A zero SizeHTTP leaves Percent untouched (unknown total).
func (m *Media) RecomputePercent() {
	if m.SizeHTTP <= 0 {
		return
	}
	p := float64(m.LocalSize) / float64(m.SizeHTTP) * 100
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	m.Percent = p
}

// Catalog is the ordered, per-profile media list plus metadata.
type Catalog struct {
	Medias      []Media   `json:"medias"`
	LastUpdate  time.Time `json:"last_update"`
	ProfileName string    `json:"profile_name"`
	CustomDir   string    `json:"custom_dir,omitempty"`
}

// ByName returns the index of the media entry with the given name, or
// -1 if not present. Names are unique within a catalog, so linear
// scan is acceptable for the catalog sizes this engine targets (tens
// of thousands of entries per profile, not millions).
func (c *Catalog) ByName(name string) int {
	for i := range c.Medias {
		if c.Medias[i].Name == name {
			return i
		}
	}
	return -1
}
