// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package apipager enumerates a profile's media over the paginated
// content API: mode auto-detection, per-page retry, and dedup by
// duplicate_key. It produces catalog.Media entries ready for Upsert.
package apipager

import "github.com/coomerdl/coomerdl/pkg/catalog"

// Post is the raw shape of one entry in a page, tolerant of the two
// observed JSON envelopes (a bare list, or {"posts": [...]}).
type Post struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Published   string       `json:"published"`
	Added       string       `json:"added"`
	CreatedAt   string       `json:"created_at"`
	File        *Attachment  `json:"file"`
	Attachments []Attachment `json:"attachments"`
}

// Timestamp returns the first non-empty of the three timestamp fields
// the API has been observed to use.
func (p Post) Timestamp() string {
	switch {
	case p.Published != "":
		return p.Published
	case p.Added != "":
		return p.Added
	default:
		return p.CreatedAt
	}
}

// Attachment is a single file reference within a post.
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// envelope accepts either a bare JSON array of posts or an object
// wrapping them under "posts".
type envelope struct {
	Posts []Post `json:"posts"`
}

// Page is one normalized page of media entries plus the set of post
// ids observed on it, used by the mode prober to decide whether a
// candidate URL advanced the cursor. LastTimestamp is the last post's
// published/added time, feeding the ?before=<last_ts> candidate.
type Page struct {
	Media         []catalog.Media
	PostIDs       []string
	LastTimestamp string
}
