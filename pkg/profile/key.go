// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package profile implements profile lifecycle management: listing
// known profiles, paging in new media on refresh, relocating a
// profile's download tree, importing an already-downloaded directory,
// and deleting a profile outright.
package profile

import (
	"fmt"
	"strings"
)

// Key is a profile's identity: a (service, username) pair that
// serializes to "service:username" and uniquely names both
// the catalog file and the download tree.
type Key struct {
	Service  string
	Username string
}

// String renders the key as "service:username".
func (k Key) String() string {
	return k.Service + ":" + k.Username
}

// ParseKey parses a "service:username" string produced by Key.String
// or found as a settings.json profile_dirs map key.
func ParseKey(s string) (Key, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Key{}, fmt.Errorf("profile: invalid key %q, want \"service:username\"", s)
	}
	return Key{Service: parts[0], Username: parts[1]}, nil
}

// subdirs are the three media-type buckets within a profile's download
// tree: "v" for video, "p" for image ("p"icture), "o" for
// everything else.
const (
	subdirVideo = "v"
	subdirImage = "p"
	subdirOther = "o"
)
