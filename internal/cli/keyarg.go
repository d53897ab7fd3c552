// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/coomerdl/coomerdl/pkg/profile"
)

// parseProfileArg accepts either "service/username" (the natural CLI
// spelling) or profile.Key's own "service:username" serialization
// and returns a Key.
func parseProfileArg(s string) (profile.Key, error) {
	if strings.Contains(s, ":") {
		return profile.ParseKey(s)
	}
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return profile.Key{}, fmt.Errorf("invalid profile %q, want service/username", s)
	}
	return profile.Key{Service: parts[0], Username: parts[1]}, nil
}

// settingsBase resolves a settings.json override for key: the
// per-profile dir when present, otherwise a non-default global
// download_dir. An empty return means settings have nothing to say and
// the flag/config value stands.
func settingsBase(st profile.Settings, key profile.Key) string {
	if dir, ok := st.ProfileDirs[key.String()]; ok && dir != "" {
		return dir
	}
	if st.DownloadDir != "" && st.DownloadDir != profile.DefaultDownloadDir {
		return st.DownloadDir
	}
	return ""
}
