// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package downloader

import "strings"

// mirrorHosts is the fixed CDN fail-over order.
var mirrorHosts = []string{
	"coomer.st",
	"n1.coomer.st",
	"n2.coomer.st",
	"n3.coomer.st",
	"n4.coomer.st",
}

// candidateURLs expands a CDN-relative path into the full fail-over
// candidate list. It is a package-level var, not a plain func, so
// tests can substitute a fixed list pointed at an httptest server
// instead of the real mirror hosts.
var candidateURLs = func(cdnPath string) []string {
	path := cdnPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	urls := make([]string, len(mirrorHosts))
	for i, host := range mirrorHosts {
		urls[i] = "https://" + host + path
	}
	return urls
}
