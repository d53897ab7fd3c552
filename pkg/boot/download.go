// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package boot

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/downloader"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

// NewDownloadFunc builds the default downloadFunc a Pipeline drives:
// it resolves a media's final path from its Type-bucketed
// subdirectory, derives the CDN-path hash, and delegates the transfer
// itself to downloader.Download.
func NewDownloadFunc(client *http.Client, opts httpclient.Options) downloadFunc {
	breakers := httpclient.NewMirrorBreakers()
	return func(ctx context.Context, m catalog.Media, downloadDir string, obs downloader.Observer) downloader.Result {
		finalPath := filepath.Join(profile.TypeDir(downloadDir, m.Type), m.Name)
		in := downloader.Input{
			URL:          m.CDNPath,
			FinalPath:    finalPath,
			ExpectedSize: m.SizeHTTP,
			CDNHash:      cdnHash(m.CDNPath),
			Client:       client,
			Opts:         opts,
			Breakers:     breakers,
		}
		return downloader.Download(ctx, in, obs)
	}
}

// cdnHash mirrors profile.cdnHash / restore.cdnHash: the hex basename
// (pre-extension) of a CDN path.
func cdnHash(cdnPath string) string {
	base := filepath.Base(cdnPath)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	if len(base) != 64 {
		return ""
	}
	return strings.ToLower(base)
}
