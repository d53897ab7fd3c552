// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coomerdl/coomerdl/internal/tui"
	"github.com/coomerdl/coomerdl/pkg/boot"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

func newFetchCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	var (
		dataDir       string
		downloadDir   string
		settingsPath  string
		maxConcurrent int64
		strict        bool
		noRefresh     bool
	)

	cmd := &cobra.Command{
		Use:   "fetch SERVICE/USERNAME",
		Short: "Ingest and download a profile's media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			if err := applyFileConfig(cmd, ro, &dataDir, &downloadDir, &maxConcurrent, &strict); err != nil {
				return err
			}
			// settings.json overrides lose to an explicit --download-dir
			// but win over the flag/config-file default.
			if !cmd.Flags().Changed("download-dir") {
				st, err := profile.LoadSettings(settingsPath)
				if err != nil {
					return err
				}
				if dir := settingsBase(st, key); dir != "" {
					downloadDir = dir
				}
			}

			opts, err := clientOpts(ro)
			if err != nil {
				return err
			}
			client := httpclient.New(opts)
			mgr := profile.New(client, opts, dataDir, nil)

			if !noRefresh {
				if !ro.Quiet {
					fmt.Printf("refreshing %s ...\n", key)
				}
				inserted, err := mgr.Refresh(ctx, key)
				if err != nil {
					return fmt.Errorf("refresh %s: %w", key, err)
				}
				if !ro.Quiet && !ro.JSONOut {
					fmt.Printf("%d new media\n", inserted)
				}
			}

			dlDir := profile.DownloadDir(downloadDir, key)
			if err := profile.EnsureTree(dlDir); err != nil {
				return err
			}
			store := catalog.NewStore(profile.CatalogPath(dataDir, key))
			dl := boot.NewDownloadFunc(client, opts)
			pipe := boot.New(boot.Config{
				Key:           key,
				DownloadDir:   dlDir,
				MaxConcurrent: maxConcurrent,
				Strict:        strict,
			}, store, nil, nil, dl)

			if err := pipe.Open(ctx); err != nil {
				return err
			}
			defer pipe.Shutdown()

			return runUntilDrained(ctx, ro, pipe)
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Root directory for per-profile catalog JSON")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "./downloads", "Root directory for downloaded media")
	cmd.Flags().StringVar(&settingsPath, "settings", "settings.json", "Path to the settings file (download_dir, profile_dirs)")
	cmd.Flags().Int64Var(&maxConcurrent, "max-concurrent", 0, "Per-profile concurrent downloads (0 = default)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Verify existing final files against the CDN-path hash on restore")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "Skip paginating the API; download whatever the catalog already has")

	return cmd
}

// runUntilDrained polls pipe's scheduler until the queue empties and no
// worker is active, rendering progress the way the live TUI or a
// quiet/JSON mode would.
func runUntilDrained(ctx context.Context, ro *RootOpts, pipe *boot.Pipeline) error {
	var renderer interface {
		Render(*catalog.Catalog)
		Close()
	}
	if !ro.Quiet && !ro.JSONOut {
		renderer = tui.NewLiveRenderer()
		defer renderer.Close()
	}

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	enc := json.NewEncoder(os.Stdout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cat := pipe.Store().Snapshot()
			if ro.JSONOut {
				enc.Encode(cat)
			} else if renderer != nil {
				renderer.Render(cat)
			}

			ctrl := pipe.Controller()
			if ctrl.QueueDepth() == 0 && ctrl.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
