// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/profile"
)

func newProfilesCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	var dataDir, downloadDir, settingsPath string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Manage known profiles: list, import, move, delete, refresh, repair, ignore, force-complete",
	}
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "Root directory for per-profile catalog JSON")
	cmd.PersistentFlags().StringVar(&downloadDir, "download-dir", "./downloads", "Root directory for downloaded media")
	cmd.PersistentFlags().StringVar(&settingsPath, "settings", "settings.json", "Path to the settings file (download_dir, profile_dirs)")

	newManager := func(ro *RootOpts) (*profile.Manager, error) {
		opts, err := clientOpts(ro)
		if err != nil {
			return nil, err
		}
		return profile.New(httpclient.New(opts), opts, dataDir, nil), nil
	}

	cmd.AddCommand(newProfilesListCmd(&dataDir))
	cmd.AddCommand(newProfilesRefreshCmd(ctx, ro, newManager))
	cmd.AddCommand(newProfilesMoveCmd(ctx, ro, &downloadDir, &settingsPath, newManager))
	cmd.AddCommand(newProfilesImportCmd(ctx, ro, &downloadDir, newManager))
	cmd.AddCommand(newProfilesDeleteCmd(ro, &downloadDir, newManager))
	cmd.AddCommand(newProfilesRepairCmd(&dataDir, &downloadDir))
	cmd.AddCommand(newProfilesIgnoreCmd(&dataDir, &downloadDir))
	cmd.AddCommand(newProfilesForceCompleteCmd(&dataDir, &downloadDir))

	return cmd
}

func newProfilesListCmd(dataDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every known profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := profile.ListKeys(*dataDir)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
}

func newProfilesRefreshCmd(ctx context.Context, ro *RootOpts, newManager func(*RootOpts) (*profile.Manager, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh SERVICE/USERNAME",
		Short: "Page the API and insert newly discovered media into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			mgr, err := newManager(ro)
			if err != nil {
				return err
			}
			inserted, err := mgr.Refresh(ctx, key)
			if err != nil {
				return err
			}
			if !ro.Quiet {
				fmt.Printf("%s: %d new media\n", key, inserted)
			}
			return nil
		},
	}
}

func newProfilesMoveCmd(ctx context.Context, ro *RootOpts, downloadDir, settingsPath *string, newManager func(*RootOpts) (*profile.Manager, error)) *cobra.Command {
	var newBase string

	cmd := &cobra.Command{
		Use:   "move SERVICE/USERNAME",
		Short: "Relocate a profile's download tree to a new base directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			if newBase == "" {
				return fmt.Errorf("--to is required")
			}
			oldBase := *downloadDir
			if !cmd.Flags().Changed("download-dir") {
				st, err := profile.LoadSettings(*settingsPath)
				if err != nil {
					return err
				}
				if dir := settingsBase(st, key); dir != "" {
					oldBase = dir
				}
			}
			mgr, err := newManager(ro)
			if err != nil {
				return err
			}

			var bar *pb.ProgressBar
			onProgress := func(moved, total int64) {
				if ro.Quiet || ro.JSONOut {
					return
				}
				if bar == nil {
					bar = pb.StartNew(int(total))
				}
				bar.SetCurrent(moved)
			}

			err = mgr.Move(ctx, key, oldBase, newBase, onProgress)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return err
			}
			// Record the override so every later fetch resolves the new
			// base from settings.json.
			return profile.SetProfileDir(*settingsPath, key, newBase)
		},
	}
	cmd.Flags().StringVar(&newBase, "to", "", "Destination base directory")
	return cmd
}

func newProfilesImportCmd(ctx context.Context, ro *RootOpts, downloadDir *string, newManager func(*RootOpts) (*profile.Manager, error)) *cobra.Command {
	var sourceDir string

	cmd := &cobra.Command{
		Use:   "import SERVICE/USERNAME",
		Short: "Adopt an already-downloaded directory as a managed profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			if sourceDir == "" {
				return fmt.Errorf("--source is required")
			}
			mgr, err := newManager(ro)
			if err != nil {
				return err
			}
			return mgr.ImportExisting(ctx, key, sourceDir, *downloadDir)
		},
	}
	cmd.Flags().StringVar(&sourceDir, "source", "", "Directory containing the already-downloaded files")
	return cmd
}

func newProfilesDeleteCmd(ro *RootOpts, downloadDir *string, newManager func(*RootOpts) (*profile.Manager, error)) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete SERVICE/USERNAME",
		Short: "Delete a profile's catalog and its entire download tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", key)
			}
			mgr, err := newManager(ro)
			if err != nil {
				return err
			}
			return mgr.Delete(key, *downloadDir)
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newProfilesIgnoreCmd(dataDir, downloadDir *string) *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "ignore SERVICE/USERNAME MEDIA_NAME",
		Short: "Mark a media entry ignored so restore and the scheduler skip it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			name := args[1]
			store := catalog.NewStore(profile.CatalogPath(*dataDir, key))
			cat, err := store.Load()
			if err != nil {
				return err
			}
			if cat == nil {
				return fmt.Errorf("%s: no catalog found", key)
			}
			idx := cat.ByName(name)
			if idx < 0 {
				return fmt.Errorf("%s: no media named %q", key, name)
			}

			// Un-ignore resolves to Completed or Missing depending on
			// whether the final file is actually on disk.
			fileExists := false
			if undo {
				m := cat.Medias[idx]
				path := filepath.Join(profile.TypeDir(profile.DownloadDir(*downloadDir, key), m.Type), m.Name)
				if _, err := os.Stat(path); err == nil {
					fileExists = true
				}
			}
			return store.SetIgnored(name, !undo, fileExists)
		},
	}
	cmd.Flags().BoolVar(&undo, "undo", false, "Un-ignore the entry instead")
	return cmd
}

func newProfilesForceCompleteCmd(dataDir, downloadDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "force-complete SERVICE/USERNAME MEDIA_NAME",
		Short: "Mark a media entry completed without hash verification",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			name := args[1]
			store := catalog.NewStore(profile.CatalogPath(*dataDir, key))
			cat, err := store.Load()
			if err != nil {
				return err
			}
			if cat == nil {
				return fmt.Errorf("%s: no catalog found", key)
			}
			idx := cat.ByName(name)
			if idx < 0 {
				return fmt.Errorf("%s: no media named %q", key, name)
			}

			m := cat.Medias[idx]
			var size int64
			path := filepath.Join(profile.TypeDir(profile.DownloadDir(*downloadDir, key), m.Type), m.Name)
			if fi, err := os.Stat(path); err == nil {
				size = fi.Size()
			}
			return store.ForceComplete(name, size)
		},
	}
}

func newProfilesRepairCmd(dataDir, downloadDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "repair SERVICE/USERNAME",
		Short: "Re-derive local_size/percent from on-disk files without a full restore scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}
			store := catalog.NewStore(profile.CatalogPath(*dataDir, key))
			cat, err := store.Load()
			if err != nil {
				return err
			}
			if cat == nil {
				return fmt.Errorf("%s: no catalog found", key)
			}

			dlDir := profile.DownloadDir(*downloadDir, key)
			repaired := 0
			for _, m := range cat.Medias {
				if m.Status != catalog.StatusCompleted && m.Status != catalog.StatusIncomplete {
					continue
				}
				path := filepath.Join(profile.TypeDir(dlDir, m.Type), m.Name)
				fi, err := os.Stat(path)
				if err != nil {
					continue
				}
				if err := store.Repair(m.Name, fi.Size()); err != nil {
					continue
				}
				repaired++
			}
			fmt.Printf("%s: repaired %d entries\n", key, repaired)
			return nil
		},
	}
}
