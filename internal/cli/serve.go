// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coomerdl/coomerdl/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr          string
		port          int
		dataDir       string
		downloadDir   string
		maxConcurrent int64
		strict        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the status/metrics HTTP and WebSocket server",
		Long: `Start an HTTP server exposing:
  - REST API to list, open, close, refresh, and delete profiles
  - a per-profile catalog read endpoint
  - a WebSocket feed of catalog update events
  - Prometheus metrics at /metrics

Downloads are driven the same way "coomerdl fetch" drives them, one
pkg/boot.Pipeline per opened profile; there is no rendered dashboard.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := clientOpts(ro)
			if err != nil {
				return err
			}

			cfg := server.DefaultConfig()
			cfg.Addr = addr
			cfg.Port = port
			cfg.DataDir = dataDir
			cfg.DownloadDir = downloadDir
			cfg.MaxConcurrent = maxConcurrent
			cfg.Strict = strict
			cfg.ClientOpts = opts

			ctx, cancel := signalContext(context.Background())
			defer cancel()

			fmt.Printf("coomerdl serve: http://%s:%d\n", addr, port)
			return server.New(cfg).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Root directory for per-profile catalog JSON")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "./downloads", "Root directory for downloaded media")
	cmd.Flags().Int64Var(&maxConcurrent, "max-concurrent", 0, "Per-profile concurrent downloads (0 = default)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Verify existing final files against the CDN-path hash on restore")

	return cmd
}
