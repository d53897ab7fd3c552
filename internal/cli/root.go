// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the coomerdl command tree: fetch, plan, profiles
// list/import/move/delete/refresh, serve, config init/show/path,
// version: a cobra root command with persistent flags and
// one file per subcommand.
package cli

import (
	"context"
	"fmt"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/coomerdl/coomerdl/pkg/httpclient"
	"github.com/coomerdl/coomerdl/pkg/scheduler"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Cookie   string
	Session  string
	JSONOut  bool
	Quiet    bool
	Verbose  bool
	Config   string
	LogLevel string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "coomerdl",
		Short:         "Resumable media harvester for coomer.st-style profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// CU_GLOBAL_MAX caps total concurrent downloads across every
			// profile this process opens.
			if v := os.Getenv("CU_GLOBAL_MAX"); v != "" {
				if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
					scheduler.SetGlobalMax(n)
				}
			}
		},
	}

	root.PersistentFlags().StringVar(&ro.Cookie, "cookie", "", "Session cookie value (also reads COOMERDL_COOKIE env)")
	root.PersistentFlags().StringVar(&ro.Session, "session", "", "Path to a saved cookie jar file")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (minimal logs)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON, YAML, or TOML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	fetchCmd := newFetchCmd(ctx, ro)
	root.AddCommand(fetchCmd)
	root.AddCommand(newPlanCmd(ctx, ro))
	root.AddCommand(newProfilesCmd(ctx, ro))
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd(version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// clientOpts builds the shared httpclient.Options from global flags:
// a cookie value set directly on a fresh jar, or an externally-saved
// jar file; session acquisition itself lives in external tooling.
func clientOpts(ro *RootOpts) (httpclient.Options, error) {
	opts := httpclient.Options{}

	cookie := ro.Cookie
	if cookie == "" {
		cookie = os.Getenv("COOMERDL_COOKIE")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return opts, err
	}
	if cookie != "" {
		if err := setSessionCookie(jar, cookie); err != nil {
			return opts, err
		}
	}
	if ro.Session != "" {
		if err := loadCookieJarFile(jar, ro.Session); err != nil {
			return opts, err
		}
	}
	opts.Jar = jar
	return opts, nil
}
