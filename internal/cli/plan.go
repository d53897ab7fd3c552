// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coomerdl/coomerdl/pkg/apipager"
	"github.com/coomerdl/coomerdl/pkg/catalog"
	"github.com/coomerdl/coomerdl/pkg/httpclient"
)

// planSummary is the JSON shape emitted by --json, a dry-run report of
// what fetch would ingest without touching the catalog or downloading
// anything.
type planSummary struct {
	Service  string         `json:"service"`
	Username string         `json:"username"`
	Posts    int            `json:"posts"`
	Media    int            `json:"media"`
	ByType   map[string]int `json:"by_type"`
	Names    []string       `json:"names,omitempty"`
}

func newPlanCmd(ctx context.Context, ro *RootOpts) *cobra.Command {
	var showNames bool

	cmd := &cobra.Command{
		Use:   "plan SERVICE/USERNAME",
		Short: "Page the API and summarize a profile's media without downloading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseProfileArg(args[0])
			if err != nil {
				return err
			}

			opts, err := clientOpts(ro)
			if err != nil {
				return err
			}
			client := httpclient.New(opts)
			pager := apipager.New(client, opts, key.Service, key.Username)

			summary := planSummary{
				Service:  key.Service,
				Username: key.Username,
				ByType:   map[string]int{},
			}
			postIDs := map[string]bool{}

			err = pager.Run(ctx, func(page apipager.Page) {
				for _, id := range page.PostIDs {
					postIDs[id] = true
				}
				for _, m := range page.Media {
					summary.Media++
					summary.ByType[typeLabel(m.Type)]++
					if showNames {
						summary.Names = append(summary.Names, m.Name)
					}
				}
			})
			summary.Posts = len(postIDs)
			if err != nil {
				return fmt.Errorf("plan %s: %w", key, err)
			}

			if ro.JSONOut {
				return json.NewEncoder(os.Stdout).Encode(summary)
			}

			fmt.Printf("%s: %d posts, %d media\n", key, summary.Posts, summary.Media)
			for t, n := range summary.ByType {
				fmt.Printf("  %-6s %d\n", t, n)
			}
			if showNames {
				for _, n := range summary.Names {
					fmt.Println("  -", n)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showNames, "names", false, "List every media filename")

	return cmd
}

func typeLabel(t catalog.MediaType) string {
	switch t {
	case catalog.TypeVideo:
		return "video"
	case catalog.TypeImage:
		return "image"
	default:
		return "other"
	}
}
