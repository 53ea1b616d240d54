package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"harvester/internal/ledger"
	"harvester/internal/workspace"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize recorded posts and files per collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			store, err := ledger.Open(cfg.Paths.MetaDir)
			if err != nil {
				return err
			}
			defer store.Close()

			collections, err := workspace.Discover(cfg.Paths.DataDir)
			if err != nil {
				return err
			}
			if len(collections) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no collections harvested yet")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"collection", "posts", "files"})

			var totalPosts, totalFiles int
			for _, collection := range collections {
				posts, err := store.CountPosts(cmd.Context(), collection)
				if err != nil {
					return err
				}
				files, err := store.CountFiles(cmd.Context(), collection)
				if err != nil {
					return err
				}
				totalPosts += posts
				totalFiles += files
				tw.AppendRow(table.Row{collection, posts, files})
			}
			tw.AppendFooter(table.Row{"total", totalPosts, totalFiles})
			tw.Render()
			return nil
		},
	}
}
