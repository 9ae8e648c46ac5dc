package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"trackforge/cache"
	"trackforge/config"
	"trackforge/core/loader"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or prune the fingerprint cache manifest",
}

var cacheShowCmd = &cobra.Command{
	Use:          "show",
	Short:        "List cached tracks and their recorded state",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)
		manifest := cache.Load(cfg.CacheFile)

		if manifest.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Cache is empty.")
			return nil
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Track", "Audio", "Artifact", "Cover", "Stream URL", "Updated"})
		for _, slug := range manifest.Slugs() {
			entry, _ := manifest.Get(slug)
			t.AppendRow(table.Row{
				slug,
				shortFP(entry.AudioFingerprint),
				shortFP(entry.ArtifactFingerprint),
				shortFP(entry.CoverFingerprint),
				entry.StreamURL,
				entry.UpdatedAt.Format("2006-01-02 15:04"),
			})
		}
		t.SetStyle(table.StyleLight)
		t.Render()
		return nil
	},
}

var cachePruneCmd = &cobra.Command{
	Use:          "prune",
	Short:        "Drop cache entries for tracks no longer in the source tree",
	Long:         `Stale entries are harmless but accumulate; pruning is manual on purpose and never runs as part of a build.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)
		manifest := cache.Load(cfg.CacheFile)

		live := make(map[string]bool)
		entries, err := os.ReadDir(cfg.TracksDir)
		if err != nil {
			return fmt.Errorf("reading tracks root: %w", err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				live[loader.Slugify(entry.Name())] = true
			}
		}

		pruned := 0
		for _, slug := range manifest.Slugs() {
			if !live[slug] {
				manifest.Remove(slug)
				pruned++
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %s\n", slug)
			}
		}
		if pruned == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
			return nil
		}
		if err := manifest.Save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale entr%s from %s\n",
			pruned, plural(pruned, "y", "ies"), filepath.Clean(cfg.CacheFile))
		return nil
	},
}

func shortFP(fp cache.Fingerprint) string {
	if len(fp) > 12 {
		return string(fp[:12])
	}
	return string(fp)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
