package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"trackforge/cache"
	"trackforge/config"
	"trackforge/model"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run one incremental publish: encode, upload, render",
	Long: `Scans the tracks directory, encodes and uploads whatever changed since
the last run, and atomically replaces the rendered site. A single bad track
is reported and skipped; the run only fails when nothing could be published.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogging(cfg)

		// SIGINT/SIGTERM let in-flight tracks finish, then the cache is
		// saved and the site swap is skipped.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		manifest := cache.Load(cfg.CacheFile)
		p, err := newPipeline(cfg, manifest)
		if err != nil {
			return err
		}

		results, runErr := p.Run(ctx)
		printSummary(cmd.OutOrStdout(), results)
		if runErr != nil {
			return runErr
		}

		if sum := model.Summarize(results); sum.Failure() {
			return errors.New("build failed: no track could be published")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

// printSummary renders the per-track outcomes and the aggregate counts.
func printSummary(out io.Writer, results []model.BuildResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No tracks found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Track", "Result", "Detail"})
	for _, r := range results {
		name := r.Title
		if name == "" {
			name = r.Slug
		}
		t.AppendRow(table.Row{name, string(r.Kind), r.Reason})
	}

	sum := model.Summarize(results)
	t.AppendFooter(table.Row{"", "",
		fmt.Sprintf("published %d, skipped %d, failed %d, invalid %d, cancelled %d",
			sum.Published, sum.Skipped, sum.Failed, sum.Invalid, sum.Cancelled)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})
	t.SetStyle(table.StyleLight)
	t.Render()
}
