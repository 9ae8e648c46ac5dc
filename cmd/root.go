package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackforge",
	Short: "trackforge publishes a music portfolio as a static site.",
	Long: `trackforge turns a directory of track folders (audio + metadata + cover)
into a deployable static site, encoding audio for streaming and mirroring
it to object storage. Repeated builds only redo what changed.`,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
