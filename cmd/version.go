package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version info set during build
	Version = "0.1.0-dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Runs without a readable config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(out(cmd), "displaymgr %s\n", Version)
		fmt.Fprintf(out(cmd), "commit: %s\n", Commit)
		fmt.Fprintf(out(cmd), "built: %s\n", Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
