package cmd

import (
	"fmt"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/monitor"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var monitorsBackend string

var monitorsCmd = &cobra.Command{
	Use:   "monitors",
	Short: "Show the monitors the detection backend reports",
	Long: `Show the monitors the detection backend reports, without the daemon.
These become the local panels when the daemon starts.`,
	Args: cobra.NoArgs,
	RunE: runMonitors,
}

func init() {
	monitorsCmd.Flags().StringVar(&monitorsBackend, "backend", "", "Monitor backend (default from config)")
	monitorsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(monitorsCmd)
}

func runMonitors(cmd *cobra.Command, args []string) error {
	backend := monitorsBackend
	if backend == "" {
		backend = config.Get().Local.Backend
	}

	disp, err := monitor.New(backend)
	if err != nil {
		return fmt.Errorf("failed to initialize monitor detection: %w", err)
	}
	defer disp.Close()

	monitors, err := disp.GetMonitors()
	if err != nil {
		return fmt.Errorf("failed to list monitors: %w", err)
	}

	if jsonOutput {
		return writeJSON(cmd, monitors)
	}
	if len(monitors) == 0 {
		fmt.Fprintln(out(cmd), ui.MutedStyle.Render("No monitors detected"))
		return nil
	}

	fmt.Fprintln(out(cmd), ui.FormatAppHeader("MONITORS", disp.BackendName()))
	fmt.Fprintln(out(cmd), ui.MonitorTable(monitors))
	return nil
}
