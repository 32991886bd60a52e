package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the status of the display manager daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ipc.NewClientWithTimeout(daemonSocket(), clientTimeout)
		if !client.IsRunning(cmd.Context()) {
			fmt.Fprintln(out(cmd), ui.FormatStatus(false, "displaymgr is not running"))
			return nil
		}

		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			status, err := conn.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get daemon status: %w", err)
			}

			var output strings.Builder
			output.WriteString(ui.FormatAppHeader("DISPLAY MANAGER", status.Version))
			output.WriteString("\n")
			output.WriteString(ui.FormatStatus(true, "Running"))
			output.WriteString("\n\n")
			output.WriteString(ui.FormatKeyValue("PID", strconv.Itoa(status.PID)))
			output.WriteString("\n")
			output.WriteString(ui.FormatKeyValue("Socket", daemonSocket()))
			output.WriteString("\n")
			output.WriteString(ui.FormatKeyValue("Display state", status.DisplayState.String()))
			output.WriteString("\n")
			output.WriteString(ui.FormatKeyValue("Displays", strconv.Itoa(status.DisplayCount)))
			output.WriteString("\n")
			output.WriteString(ui.FormatKeyValue("Adapters", strings.Join(status.Adapters, ", ")))

			fmt.Fprintln(out(cmd), output.String())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
