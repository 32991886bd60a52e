package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:       "power <on|off|doze|doze_suspend>",
	Short:     "Request the global display power state",
	Long:      `Request the global display power state. Only root, the system user and the user running the daemon may do this.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off", "doze", "doze_suspend"},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := display.ParseDisplayState(args[0])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			if err := conn.RequestDisplayState(ctx, state); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Display state %s requested", state)))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(powerCmd)
}
