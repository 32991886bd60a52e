package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var viewportsCmd = &cobra.Command{
	Use:   "viewports",
	Short: "Show the input viewports of the default and external touch displays",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			defaultViewport, externalTouch, err := conn.Viewports(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), lipgloss.JoinHorizontal(lipgloss.Top,
				ui.ViewportDetails("Default", defaultViewport),
				" ",
				ui.ViewportDetails("External touch", externalTouch),
			))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(viewportsCmd)
}
