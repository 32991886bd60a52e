package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var projectionCmd = &cobra.Command{
	Use:   "projection",
	Short: "Inspect and revoke projection grants",
}

var projectionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the projection grants in the config file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		grants := config.Get().Security.ProjectionGrants
		if len(grants) == 0 {
			fmt.Fprintln(out(cmd), ui.MutedStyle.Render("No projection grants configured"))
			return
		}
		for _, g := range grants {
			fmt.Fprintln(out(cmd), ui.FormatKeyValue(g.Token, g.Type))
		}
	},
}

var projectionRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a projection grant and stop the displays created with it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			revoked, err := conn.RevokeProjection(ctx, args[0])
			if err != nil {
				return err
			}
			if !revoked {
				fmt.Fprintln(out(cmd), ui.FormatWarning(fmt.Sprintf("No active grant %q", args[0])))
				return nil
			}
			fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Revoked %s", args[0])))
			return nil
		})
	},
}

func init() {
	projectionCmd.AddCommand(projectionListCmd)
	projectionCmd.AddCommand(projectionRevokeCmd)
	rootCmd.AddCommand(projectionCmd)
}
