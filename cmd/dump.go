package cmd

import (
	"context"
	"fmt"

	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/spf13/cobra"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the daemon's internal state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			dump, err := conn.Dump(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(out(cmd), dump)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}
