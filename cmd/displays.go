package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var jsonOutput bool

var displaysCmd = &cobra.Command{
	Use:     "displays",
	Aliases: []string{"list", "ls"},
	Short:   "List the logical displays visible to you",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			infos, err := listDisplays(ctx, conn)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out(cmd), ui.MutedStyle.Render("No displays"))
				return nil
			}
			fmt.Fprintln(out(cmd), ui.DisplayTable(infos))
			return nil
		})
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <display-id>",
	Short: "Show everything known about one display",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		displayID, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid display id %q", args[0])
		}
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			info, ok, err := conn.DisplayInfo(ctx, displayID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("display %d does not exist or is not visible to you", displayID)
			}
			if jsonOutput {
				return writeJSON(cmd, info)
			}
			fmt.Fprintln(out(cmd), ui.DisplayDetails(info))
			return nil
		})
	},
}

// listDisplays fetches every visible display. Displays removed between
// the two calls are skipped.
func listDisplays(ctx context.Context, conn *ipc.Conn) ([]display.DisplayInfo, error) {
	ids, err := conn.DisplayIDs(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]display.DisplayInfo, 0, len(ids))
	for _, id := range ids {
		info, ok, err := conn.DisplayInfo(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(out(cmd))
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	displaysCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	infoCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.AddCommand(displaysCmd)
	rootCmd.AddCommand(infoCmd)
}
