package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print display added, changed and removed events until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conn, err := ipc.NewClientWithTimeout(daemonSocket(), clientTimeout).Dial(ctx)
		if err != nil {
			return daemonError(err)
		}
		defer conn.Close()

		fmt.Fprintln(out(cmd), ui.SubtleStyle.Render("Watching display events, Ctrl+C to stop"))
		err = conn.Watch(ctx, func(displayID int, event display.DisplayEvent) {
			fmt.Fprintln(out(cmd), formatDisplayEvent(time.Now(), displayID, event))
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func formatDisplayEvent(at time.Time, displayID int, event display.DisplayEvent) string {
	style := ui.InfoStyle
	switch event {
	case display.EventDisplayAdded:
		style = ui.SuccessStyle
	case display.EventDisplayRemoved:
		style = ui.ErrorStyle
	}
	return fmt.Sprintf("%s %s display %d",
		ui.MutedStyle.Render(at.Format("15:04:05")), style.Render(event.String()), displayID)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
