package cmd

import (
	"context"
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

var castScanDuration time.Duration

var castCmd = &cobra.Command{
	Use:   "cast",
	Short: "Discover cast displays",
}

var castScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for cast displays and print display events while scanning",
	Long: `Scan for cast displays. Scanning needs a registered listener, so the
command stays connected and prints display events until the duration ends
or it is interrupted. The scan stops when it exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if castScanDuration > 0 {
			var stop context.CancelFunc
			ctx, stop = context.WithTimeout(ctx, castScanDuration)
			defer stop()
		}

		conn, err := ipc.NewClientWithTimeout(daemonSocket(), clientTimeout).Dial(ctx)
		if err != nil {
			return daemonError(err)
		}
		defer conn.Close()

		if err := conn.RegisterListener(ctx); err != nil {
			return err
		}
		if err := conn.StartCastScan(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out(cmd), ui.SubtleStyle.Render("Scanning for cast displays, Ctrl+C to stop"))

		err = printDisplayEvents(ctx, cmd, conn)

		stopCtx, stopCancel := context.WithTimeout(context.Background(), clientTimeout)
		defer stopCancel()
		if stopErr := conn.StopCastScan(stopCtx); stopErr != nil && err == nil {
			err = stopErr
		}
		return err
	},
}

// printDisplayEvents prints pushed display events until ctx ends or the
// connection drops.
func printDisplayEvents(ctx context.Context, cmd *cobra.Command, conn *ipc.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-conn.Events():
			if !ok {
				return fmt.Errorf("connection to the daemon closed")
			}
			if id, event, ok := ipc.DecodeDisplayEvent(msg); ok {
				fmt.Fprintln(out(cmd), formatDisplayEvent(time.Now(), id, event))
				if event == display.EventDisplayAdded {
					printAddedDisplay(ctx, cmd, conn, id)
				}
			}
		}
	}
}

func printAddedDisplay(ctx context.Context, cmd *cobra.Command, conn *ipc.Conn, displayID int) {
	info, ok, err := conn.DisplayInfo(ctx, displayID)
	if err != nil || !ok {
		return
	}
	fmt.Fprintf(out(cmd), "  %s %s %dx%d\n", ui.SubheaderStyle.Render(info.Name), info.Type, info.AppWidth, info.AppHeight)
}

func init() {
	castScanCmd.Flags().DurationVar(&castScanDuration, "duration", 0, "Stop scanning after this long (0 scans until interrupted)")
	castCmd.AddCommand(castScanCmd)
	rootCmd.AddCommand(castCmd)
}
