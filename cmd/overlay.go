package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var overlayCmd = &cobra.Command{
	Use:   "overlay",
	Short: "Manage the developer overlay displays",
	Long: `Manage the developer overlay displays. The overlay setting lists one or
more displays separated by ';'. Each display is one or more modes joined by
'|', every mode written <width>x<height>/<dpi>, optionally followed by
',secure':

  1280x720/213;1920x1080/320|3840x2160/640,secure`,
}

var overlayShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the overlay setting",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		devices := config.Get().Overlay.Devices
		if devices == "" {
			fmt.Fprintln(out(cmd), ui.MutedStyle.Render("No overlay displays configured"))
			return
		}
		fmt.Fprintln(out(cmd), devices)
	},
}

var overlaySetCmd = &cobra.Command{
	Use:   "set [devices]",
	Short: "Replace the overlay setting; omit devices to remove every overlay",
	Long: `Replace the overlay setting and save it to the config file. A running
daemon watching that file recreates its overlay displays.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		devices := ""
		if len(args) == 1 {
			devices = args[0]
		}
		if err := validateOverlaySetting(devices); err != nil {
			return err
		}
		if err := config.SetOverlayDevices(devices); err != nil {
			return err
		}
		fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Overlay setting saved to %s", config.GetConfigPath())))
		return nil
	},
}

// validateOverlaySetting rejects settings the daemon would partly or
// wholly ignore.
func validateOverlaySetting(value string) error {
	quiet := log.New(io.Discard)
	parts := 0
	for _, part := range strings.Split(value, ";") {
		if part == "" {
			continue
		}
		parts++
		if len(display.ParseOverlaySetting(part, quiet)) == 0 {
			return fmt.Errorf("%w: overlay display %q has no valid mode", display.ErrInvalidArgument, part)
		}
	}
	if kept := len(display.ParseOverlaySetting(value, quiet)); kept < parts {
		return fmt.Errorf("%w: %d overlay displays given, at most %d are supported", display.ErrInvalidArgument, parts, kept)
	}
	return nil
}

var overlayModeCmd = &cobra.Command{
	Use:   "mode <number> <mode-index>",
	Short: "Switch an overlay display to another of its modes",
	Long:  `Switch overlay display <number> (1-based, in setting order) to the mode at <mode-index> (0-based).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		number, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid overlay number %q", args[0])
		}
		mode, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid mode index %q", args[1])
		}
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			if err := conn.SetOverlayMode(ctx, number, mode); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Overlay %d switched to mode %d", number, mode)))
			return nil
		})
	},
}

func init() {
	overlayCmd.AddCommand(overlayShowCmd)
	overlayCmd.AddCommand(overlaySetCmd)
	overlayCmd.AddCommand(overlayModeCmd)
	rootCmd.AddCommand(overlayCmd)
}
