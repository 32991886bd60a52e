package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var (
	virtualName       string
	virtualSize       string
	virtualDensity    int
	virtualSurface    string
	virtualFlags      string
	virtualProjection string
)

var virtualCmd = &cobra.Command{
	Use:   "virtual",
	Short: "Create and manage virtual displays",
	Long: `Create and manage virtual displays. A virtual display lives as long as
the 'virtual create' process that made it; the other subcommands address it
by its token.`,
}

var virtualCreateCmd = &cobra.Command{
	Use:   "create <token>",
	Short: "Create a virtual display and keep it until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]
		width, height, err := parseSize(virtualSize)
		if err != nil {
			return err
		}
		flags, err := display.ParseVirtualDisplayFlags(virtualFlags)
		if err != nil {
			return err
		}
		name := virtualName
		if name == "" {
			name = token
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conn, err := ipc.NewClientWithTimeout(daemonSocket(), clientTimeout).Dial(ctx)
		if err != nil {
			return daemonError(err)
		}
		defer conn.Close()

		displayID, err := conn.CreateVirtualDisplay(ctx, ipc.VirtualDisplaySpec{
			Token:      token,
			Name:       name,
			Width:      width,
			Height:     height,
			DensityDPI: virtualDensity,
			Surface:    virtualSurface,
			Flags:      flags,
			Projection: virtualProjection,
		})
		if err != nil {
			return fmt.Errorf("failed to create virtual display: %w", err)
		}
		fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Virtual display %q created as display %d", name, displayID)))
		fmt.Fprintln(out(cmd), ui.SubtleStyle.Render("Ctrl+C releases it"))

		return followCallbacks(ctx, cmd, conn, token)
	},
}

// followCallbacks prints lifecycle callbacks for token until ctx ends, the
// connection drops or the display is stopped.
func followCallbacks(ctx context.Context, cmd *cobra.Command, conn *ipc.Conn, token string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-conn.Events():
			if !ok {
				return fmt.Errorf("connection to the daemon closed")
			}
			got, callback, ok := ipc.DecodeVirtualCallbackEvent(msg)
			if !ok || got != token {
				continue
			}
			switch callback {
			case ipc.CallbackStopped:
				fmt.Fprintln(out(cmd), ui.FormatWarning("Virtual display stopped"))
				return nil
			case ipc.CallbackPaused:
				fmt.Fprintln(out(cmd), ui.SubtleStyle.Render("paused"))
			case ipc.CallbackResumed:
				fmt.Fprintln(out(cmd), ui.InfoStyle.Render("resumed"))
			}
		}
	}
}

var virtualResizeCmd = &cobra.Command{
	Use:   "resize <token> <width>x<height>",
	Short: "Resize a virtual display",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		width, height, err := parseSize(args[1])
		if err != nil {
			return err
		}
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			if err := conn.ResizeVirtualDisplay(ctx, args[0], width, height, virtualDensity); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Resized %s to %dx%d", args[0], width, height)))
			return nil
		})
	},
}

var virtualSurfaceCmd = &cobra.Command{
	Use:   "surface <token> [surface]",
	Short: "Attach a surface to a virtual display, or detach it when omitted",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		surface := ""
		if len(args) == 2 {
			surface = args[1]
		}
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			if err := conn.SetVirtualDisplaySurface(ctx, args[0], surface); err != nil {
				return err
			}
			if surface == "" {
				fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Detached the surface of %s", args[0])))
			} else {
				fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Attached %s to %s", surface, args[0])))
			}
			return nil
		})
	},
}

var virtualReleaseCmd = &cobra.Command{
	Use:   "release <token>",
	Short: "Release a virtual display",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, conn *ipc.Conn) error {
			if err := conn.ReleaseVirtualDisplay(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Released %s", args[0])))
			return nil
		})
	},
}

// parseSize parses "<width>x<height>".
func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid size %q, expected <width>x<height>", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid width in %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid height in %q", s)
	}
	return width, height, nil
}

func init() {
	virtualCreateCmd.Flags().StringVarP(&virtualName, "name", "n", "", "Display name (defaults to the token)")
	virtualCreateCmd.Flags().StringVar(&virtualSize, "size", "1280x720", "Size as <width>x<height>")
	virtualCreateCmd.Flags().StringVar(&virtualSurface, "surface", "", "Surface to render into")
	virtualCreateCmd.Flags().StringVar(&virtualFlags, "flags", "", "Comma separated flags: public, presentation, secure, own_content_only, auto_mirror")
	virtualCreateCmd.Flags().StringVar(&virtualProjection, "projection", "", "Projection grant token")
	for _, c := range []*cobra.Command{virtualCreateCmd, virtualResizeCmd} {
		c.Flags().IntVarP(&virtualDensity, "density", "d", 160, "Density in dpi")
	}

	virtualCmd.AddCommand(virtualCreateCmd)
	virtualCmd.AddCommand(virtualResizeCmd)
	virtualCmd.AddCommand(virtualSurfaceCmd)
	virtualCmd.AddCommand(virtualReleaseCmd)
	rootCmd.AddCommand(virtualCmd)
}
