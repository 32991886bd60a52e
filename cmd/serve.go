package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/logger"
	"github.com/bnema/displaymgr/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the display manager daemon",
	Long: `Run the display manager daemon. It discovers the local panels, registers
the overlay, cast and auxiliary adapters and serves clients on a unix
socket until interrupted.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("core-only", false, "Only register the local and virtual display adapters")
	serveCmd.Flags().Bool("single-display", false, "Ignore every display except the default one")
	serveCmd.Flags().String("backend", "", "Monitor backend: auto, wlr-randr, compositor, xrandr, none")

	// Bind flags to viper
	viper.BindPFlag("server.core_only", serveCmd.Flags().Lookup("core-only"))
	viper.BindPFlag("server.single_display_demo", serveCmd.Flags().Lookup("single-display"))
	viper.BindPFlag("local.backend", serveCmd.Flags().Lookup("backend"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := *config.Get()
	cfg.Server.SocketPath = daemonSocket()
	if cfg.Local.Backend == "" {
		cfg.Local.Backend = config.DefaultConfig.Local.Backend
	}

	server.Version = Version
	srv, err := server.New(&cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		if errors.Is(err, display.ErrDefaultDisplayTimeout) {
			// Nothing can run without a default display.
			logger.Fatal("default display never appeared", "timeout", cfg.Server.BootTimeout, "err", err)
		}
		return fmt.Errorf("failed to start server: %w", err)
	}

	if path := config.GetConfigPath(); path != "" {
		logger.Debug("configuration", "file", path)
	}
	logger.Info("serving", "socket", srv.SocketPath(), "version", Version)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}
