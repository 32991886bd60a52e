package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath    string
	socketPath    string
	logLevel      string
	clientTimeout time.Duration

	rootCmd = &cobra.Command{
		Use:   "displaymgr",
		Short: "displaymgr - display management daemon",
		Long: `displaymgr tracks the physical, overlay, cast and virtual displays of a
machine, maps them to logical displays and tells clients about them over a
local socket.

Run 'displaymgr serve' to start the daemon; the other commands talk to it.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default /etc/displaymgr or ~/.config/displaymgr)")
	rootCmd.PersistentFlags().StringVarP(&socketPath, "socket", "s", "", "Daemon socket path (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 5*time.Second, "Timeout for daemon requests")
}

func initConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch {
	case logLevel != "":
		logger.SetLevel(logLevel)
	case config.Get().Logging.LogLevel != "":
		logger.SetLevel(config.Get().Logging.LogLevel)
	}
	return nil
}

// daemonSocket is the socket clients dial: the flag wins over the config.
func daemonSocket() string {
	if socketPath != "" {
		return socketPath
	}
	return config.Get().Server.SocketPath
}

// withDaemon dials the daemon, runs fn and closes the connection.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, conn *ipc.Conn) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	client := ipc.NewClientWithTimeout(daemonSocket(), clientTimeout)
	err := client.Do(ctx, func(conn *ipc.Conn) error {
		return fn(ctx, conn)
	})
	return daemonError(err)
}

func daemonError(err error) error {
	if errors.Is(err, ipc.ErrNotRunning) {
		return fmt.Errorf("displaymgr daemon is not running at %s", daemonSocket())
	}
	return err
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
