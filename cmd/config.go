package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bnema/displaymgr/internal/config"
	"github.com/bnema/displaymgr/internal/logger"
	"github.com/bnema/displaymgr/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage displaymgr configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(out(cmd), renderConfig(config.Get(), config.GetConfigPath()))
	},
}

func renderConfig(cfg *config.Config, path string) string {
	var b strings.Builder
	line := func(key, value string) {
		b.WriteString("  ")
		b.WriteString(ui.FormatKeyValue(key, value))
		b.WriteString("\n")
	}
	section := func(name string) {
		b.WriteString("\n")
		b.WriteString(ui.SubheaderStyle.Render("[" + name + "]"))
		b.WriteString("\n")
	}

	b.WriteString(ui.FormatAppHeader("CONFIGURATION", path))
	b.WriteString("\n")

	section("server")
	line("socket_path", cfg.Server.SocketPath)
	line("boot_timeout", cfg.Server.BootTimeout.String())
	line("core_only", strconv.FormatBool(cfg.Server.CoreOnly))
	line("single_display", strconv.FormatBool(cfg.Server.SingleDisplayDemo))

	section("local")
	line("backend", cfg.Local.Backend)
	line("poll_interval", cfg.Local.PollInterval.String())
	line("fallback", fmt.Sprintf("%dx%d/%d @ %.0f Hz", cfg.Local.Width, cfg.Local.Height, cfg.Local.Density, cfg.Local.RefreshRate))

	section("overlay")
	line("devices", valueOrNone(cfg.Overlay.Devices))

	section("auxiliary")
	line("enabled", strconv.FormatBool(cfg.Auxiliary.Enabled))
	if cfg.Auxiliary.Enabled {
		line("bus", cfg.Auxiliary.Bus)
		line("service", cfg.Auxiliary.Service)
		line("path", cfg.Auxiliary.Path)
		line("interface", cfg.Auxiliary.Interface)
	}

	section("security")
	line("capture_video", intsOrNone(cfg.Security.CaptureVideoUIDs))
	line("capture_secure", intsOrNone(cfg.Security.CaptureSecureVideoUIDs))
	line("grants", strconv.Itoa(len(cfg.Security.ProjectionGrants)))

	section("logging")
	line("log_level", valueOrNone(cfg.Logging.LogLevel))

	return strings.TrimRight(b.String(), "\n")
}

func valueOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func intsOrNone(values []int) string {
	if len(values) == 0 {
		return "(none)"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}
		fmt.Fprintln(out(cmd), ui.FormatResult(true, fmt.Sprintf("Configuration initialized at: %s", configPath)))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(out(cmd), config.GetConfigPath())
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	rootCmd.AddCommand(configCmd)
}
