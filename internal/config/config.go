// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bnema/displaymgr/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config represents the daemon configuration
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Local panel discovery
	Local LocalConfig `mapstructure:"local"`

	// Developer overlay displays
	Overlay OverlayConfig `mapstructure:"overlay"`

	// Auxiliary off-screen surface
	Auxiliary AuxiliaryConfig `mapstructure:"auxiliary"`

	// Capture permissions and projection grants
	Security SecurityConfig `mapstructure:"security"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig contains daemon-wide settings
type ServerConfig struct {
	SocketPath        string        `mapstructure:"socket_path"`
	BootTimeout       time.Duration `mapstructure:"boot_timeout"`
	CoreOnly          bool          `mapstructure:"core_only"`           // Only register the local and virtual adapters
	SingleDisplayDemo bool          `mapstructure:"single_display_demo"` // Ignore every non-default display
}

// LocalConfig controls how physical outputs are discovered
type LocalConfig struct {
	Backend      string        `mapstructure:"backend"` // auto, wlr-randr, compositor, xrandr, none
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Width        int           `mapstructure:"width"` // Fallback panel when no backend answers
	Height       int           `mapstructure:"height"`
	Density      int           `mapstructure:"density"`
	RefreshRate  float64       `mapstructure:"refresh_rate"`
}

// OverlayConfig holds the overlay display setting string
type OverlayConfig struct {
	Devices string `mapstructure:"devices"` // e.g. "1280x720/213;1920x1080/320,secure"
}

// AuxiliaryConfig locates the D-Bus service reporting the off-screen surface size
type AuxiliaryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bus       string `mapstructure:"bus"` // session or system
	Service   string `mapstructure:"service"`
	Path      string `mapstructure:"path"`
	Interface string `mapstructure:"interface"`
}

// SecurityConfig maps uids to capture permissions
type SecurityConfig struct {
	CaptureVideoUIDs       []int                   `mapstructure:"capture_video_uids"`
	CaptureSecureVideoUIDs []int                   `mapstructure:"capture_secure_video_uids"`
	ProjectionGrants       []ProjectionGrantConfig `mapstructure:"projection_grants"`
}

// ProjectionGrantConfig describes one pre-issued projection grant
type ProjectionGrantConfig struct {
	Token string `mapstructure:"token"`
	Type  string `mapstructure:"type"` // mirroring, screen_capture, presentation
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Server: ServerConfig{
			SocketPath:        defaultSocketPath(),
			BootTimeout:       10 * time.Second,
			CoreOnly:          false,
			SingleDisplayDemo: false,
		},
		Local: LocalConfig{
			Backend:      "auto",
			PollInterval: 0,
			Width:        1920,
			Height:       1080,
			Density:      160,
			RefreshRate:  60,
		},
		Overlay: OverlayConfig{
			Devices: "",
		},
		Auxiliary: AuxiliaryConfig{
			Enabled:   false,
			Bus:       "session",
			Service:   "org.displaymgr.Auxiliary",
			Path:      "/org/displaymgr/Auxiliary",
			Interface: "org.displaymgr.Auxiliary",
		},
		Security: SecurityConfig{
			CaptureVideoUIDs:       []int{},
			CaptureSecureVideoUIDs: []int{},
			ProjectionGrants:       []ProjectionGrantConfig{},
		},
		Logging: LoggingConfig{
			LogLevel: "", // Empty means use LOG_LEVEL env var
		},
	}

	// Global config instance
	cfg   *Config
	cfgMu sync.RWMutex

	// Override config path if set
	configPathOverride string

	watchMu      sync.Mutex
	watchStarted bool
	overlayValue string
	overlayWatch []func()
)

var validBackends = map[string]bool{
	"auto":       true,
	"wlr-randr":  true,
	"compositor": true,
	"xrandr":     true,
	"none":       true,
}

var validGrantTypes = map[string]bool{
	"mirroring":      true,
	"screen_capture": true,
	"presentation":   true,
}

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("displaymgr")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath("/etc/displaymgr")
		if home := os.Getenv("HOME"); home != "" {
			viper.AddConfigPath(filepath.Join(home, ".config", "displaymgr"))
		}
		viper.AddConfigPath(".")
	}

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	return reload()
}

func setDefaults() {
	viper.SetDefault("server.socket_path", DefaultConfig.Server.SocketPath)
	viper.SetDefault("server.boot_timeout", DefaultConfig.Server.BootTimeout)
	viper.SetDefault("server.core_only", DefaultConfig.Server.CoreOnly)
	viper.SetDefault("server.single_display_demo", DefaultConfig.Server.SingleDisplayDemo)

	viper.SetDefault("local.backend", DefaultConfig.Local.Backend)
	viper.SetDefault("local.poll_interval", DefaultConfig.Local.PollInterval)
	viper.SetDefault("local.width", DefaultConfig.Local.Width)
	viper.SetDefault("local.height", DefaultConfig.Local.Height)
	viper.SetDefault("local.density", DefaultConfig.Local.Density)
	viper.SetDefault("local.refresh_rate", DefaultConfig.Local.RefreshRate)

	viper.SetDefault("overlay.devices", DefaultConfig.Overlay.Devices)

	viper.SetDefault("auxiliary.enabled", DefaultConfig.Auxiliary.Enabled)
	viper.SetDefault("auxiliary.bus", DefaultConfig.Auxiliary.Bus)
	viper.SetDefault("auxiliary.service", DefaultConfig.Auxiliary.Service)
	viper.SetDefault("auxiliary.path", DefaultConfig.Auxiliary.Path)
	viper.SetDefault("auxiliary.interface", DefaultConfig.Auxiliary.Interface)

	viper.SetDefault("security.capture_video_uids", DefaultConfig.Security.CaptureVideoUIDs)
	viper.SetDefault("security.capture_secure_video_uids", DefaultConfig.Security.CaptureSecureVideoUIDs)
	viper.SetDefault("security.projection_grants", DefaultConfig.Security.ProjectionGrants)

	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)
}

// reload unmarshals the viper state into a fresh Config and validates it.
func reload() error {
	next := &Config{}
	if err := viper.Unmarshal(next); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := Validate(next); err != nil {
		return err
	}
	Set(next)
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func Validate(c *Config) error {
	if c.Server.SocketPath == "" {
		return fmt.Errorf("server.socket_path must not be empty")
	}
	if c.Server.BootTimeout < 0 {
		return fmt.Errorf("server.boot_timeout must not be negative")
	}
	if !validBackends[c.Local.Backend] {
		return fmt.Errorf("local.backend %q is not one of auto, wlr-randr, compositor, xrandr, none", c.Local.Backend)
	}
	if c.Local.PollInterval < 0 {
		return fmt.Errorf("local.poll_interval must not be negative")
	}
	if c.Local.Width <= 0 || c.Local.Height <= 0 || c.Local.Density <= 0 {
		return fmt.Errorf("local width, height and density must be greater than 0")
	}
	if c.Local.RefreshRate <= 0 {
		return fmt.Errorf("local.refresh_rate must be greater than 0")
	}
	if c.Auxiliary.Enabled {
		if c.Auxiliary.Bus != "session" && c.Auxiliary.Bus != "system" {
			return fmt.Errorf("auxiliary.bus must be session or system, got %q", c.Auxiliary.Bus)
		}
		if c.Auxiliary.Service == "" || c.Auxiliary.Path == "" || c.Auxiliary.Interface == "" {
			return fmt.Errorf("auxiliary service, path and interface are required when enabled")
		}
	}
	seen := make(map[string]bool)
	for _, g := range c.Security.ProjectionGrants {
		if g.Token == "" {
			return fmt.Errorf("projection grant with empty token")
		}
		if seen[g.Token] {
			return fmt.Errorf("duplicate projection grant token %q", g.Token)
		}
		seen[g.Token] = true
		if !validGrantTypes[g.Type] {
			return fmt.Errorf("projection grant %q has unknown type %q", g.Token, g.Type)
		}
	}
	return nil
}

// Get returns the current configuration
func Get() *Config {
	cfgMu.RLock()
	defer cfgMu.RUnlock()
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfgMu.Lock()
	cfg = c
	cfgMu.Unlock()
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	if os.Getuid() == 0 {
		return "/etc/displaymgr/displaymgr.toml"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "/etc/displaymgr/displaymgr.toml"
	}

	return filepath.Join(home, ".config", "displaymgr", "displaymgr.toml")
}

// SetOverlayDevices replaces the overlay setting, persists it and notifies
// watchers as a file change would.
func SetOverlayDevices(value string) error {
	viper.Set("overlay.devices", value)
	if err := reload(); err != nil {
		return err
	}
	if err := Save(); err != nil {
		return err
	}
	notifyOverlayWatchers(value)
	return nil
}

// Overlay adapts the live overlay setting to the display manager's
// settings interface.
type Overlay struct{}

// OverlayDisplayDevices returns the current overlay setting string.
func (Overlay) OverlayDisplayDevices() string {
	return Get().Overlay.Devices
}

// WatchOverlayDisplayDevices registers fn to run whenever the overlay
// setting changed.
func (Overlay) WatchOverlayDisplayDevices(fn func()) {
	watchMu.Lock()
	defer watchMu.Unlock()
	if len(overlayWatch) == 0 {
		overlayValue = Get().Overlay.Devices
	}
	overlayWatch = append(overlayWatch, fn)
}

// Watch starts watching the config file. Valid changes replace the current
// configuration and fire the overlay watchers. When no file was loaded the
// path reported by GetConfigPath is watched, so a file created later (for
// example by "overlay set") is picked up.
func Watch() {
	watchMu.Lock()
	if watchStarted {
		watchMu.Unlock()
		return
	}
	watchStarted = true
	watchMu.Unlock()

	if viper.ConfigFileUsed() == "" {
		path := GetConfigPath()
		// The watch is on the directory; it must exist for Add to succeed.
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			logger.Warn("cannot watch config directory", "path", path, "err", err)
		}
		viper.SetConfigFile(path)
	}

	viper.OnConfigChange(onConfigChange)
	viper.WatchConfig()
}

func onConfigChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	if err := reload(); err != nil {
		// Keep running on the last good configuration.
		logger.Warn("ignoring invalid config change", "file", e.Name, "err", err)
		return
	}
	notifyOverlayWatchers(Get().Overlay.Devices)
}

func notifyOverlayWatchers(value string) {
	watchMu.Lock()
	if value == overlayValue {
		watchMu.Unlock()
		return
	}
	overlayValue = value
	fns := make([]func(), len(overlayWatch))
	copy(fns, overlayWatch)
	watchMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "displaymgr.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("displaymgr-%d.sock", os.Getuid()))
}
