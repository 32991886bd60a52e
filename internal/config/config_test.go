package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetState(t *testing.T) {
	t.Helper()
	viper.Reset()
	Set(nil)
	configPathOverride = ""
	watchMu.Lock()
	watchStarted = false
	overlayValue = ""
	overlayWatch = nil
	watchMu.Unlock()
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		resetState(t)
		t.Setenv("HOME", t.TempDir())
		oldWd, _ := os.Getwd()
		require.NoError(t, os.Chdir(t.TempDir()))
		defer os.Chdir(oldWd)

		require.NoError(t, Init())

		c := Get()
		require.NotNil(t, c)
		assert.Equal(t, 10*time.Second, c.Server.BootTimeout)
		assert.Equal(t, "auto", c.Local.Backend)
		assert.Equal(t, 1920, c.Local.Width)
		assert.Empty(t, c.Overlay.Devices)
	})

	t.Run("reads an explicit config file", func(t *testing.T) {
		resetState(t)
		path := filepath.Join(t.TempDir(), "displaymgr.toml")
		content := `[server]
socket_path = "/tmp/test-displaymgr.sock"
boot_timeout = "3s"
core_only = true

[overlay]
devices = "720x480/142,secure"

[[security.projection_grants]]
token = "abc"
type = "mirroring"
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		SetConfigPath(path)

		require.NoError(t, Init())

		c := Get()
		assert.Equal(t, "/tmp/test-displaymgr.sock", c.Server.SocketPath)
		assert.Equal(t, 3*time.Second, c.Server.BootTimeout)
		assert.True(t, c.Server.CoreOnly)
		assert.Equal(t, "720x480/142,secure", c.Overlay.Devices)
		require.Len(t, c.Security.ProjectionGrants, 1)
		assert.Equal(t, "mirroring", c.Security.ProjectionGrants[0].Type)
		assert.Equal(t, path, GetConfigPath())
	})

	t.Run("rejects invalid TOML", func(t *testing.T) {
		resetState(t)
		path := filepath.Join(t.TempDir(), "displaymgr.toml")
		require.NoError(t, os.WriteFile(path, []byte("[server\nsocket_path = 1"), 0644))
		SetConfigPath(path)

		assert.Error(t, Init())
	})

	t.Run("rejects an invalid backend", func(t *testing.T) {
		resetState(t)
		path := filepath.Join(t.TempDir(), "displaymgr.toml")
		require.NoError(t, os.WriteFile(path, []byte("[local]\nbackend = \"drm\"\n"), 0644))
		SetConfigPath(path)

		err := Init()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "local.backend")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "empty socket", mutate: func(c *Config) { c.Server.SocketPath = "" }, wantErr: true},
		{name: "negative boot timeout", mutate: func(c *Config) { c.Server.BootTimeout = -time.Second }, wantErr: true},
		{name: "zero fallback width", mutate: func(c *Config) { c.Local.Width = 0 }, wantErr: true},
		{name: "negative poll interval", mutate: func(c *Config) { c.Local.PollInterval = -1 }, wantErr: true},
		{name: "zero refresh rate", mutate: func(c *Config) { c.Local.RefreshRate = 0 }, wantErr: true},
		{
			name: "auxiliary with unknown bus",
			mutate: func(c *Config) {
				c.Auxiliary.Enabled = true
				c.Auxiliary.Bus = "tcp"
			},
			wantErr: true,
		},
		{
			name: "auxiliary disabled ignores bus",
			mutate: func(c *Config) {
				c.Auxiliary.Bus = "tcp"
			},
		},
		{
			name: "grant with unknown type",
			mutate: func(c *Config) {
				c.Security.ProjectionGrants = []ProjectionGrantConfig{{Token: "t", Type: "remote"}}
			},
			wantErr: true,
		},
		{
			name: "duplicate grant token",
			mutate: func(c *Config) {
				c.Security.ProjectionGrants = []ProjectionGrantConfig{
					{Token: "t", Type: "mirroring"},
					{Token: "t", Type: "presentation"},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig
			c.Security.ProjectionGrants = nil
			tt.mutate(&c)
			err := Validate(&c)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverlayWatchers(t *testing.T) {
	resetState(t)
	Set(&Config{Overlay: OverlayConfig{Devices: "100x100/160"}})

	calls := 0
	Overlay{}.WatchOverlayDisplayDevices(func() { calls++ })
	assert.Equal(t, "100x100/160", Overlay{}.OverlayDisplayDevices())

	// Same value does not fire.
	notifyOverlayWatchers("100x100/160")
	assert.Equal(t, 0, calls)

	notifyOverlayWatchers("200x200/160")
	assert.Equal(t, 1, calls)

	notifyOverlayWatchers("200x200/160")
	assert.Equal(t, 1, calls)
}

func TestSetOverlayDevices(t *testing.T) {
	resetState(t)
	path := filepath.Join(t.TempDir(), "displaymgr.toml")
	SetConfigPath(path)
	require.NoError(t, Init())

	var got []string
	Overlay{}.WatchOverlayDisplayDevices(func() { got = append(got, Overlay{}.OverlayDisplayDevices()) })

	require.NoError(t, SetOverlayDevices("1280x720/213"))
	assert.Equal(t, []string{"1280x720/213"}, got)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1280x720/213")
}

func TestWatchPicksUpFileCreatedLater(t *testing.T) {
	resetState(t)
	t.Setenv("HOME", t.TempDir())
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(oldWd)

	require.NoError(t, Init())
	require.Empty(t, viper.ConfigFileUsed())

	// Nothing was loaded and the directory does not exist yet.
	path := filepath.Join(t.TempDir(), "displaymgr", "displaymgr.toml")
	configPathOverride = path

	var calls atomic.Int32
	Overlay{}.WatchOverlayDisplayDevices(func() { calls.Add(1) })

	Watch()
	require.DirExists(t, filepath.Dir(path))

	require.NoError(t, os.WriteFile(path, []byte("[overlay]\ndevices = \"1280x720/213\"\n"), 0644))

	require.Eventually(t, func() bool {
		return calls.Load() > 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "1280x720/213", Overlay{}.OverlayDisplayDevices())
	assert.Equal(t, int32(1), calls.Load())
}
