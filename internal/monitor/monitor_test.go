package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	monitors []*Monitor
	err      error
}

func (f *fakeBackend) Name() string                     { return "fake" }
func (f *fakeBackend) GetMonitors() ([]*Monitor, error) { return f.monitors, f.err }
func (f *fakeBackend) Close() error                     { return nil }

func TestDeterminePrimaryMonitor(t *testing.T) {
	tests := []struct {
		name     string
		monitors []*Monitor
		want     string
	}{
		{
			name: "origin wins",
			monitors: []*Monitor{
				{ID: "DP-1", X: 1920},
				{ID: "eDP-1", X: 0, Y: 0},
			},
			want: "eDP-1",
		},
		{
			name: "first when nothing at origin",
			monitors: []*Monitor{
				{ID: "DP-1", X: 100},
				{ID: "DP-2", X: 2020},
			},
			want: "DP-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			determinePrimaryMonitor(tt.monitors)
			for _, m := range tt.monitors {
				assert.Equal(t, m.ID == tt.want, m.Primary, m.ID)
			}
		})
	}
}

func TestGetMonitorsKeepsSinglePrimary(t *testing.T) {
	d := NewWithBackend(&fakeBackend{monitors: []*Monitor{
		{ID: "a", X: 10, Primary: true},
		{ID: "b", Primary: true},
	}})

	monitors, err := d.GetMonitors()
	require.NoError(t, err)
	assert.True(t, monitors[0].Primary)
	assert.False(t, monitors[1].Primary)

	primary, err := d.GetPrimaryMonitor()
	require.NoError(t, err)
	assert.Equal(t, "a", primary.ID)
}

func TestGetMonitorsPropagatesErrors(t *testing.T) {
	d := NewWithBackend(&fakeBackend{err: errors.New("boom")})
	_, err := d.GetMonitors()
	assert.Error(t, err)
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	_, err := New("drm")
	assert.Error(t, err)

	_, err = New(BackendNone)
	assert.Error(t, err)
}

func TestParseWlrRandrJSON(t *testing.T) {
	data := []byte(`[
	  {"name":"eDP-1","enabled":true,"physical_size":{"width":310,"height":170},
	   "modes":[{"width":2560,"height":1440,"refresh":165.0,"current":false},
	            {"width":1920,"height":1080,"refresh":60.0,"current":true}],
	   "position":{"x":0,"y":0},"transform":"90","scale":1.25},
	  {"name":"DP-2","enabled":false,"modes":[],"position":{"x":0,"y":0}},
	  {"name":"HDMI-A-1","enabled":true,
	   "modes":[{"width":1280,"height":720,"refresh":50.0,"current":true}],
	   "position":{"x":1920,"y":0},"transform":"normal","scale":1.0}
	]`)

	monitors, err := parseWlrRandrJSON(data)
	require.NoError(t, err)
	require.Len(t, monitors, 2)

	edp := monitors[0]
	assert.Equal(t, "eDP-1", edp.ID)
	assert.Equal(t, 1920, edp.Width)
	assert.Equal(t, 1080, edp.Height)
	assert.Equal(t, 60.0, edp.RefreshRate)
	assert.Equal(t, 1, edp.Transform)
	assert.True(t, edp.Primary)

	xdpi, ydpi, ok := edp.DPI()
	require.True(t, ok)
	assert.InDelta(t, 157.3, xdpi, 0.1)
	assert.InDelta(t, 161.4, ydpi, 0.1)

	assert.False(t, monitors[1].Primary)
	_, _, ok = monitors[1].DPI()
	assert.False(t, ok)
}

func TestParseWlrRandrText(t *testing.T) {
	output := `eDP-1 "BOE 0x0BCA (eDP-1)"
  Physical size: 310x170 mm
  Enabled: yes
  Modes:
    1920x1080 px, 60.000000 Hz (preferred, current)
  Position: 0,0
  Transform: normal
  Scale: 1.000000
DP-1 "Dell"
  Enabled: no
  Modes:
    2560x1440 px, 59.951000 Hz (preferred, current)
HDMI-A-1 "LG"
  Enabled: yes
  Modes:
    3840x2160 px, 30.000000 Hz (current)
  Position: 1920,0
  Transform: 270
  Scale: 2.000000
`
	monitors, err := parseWlrRandrText(output)
	require.NoError(t, err)
	require.Len(t, monitors, 2)

	assert.Equal(t, "eDP-1", monitors[0].Name)
	assert.Equal(t, 1920, monitors[0].Width)
	assert.Equal(t, 310, monitors[0].PhysicalWidthMM)
	assert.True(t, monitors[0].Primary)

	assert.Equal(t, "HDMI-A-1", monitors[1].Name)
	assert.Equal(t, 1920, monitors[1].X)
	assert.Equal(t, 3840, monitors[1].Width)
	assert.Equal(t, 3, monitors[1].Transform)
	assert.Equal(t, 2.0, monitors[1].Scale)
}

func TestParseHyprctlMonitors(t *testing.T) {
	data := []byte(`[
	  {"id":1,"name":"DP-1","width":2560,"height":1440,"refreshRate":143.9,"x":1920,"y":0,"scale":1,"transform":0,"focused":true},
	  {"id":0,"name":"eDP-1","width":1920,"height":1080,"refreshRate":60,"x":0,"y":0,"scale":1,"transform":2}
	]`)
	monitors, err := parseHyprctlMonitors(data)
	require.NoError(t, err)
	require.Len(t, monitors, 2)
	assert.False(t, monitors[0].Primary)
	assert.True(t, monitors[1].Primary)
	assert.Equal(t, 2, monitors[1].Transform)
}

func TestParseSwayOutputs(t *testing.T) {
	data := []byte(`[
	  {"name":"HDMI-A-1","active":true,"primary":false,"transform":"normal","scale":1,
	   "rect":{"x":1920,"y":0},"current_mode":{"width":1920,"height":1080,"refresh":60000}},
	  {"name":"eDP-1","active":true,"primary":false,"transform":"90","scale":1,
	   "rect":{"x":0,"y":0},"current_mode":{"width":1920,"height":1200,"refresh":59950}},
	  {"name":"DP-3","active":false}
	]`)
	monitors, err := parseSwayOutputs(data)
	require.NoError(t, err)
	require.Len(t, monitors, 2)
	assert.True(t, monitors[1].Primary)
	assert.InDelta(t, 59.95, monitors[1].RefreshRate, 0.001)
	assert.Equal(t, 1, monitors[1].Transform)
}

func TestParseTransform(t *testing.T) {
	tests := map[string]int{
		"normal":     0,
		"90":         1,
		"180":        2,
		"270":        3,
		"flipped-90": 1,
		"flipped":    0,
		"":           0,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseTransform(in), in)
	}
}
