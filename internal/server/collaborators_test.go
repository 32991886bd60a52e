package server

import (
	"errors"
	"io"
	"testing"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/monitor"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitors struct {
	monitors []*monitor.Monitor
	err      error
}

func (f *fakeMonitors) GetMonitors() ([]*monitor.Monitor, error) {
	return f.monitors, f.err
}

func TestMonitorPanels(t *testing.T) {
	src := newMonitorPanels(&fakeMonitors{monitors: []*monitor.Monitor{
		{
			ID:               "DP-1",
			Name:             "Dell U2720Q",
			Width:            3840,
			Height:           2160,
			Primary:          true,
			RefreshRate:      59.99,
			PhysicalWidthMM:  597,
			PhysicalHeightMM: 336,
		},
		{
			Name:      "HDMI-A-1",
			Width:     1920,
			Height:    1080,
			Transform: 1,
		},
	}}, 160)

	panels, err := src.Panels()
	require.NoError(t, err)
	require.Len(t, panels, 2)

	dell := panels[0]
	assert.Equal(t, "DP-1", dell.ID)
	assert.True(t, dell.Primary)
	assert.InDelta(t, 59.99, dell.RefreshRate, 0.001)
	assert.InDelta(t, 163.4, dell.XDPI, 0.1)
	assert.Equal(t, 160, dell.DensityDPI)

	hdmi := panels[1]
	assert.Equal(t, "HDMI-A-1", hdmi.ID, "name is used when there is no id")
	assert.Equal(t, display.Rotation90, hdmi.Rotation)
	assert.Equal(t, 60.0, hdmi.RefreshRate)
	assert.Equal(t, 160, hdmi.DensityDPI)
	assert.Equal(t, 160.0, hdmi.XDPI)
}

func TestMonitorPanelsError(t *testing.T) {
	src := newMonitorPanels(&fakeMonitors{err: errors.New("wlr-randr: no output")}, 160)
	_, err := src.Panels()
	assert.Error(t, err)
}

func TestDensityBucket(t *testing.T) {
	tests := []struct {
		dpi  float64
		want int
	}{
		{dpi: 96, want: 120},
		{dpi: 141, want: 160},
		{dpi: 200, want: 213},
		{dpi: 280, want: 240},
		{dpi: 281, want: 320},
		{dpi: 900, want: 640},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, densityBucket(tt.dpi), "dpi %.0f", tt.dpi)
	}
}

func TestInputRouterKeepsLatest(t *testing.T) {
	r := newInputRouter(log.New(io.Discard))
	vp := display.Viewport{Valid: true, DeviceWidth: 10, DeviceHeight: 10}
	r.SetDisplayViewports(vp, display.Viewport{})

	def, ext := r.viewports()
	assert.Equal(t, vp, def)
	assert.False(t, ext.Valid)
}
