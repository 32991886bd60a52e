package server

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/bnema/displaymgr/internal/monitor"
	"github.com/charmbracelet/log"
)

// monitorLister is the part of monitor.Display the panel source needs.
type monitorLister interface {
	GetMonitors() ([]*monitor.Monitor, error)
}

// monitorPanels presents the detected monitors as local panels.
type monitorPanels struct {
	monitors       monitorLister
	defaultDensity int
}

func newMonitorPanels(monitors monitorLister, defaultDensity int) *monitorPanels {
	return &monitorPanels{monitors: monitors, defaultDensity: defaultDensity}
}

func (p *monitorPanels) Panels() ([]display.Panel, error) {
	monitors, err := p.monitors.GetMonitors()
	if err != nil {
		return nil, err
	}
	panels := make([]display.Panel, 0, len(monitors))
	for _, m := range monitors {
		panels = append(panels, p.panelFor(m))
	}
	return panels, nil
}

func (p *monitorPanels) panelFor(m *monitor.Monitor) display.Panel {
	id := m.ID
	if id == "" {
		id = m.Name
	}
	refresh := m.RefreshRate
	if refresh <= 0 {
		refresh = 60
	}

	xdpi, ydpi, ok := m.DPI()
	density := p.defaultDensity
	if ok {
		density = densityBucket((xdpi + ydpi) / 2)
	} else {
		xdpi, ydpi = float64(density), float64(density)
	}

	return display.Panel{
		ID:          id,
		Name:        m.Name,
		Width:       m.Width,
		Height:      m.Height,
		RefreshRate: refresh,
		DensityDPI:  density,
		XDPI:        xdpi,
		YDPI:        ydpi,
		Rotation:    display.Rotation(m.Transform % 4),
		Primary:     m.Primary,
	}
}

// densityBucket snaps a measured dpi to the nearest standard density.
func densityBucket(dpi float64) int {
	buckets := []int{120, 160, 213, 240, 320, 480, 640}
	best := buckets[0]
	for _, b := range buckets[1:] {
		if abs(float64(b)-dpi) < abs(float64(best)-dpi) {
			best = b
		}
	}
	return best
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// inputRouter logs the viewports input would be routed through and keeps
// the latest pair.
type inputRouter struct {
	log *log.Logger

	mu                    sync.Mutex
	defaultViewport       display.Viewport
	externalTouchViewport display.Viewport
}

func newInputRouter(logger *log.Logger) *inputRouter {
	return &inputRouter{log: logger}
}

func (r *inputRouter) SetDisplayViewports(defaultViewport, externalTouchViewport display.Viewport) {
	r.mu.Lock()
	changed := r.defaultViewport != defaultViewport || r.externalTouchViewport != externalTouchViewport
	r.defaultViewport = defaultViewport
	r.externalTouchViewport = externalTouchViewport
	r.mu.Unlock()

	if changed {
		r.log.Debug("input viewports updated", "default", defaultViewport, "externalTouch", externalTouchViewport)
	}
}

func (r *inputRouter) viewports() (display.Viewport, display.Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultViewport, r.externalTouchViewport
}

// powerLog records global display state changes.
type powerLog struct {
	log *log.Logger
}

func newPowerLog(logger *log.Logger) *powerLog {
	return &powerLog{log: logger}
}

func (p *powerLog) OnDisplayStateChange(state display.DisplayState) {
	p.log.Info("global display state changing", "state", state)
}

// callerFor identifies the process behind a session.
func callerFor(sess *ipc.Session) display.Caller {
	peer := sess.Peer()
	return display.Caller{
		PID:     peer.PID,
		UID:     peer.UID,
		Package: processName(peer.PID),
	}
}

func processName(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return fmt.Sprintf("pid:%d", pid)
	}
	return strings.TrimSpace(string(data))
}
