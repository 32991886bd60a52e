// Package monitor discovers the physical outputs attached to the session.
package monitor

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bnema/displaymgr/internal/logger"
)

// Monitor represents a physical output as reported by a backend.
type Monitor struct {
	ID          string
	Name        string
	X           int // Position in global coordinate space
	Y           int
	Width       int
	Height      int
	Primary     bool
	Scale       float64
	RefreshRate float64
	// Physical size in millimetres, zero when the backend cannot tell.
	PhysicalWidthMM  int
	PhysicalHeightMM int
	// Quarter turns clockwise, 0-3.
	Transform int
}

// DPI derives the horizontal and vertical density from the physical size.
// ok is false when the backend did not report one.
func (m *Monitor) DPI() (x, y float64, ok bool) {
	if m.PhysicalWidthMM <= 0 || m.PhysicalHeightMM <= 0 {
		return 0, 0, false
	}
	x = float64(m.Width) * 25.4 / float64(m.PhysicalWidthMM)
	y = float64(m.Height) * 25.4 / float64(m.PhysicalHeightMM)
	return x, y, true
}

// Backend interface for different output detection methods
type Backend interface {
	Name() string
	GetMonitors() ([]*Monitor, error)
	Close() error
}

// Backend names accepted by New.
const (
	BackendAuto       = "auto"
	BackendWlrRandr   = "wlr-randr"
	BackendCompositor = "compositor"
	BackendXRandr     = "xrandr"
	BackendNone       = "none"
)

var backendFactories = map[string]func() (Backend, error){
	BackendWlrRandr:   newWlrRandrBackend,
	BackendCompositor: newCompositorBackend,
	BackendXRandr:     newXRandrBackend,
}

// autoOrder is the preference order when the backend is "auto".
var autoOrder = []string{BackendWlrRandr, BackendCompositor, BackendXRandr}

// Display re-enumerates outputs through the first backend that initialised.
type Display struct {
	mu      sync.Mutex
	backend Backend
}

// New creates a Display for the named backend. "auto" tries every backend
// in order of preference and keeps the first one that works.
func New(name string) (*Display, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = BackendAuto
	}
	if name == BackendNone {
		return nil, fmt.Errorf("monitor discovery disabled")
	}

	order := autoOrder
	if name != BackendAuto {
		if _, ok := backendFactories[name]; !ok {
			return nil, fmt.Errorf("unknown monitor backend %q", name)
		}
		order = []string{name}
	}

	for _, candidate := range order {
		logger.Debugf("monitor.New: trying backend %s", candidate)
		backend, err := backendFactories[candidate]()
		if err != nil {
			logger.Debugf("monitor.New: backend %s failed: %v", candidate, err)
			continue
		}
		logger.Debugf("monitor.New: using backend %s", candidate)
		return &Display{backend: backend}, nil
	}

	return nil, fmt.Errorf("no monitor backend available")
}

// NewWithBackend wraps an already constructed backend.
func NewWithBackend(backend Backend) *Display {
	return &Display{backend: backend}
}

// BackendName reports which backend is in use.
func (d *Display) BackendName() string {
	return d.backend.Name()
}

// GetMonitors queries the backend for the current set of outputs. Exactly
// one of the returned monitors is marked primary.
func (d *Display) GetMonitors() ([]*Monitor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	monitors, err := d.backend.GetMonitors()
	if err != nil {
		return nil, err
	}
	ensureSinglePrimary(monitors)
	return monitors, nil
}

// GetPrimaryMonitor returns the primary monitor
func (d *Display) GetPrimaryMonitor() (*Monitor, error) {
	monitors, err := d.GetMonitors()
	if err != nil {
		return nil, err
	}
	for _, m := range monitors {
		if m.Primary {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no monitors detected")
}

// Close cleans up resources
func (d *Display) Close() error {
	if d.backend != nil {
		return d.backend.Close()
	}
	return nil
}

// ensureSinglePrimary keeps the first monitor a backend flagged as primary,
// and falls back to determinePrimaryMonitor when none was flagged.
func ensureSinglePrimary(monitors []*Monitor) {
	found := false
	for _, m := range monitors {
		if m.Primary && !found {
			found = true
			continue
		}
		m.Primary = false
	}
	if !found {
		determinePrimaryMonitor(monitors)
	}
}

// determinePrimaryMonitor sets the primary monitor based on position
// The monitor at position (0,0) is considered primary, with fallback to first monitor
func determinePrimaryMonitor(monitors []*Monitor) {
	for _, monitor := range monitors {
		monitor.Primary = false
	}

	for _, monitor := range monitors {
		if monitor.X == 0 && monitor.Y == 0 {
			monitor.Primary = true
			return
		}
	}

	if len(monitors) > 0 {
		monitors[0].Primary = true
	}
}

// parseTransform maps the textual transforms used by wlroots tools onto
// quarter turns. Flipped variants keep their rotation.
func parseTransform(s string) int {
	switch strings.TrimPrefix(strings.ToLower(s), "flipped-") {
	case "90":
		return 1
	case "180":
		return 2
	case "270":
		return 3
	default:
		return 0
	}
}
