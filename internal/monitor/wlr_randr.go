package monitor

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/bnema/displaymgr/internal/logger"
)

// wlrRandrBackend uses wlr-randr for output detection
type wlrRandrBackend struct{}

func newWlrRandrBackend() (Backend, error) {
	if _, err := exec.LookPath("wlr-randr"); err != nil {
		return nil, fmt.Errorf("wlr-randr not found: %w", err)
	}
	return &wlrRandrBackend{}, nil
}

func (w *wlrRandrBackend) Name() string { return BackendWlrRandr }

func (w *wlrRandrBackend) GetMonitors() ([]*Monitor, error) {
	output, err := sessionCommand("wlr-randr", "--json").CombinedOutput()
	if err == nil {
		monitors, perr := parseWlrRandrJSON(output)
		if perr == nil {
			return monitors, nil
		}
		logger.Debugf("wlr-randr JSON parse failed, falling back to text: %v", perr)
	} else if len(output) > 0 {
		logger.Debugf("wlr-randr --json error: %s", strings.TrimSpace(string(output)))
	}

	output, err = sessionCommand("wlr-randr").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("failed to run wlr-randr: %w", err)
	}
	return parseWlrRandrText(string(output))
}

func (w *wlrRandrBackend) Close() error {
	return nil
}

type wlrRandrOutput struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Enabled      bool   `json:"enabled"`
	PhysicalSize struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"physical_size"`
	Modes []struct {
		Width   int     `json:"width"`
		Height  int     `json:"height"`
		Refresh float64 `json:"refresh"`
		Current bool    `json:"current"`
	} `json:"modes"`
	Position struct {
		X int `json:"x"`
		Y int `json:"y"`
	} `json:"position"`
	Transform string  `json:"transform"`
	Scale     float64 `json:"scale"`
}

func parseWlrRandrJSON(data []byte) ([]*Monitor, error) {
	var outputs []wlrRandrOutput
	if err := json.Unmarshal(data, &outputs); err != nil {
		return nil, fmt.Errorf("failed to parse wlr-randr output: %w", err)
	}

	var monitors []*Monitor
	for _, out := range outputs {
		if !out.Enabled {
			continue
		}
		m := &Monitor{
			ID:               out.Name,
			Name:             out.Name,
			X:                out.Position.X,
			Y:                out.Position.Y,
			Scale:            out.Scale,
			PhysicalWidthMM:  out.PhysicalSize.Width,
			PhysicalHeightMM: out.PhysicalSize.Height,
			Transform:        parseTransform(out.Transform),
		}
		for _, mode := range out.Modes {
			if mode.Current {
				m.Width = mode.Width
				m.Height = mode.Height
				m.RefreshRate = mode.Refresh
				break
			}
		}
		if m.Width == 0 || m.Height == 0 {
			logger.Debugf("Skipping output %s without a current mode", out.Name)
			continue
		}
		if m.Scale == 0 {
			m.Scale = 1.0
		}
		monitors = append(monitors, m)
	}

	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors detected from wlr-randr output")
	}
	determinePrimaryMonitor(monitors)
	return monitors, nil
}

// parseWlrRandrText handles the human readable format of older wlr-randr
// releases that lack --json.
func parseWlrRandrText(output string) ([]*Monitor, error) {
	var monitors []*Monitor
	var current *Monitor
	disabled := false

	flush := func() {
		if current != nil && !disabled && current.Width > 0 {
			monitors = append(monitors, current)
		}
		current = nil
		disabled = false
	}

	for _, raw := range strings.Split(output, "\n") {
		if raw == "" {
			continue
		}

		// Output names start at column zero, properties are indented.
		if raw[0] != ' ' && raw[0] != '\t' {
			flush()
			parts := strings.Fields(raw)
			if len(parts) > 0 {
				current = &Monitor{ID: parts[0], Name: parts[0], Scale: 1.0}
			}
			continue
		}
		if current == nil {
			continue
		}

		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "Enabled:"):
			disabled = !strings.Contains(line, "yes")
		case strings.HasPrefix(line, "Position:"):
			fmt.Sscanf(strings.TrimPrefix(line, "Position:"), " %d,%d", &current.X, &current.Y)
		case strings.HasPrefix(line, "Scale:"):
			fmt.Sscanf(strings.TrimPrefix(line, "Scale:"), " %f", &current.Scale)
		case strings.HasPrefix(line, "Transform:"):
			current.Transform = parseTransform(strings.TrimSpace(strings.TrimPrefix(line, "Transform:")))
		case strings.HasPrefix(line, "Physical size:"):
			fmt.Sscanf(strings.TrimPrefix(line, "Physical size:"), " %dx%d mm", &current.PhysicalWidthMM, &current.PhysicalHeightMM)
		case strings.Contains(line, "current"):
			// Format: "1920x1080 px, 60.000000 Hz (preferred, current)"
			fmt.Sscanf(line, "%dx%d px, %f Hz", &current.Width, &current.Height, &current.RefreshRate)
		}
	}
	flush()

	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors detected from wlr-randr output")
	}
	determinePrimaryMonitor(monitors)
	return monitors, nil
}
