package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// compositorBackend asks the running compositor over its own IPC tool.
type compositorBackend struct {
	compositor string
}

func newCompositorBackend() (Backend, error) {
	compositor := detectCompositor()
	if compositor == "" {
		return nil, fmt.Errorf("unable to detect a supported Wayland compositor")
	}
	return &compositorBackend{compositor: compositor}, nil
}

func detectCompositor() string {
	if os.Getenv("HYPRLAND_INSTANCE_SIGNATURE") != "" {
		return "hyprland"
	}
	if os.Getenv("SWAYSOCK") != "" {
		return "sway"
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv("XDG_CURRENT_DESKTOP"))) {
	case "hyprland":
		return "hyprland"
	case "sway":
		return "sway"
	}

	processes := map[string]string{
		"Hyprland": "hyprland",
		"sway":     "sway",
	}
	for process, name := range processes {
		if isProcessRunning(process) {
			return name
		}
	}
	return ""
}

func isProcessRunning(name string) bool {
	return exec.Command("pgrep", "-x", name).Run() == nil
}

func (c *compositorBackend) Name() string { return BackendCompositor + ":" + c.compositor }

func (c *compositorBackend) GetMonitors() ([]*Monitor, error) {
	switch c.compositor {
	case "hyprland":
		output, err := sessionCommand("hyprctl", "monitors", "-j").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to run hyprctl: %w", err)
		}
		return parseHyprctlMonitors(output)
	case "sway":
		output, err := sessionCommand("swaymsg", "-t", "get_outputs", "-r").Output()
		if err != nil {
			return nil, fmt.Errorf("failed to run swaymsg: %w", err)
		}
		return parseSwayOutputs(output)
	default:
		return nil, fmt.Errorf("unsupported compositor: %s", c.compositor)
	}
}

func (c *compositorBackend) Close() error {
	return nil
}

func parseHyprctlMonitors(data []byte) ([]*Monitor, error) {
	var hyprMonitors []struct {
		ID          int     `json:"id"`
		Name        string  `json:"name"`
		Width       int     `json:"width"`
		Height      int     `json:"height"`
		RefreshRate float64 `json:"refreshRate"`
		X           int     `json:"x"`
		Y           int     `json:"y"`
		Scale       float64 `json:"scale"`
		Transform   int     `json:"transform"`
		Focused     bool    `json:"focused"`
		Disabled    bool    `json:"disabled"`
	}
	if err := json.Unmarshal(data, &hyprMonitors); err != nil {
		return nil, fmt.Errorf("failed to parse hyprctl output: %w", err)
	}

	var monitors []*Monitor
	for _, hm := range hyprMonitors {
		if hm.Disabled {
			continue
		}
		monitors = append(monitors, &Monitor{
			ID:          hm.Name,
			Name:        hm.Name,
			X:           hm.X,
			Y:           hm.Y,
			Width:       hm.Width,
			Height:      hm.Height,
			RefreshRate: hm.RefreshRate,
			Scale:       hm.Scale,
			Transform:   hm.Transform % 4,
		})
	}
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no monitors reported by hyprctl")
	}
	determinePrimaryMonitor(monitors)
	return monitors, nil
}

func parseSwayOutputs(data []byte) ([]*Monitor, error) {
	var swayOutputs []struct {
		Name      string  `json:"name"`
		Active    bool    `json:"active"`
		Primary   bool    `json:"primary"`
		Transform string  `json:"transform"`
		Scale     float64 `json:"scale"`
		Rect      struct {
			X int `json:"x"`
			Y int `json:"y"`
		} `json:"rect"`
		CurrentMode struct {
			Width   int `json:"width"`
			Height  int `json:"height"`
			Refresh int `json:"refresh"` // mHz
		} `json:"current_mode"`
	}
	if err := json.Unmarshal(data, &swayOutputs); err != nil {
		return nil, fmt.Errorf("failed to parse sway output: %w", err)
	}

	var monitors []*Monitor
	for _, so := range swayOutputs {
		if !so.Active {
			continue
		}
		monitors = append(monitors, &Monitor{
			ID:          so.Name,
			Name:        so.Name,
			X:           so.Rect.X,
			Y:           so.Rect.Y,
			Width:       so.CurrentMode.Width,
			Height:      so.CurrentMode.Height,
			RefreshRate: float64(so.CurrentMode.Refresh) / 1000,
			Scale:       so.Scale,
			Primary:     so.Primary,
			Transform:   parseTransform(so.Transform),
		})
	}
	if len(monitors) == 0 {
		return nil, fmt.Errorf("no active outputs reported by swaymsg")
	}
	ensureSinglePrimary(monitors)
	return monitors, nil
}
