package ui

import (
	"fmt"
	"strconv"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/monitor"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers ...string) *table.Table {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(ColorText).Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorSubtle)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

// DisplayTable renders one row per logical display.
func DisplayTable(infos []display.DisplayInfo) string {
	t := newTable("ID", "NAME", "TYPE", "SIZE", "DENSITY", "REFRESH", "STATE", "FLAGS")
	for _, info := range infos {
		t.Row(
			strconv.Itoa(info.DisplayID),
			info.Name,
			info.Type.String(),
			fmt.Sprintf("%dx%d", info.AppWidth, info.AppHeight),
			strconv.Itoa(info.LogicalDensityDPI),
			fmt.Sprintf("%.1f", info.RefreshRate),
			info.State.String(),
			info.Flags.String(),
		)
	}
	return t.Render()
}

// DisplayDetails renders every field of one display.
func DisplayDetails(info display.DisplayInfo) string {
	lines := []string{
		FormatAppHeader(info.Name, fmt.Sprintf("display %d", info.DisplayID)),
		FormatKeyValue("Unique ID", info.UniqueID),
		FormatKeyValue("Type", info.Type.String()),
		FormatKeyValue("Layer stack", strconv.Itoa(info.LayerStack)),
		FormatKeyValue("App size", fmt.Sprintf("%dx%d", info.AppWidth, info.AppHeight)),
		FormatKeyValue("Logical size", fmt.Sprintf("%dx%d", info.LogicalWidth, info.LogicalHeight)),
		FormatKeyValue("Rotation", info.Rotation.String()),
		FormatKeyValue("Refresh", fmt.Sprintf("%.2f Hz", info.RefreshRate)),
		FormatKeyValue("Density", fmt.Sprintf("%d dpi (%.1f x %.1f)", info.LogicalDensityDPI, info.PhysicalXDPI, info.PhysicalYDPI)),
		FormatKeyValue("State", info.State.String()),
		FormatKeyValue("Flags", info.Flags.String()),
	}
	if info.Address != "" {
		lines = append(lines, FormatKeyValue("Address", info.Address))
	}
	if info.OwnerPackage != "" {
		lines = append(lines, FormatKeyValue("Owner", fmt.Sprintf("%s (uid %d)", info.OwnerPackage, info.OwnerUID)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// ViewportDetails renders a viewport in a titled box.
func ViewportDetails(title string, v display.Viewport) string {
	if !v.Valid {
		return BoxStyle.Render(SubheaderStyle.Render(title) + "\n" + MutedStyle.Render("none"))
	}
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		SubheaderStyle.Render(title),
		FormatKeyValue("Display", strconv.Itoa(v.DisplayID)),
		FormatKeyValue("Orientation", v.Orientation.String()),
		FormatKeyValue("Logical frame", v.LogicalFrame.String()),
		FormatKeyValue("Physical frame", v.PhysicalFrame.String()),
		FormatKeyValue("Device size", fmt.Sprintf("%dx%d", v.DeviceWidth, v.DeviceHeight)),
	))
}

// MonitorTable renders the monitors reported by a detection backend.
func MonitorTable(monitors []*monitor.Monitor) string {
	t := newTable("NAME", "SIZE", "POSITION", "REFRESH", "DPI", "PRIMARY")
	for _, m := range monitors {
		dpi := "-"
		if x, y, ok := m.DPI(); ok {
			dpi = fmt.Sprintf("%.0f", (x+y)/2)
		}
		primary := ""
		if m.Primary {
			primary = iconSuccess
		}
		t.Row(
			m.Name,
			fmt.Sprintf("%dx%d", m.Width, m.Height),
			fmt.Sprintf("%d,%d", m.X, m.Y),
			fmt.Sprintf("%.1f", m.RefreshRate),
			dpi,
			primary,
		)
	}
	return t.Render()
}
