package monitor

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
)

// xrandrBackend talks RandR to the X server (or XWayland).
type xrandrBackend struct {
	conn *xgb.Conn
	root xproto.Window
}

func newXRandrBackend() (Backend, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	if err := randr.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	return &xrandrBackend{conn: conn, root: root}, nil
}

func (x *xrandrBackend) Name() string { return BackendXRandr }

func (x *xrandrBackend) GetMonitors() ([]*Monitor, error) {
	resources, err := randr.GetScreenResources(x.conn, x.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var primaryOutput randr.Output
	if primary, err := randr.GetOutputPrimary(x.conn, x.root).Reply(); err == nil {
		primaryOutput = primary.Output
	}

	modes := make(map[uint32]randr.ModeInfo, len(resources.Modes))
	for _, mode := range resources.Modes {
		modes[mode.Id] = mode
	}

	var monitors []*Monitor
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(x.conn, crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		m := &Monitor{
			ID:          fmt.Sprintf("crtc-%d", i),
			Name:        fmt.Sprintf("Monitor%d", i),
			X:           int(crtcInfo.X),
			Y:           int(crtcInfo.Y),
			Width:       int(crtcInfo.Width),
			Height:      int(crtcInfo.Height),
			Scale:       1.0,
			RefreshRate: refreshRate(modes[uint32(crtcInfo.Mode)]),
			Transform:   rotationToTransform(crtcInfo.Rotation),
			Primary:     crtcInfo.Outputs[0] == primaryOutput,
		}

		outputInfo, err := randr.GetOutputInfo(x.conn, crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			m.Name = string(outputInfo.Name)
			m.ID = m.Name
			m.PhysicalWidthMM = int(outputInfo.MmWidth)
			m.PhysicalHeightMM = int(outputInfo.MmHeight)
		}
		monitors = append(monitors, m)
	}

	if len(monitors) == 0 {
		return nil, fmt.Errorf("no active CRTCs reported by RandR")
	}
	return monitors, nil
}

func (x *xrandrBackend) Close() error {
	x.conn.Close()
	return nil
}

func refreshRate(mode randr.ModeInfo) float64 {
	if mode.Htotal == 0 || mode.Vtotal == 0 {
		return 0
	}
	return float64(mode.DotClock) / (float64(mode.Htotal) * float64(mode.Vtotal))
}

func rotationToTransform(rotation uint16) int {
	switch {
	case rotation&randr.RotationRotate90 != 0:
		return 1
	case rotation&randr.RotationRotate180 != 0:
		return 2
	case rotation&randr.RotationRotate270 != 0:
		return 3
	default:
		return 0
	}
}
