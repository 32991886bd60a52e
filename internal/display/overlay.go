package display

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

const (
	minOverlayWidth   = 100
	minOverlayHeight  = 100
	maxOverlayWidth   = 4096
	maxOverlayHeight  = 4096
	minOverlayDensity = 120
	maxOverlayDensity = 640
	maxOverlays       = 4

	overlayRefreshRate = 60
)

var (
	overlayDisplayPattern = regexp.MustCompile(`^([^,]+)(,[a-z]+)*$`)
	overlayModePattern    = regexp.MustCompile(`^(\d+)x(\d+)/(\d+)$`)
)

// OverlaySettings is the source of the overlay configuration string.
type OverlaySettings interface {
	OverlayDisplayDevices() string
	// WatchOverlayDisplayDevices registers fn to run after every change.
	WatchOverlayDisplayDevices(fn func())
}

// OverlayMode is one selectable size of an overlay display.
type OverlayMode struct {
	Width      int
	Height     int
	DensityDPI int
}

// OverlaySpec describes one overlay parsed from the setting.
type OverlaySpec struct {
	Modes  []OverlayMode
	Secure bool
}

// Gravity places an overlay window on the screen.
type Gravity int

const (
	GravityTopLeft Gravity = iota
	GravityBottomRight
	GravityTopRight
	GravityBottomLeft
)

func (g Gravity) String() string {
	switch g {
	case GravityTopLeft:
		return "top-left"
	case GravityBottomRight:
		return "bottom-right"
	case GravityTopRight:
		return "top-right"
	default:
		return "bottom-left"
	}
}

func chooseOverlayGravity(overlayNumber int) Gravity {
	switch overlayNumber {
	case 1:
		return GravityTopLeft
	case 2:
		return GravityBottomRight
	case 3:
		return GravityTopRight
	default:
		return GravityBottomLeft
	}
}

// ParseOverlaySetting parses "1920x1080/320|1280x720/213,secure;720x480/142".
// Malformed parts are logged and skipped.
func ParseOverlaySetting(value string, logger *log.Logger) []OverlaySpec {
	var specs []OverlaySpec
	for _, part := range strings.Split(value, ";") {
		if part == "" {
			continue
		}
		m := overlayDisplayPattern.FindStringSubmatch(part)
		if m == nil {
			logger.Warn("Malformed overlay display devices setting", "part", part)
			continue
		}

		if len(specs) >= maxOverlays {
			logger.Warn("Too many overlay display devices specified", "value", value)
			break
		}

		var spec OverlaySpec
		for _, mode := range strings.Split(m[1], "|") {
			mm := overlayModePattern.FindStringSubmatch(mode)
			if mm == nil {
				continue
			}
			width, werr := strconv.Atoi(mm[1])
			height, herr := strconv.Atoi(mm[2])
			density, derr := strconv.Atoi(mm[3])
			if werr != nil || herr != nil || derr != nil {
				continue
			}
			if width < minOverlayWidth || width > maxOverlayWidth ||
				height < minOverlayHeight || height > maxOverlayHeight ||
				density < minOverlayDensity || density > maxOverlayDensity {
				logger.Warn("Ignoring out-of-range overlay display mode", "mode", mode)
				continue
			}
			spec.Modes = append(spec.Modes, OverlayMode{Width: width, Height: height, DensityDPI: density})
		}

		// The flag group only keeps its last repetition, so scan the
		// suffix for every flag.
		flags := strings.TrimPrefix(part, m[1])
		for _, flag := range strings.Split(flags, ",") {
			if flag == "secure" {
				spec.Secure = true
			}
		}

		if len(spec.Modes) == 0 {
			logger.Warn("Malformed overlay display devices setting", "part", part)
			continue
		}
		specs = append(specs, spec)
	}
	return specs
}

type overlayDisplayAdapter struct {
	adapterBase
	ui       *Handler
	settings OverlaySettings

	currentValue string
	haveValue    bool
	overlays     []*overlayHandle
}

func newOverlayDisplayAdapter(env adapterEnv, ui *Handler, settings OverlaySettings) *overlayDisplayAdapter {
	return &overlayDisplayAdapter{
		adapterBase: newAdapterBase(env, "OverlayDisplayAdapter"),
		ui:          ui,
		settings:    settings,
	}
}

func (a *overlayDisplayAdapter) RegisterLocked() {
	a.handler.Post(func() {
		a.settings.WatchOverlayDisplayDevices(func() {
			a.handler.Post(a.updateOverlayDisplayDevices)
		})
		a.updateOverlayDisplayDevices()
	})
}

func (a *overlayDisplayAdapter) updateOverlayDisplayDevices() {
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()
	a.updateOverlayDisplayDevicesLocked()
}

func (a *overlayDisplayAdapter) updateOverlayDisplayDevicesLocked() {
	value := a.settings.OverlayDisplayDevices()
	if a.haveValue && value == a.currentValue {
		return
	}
	a.currentValue = value
	a.haveValue = true

	if len(a.overlays) > 0 {
		a.log.Info("Dismissing all overlay display devices")
		for _, h := range a.overlays {
			h.dismissLocked()
		}
		a.overlays = nil
	}

	for i, spec := range ParseOverlaySetting(value, a.log) {
		number := i + 1
		name := fmt.Sprintf("Overlay #%d", number)
		gravity := chooseOverlayGravity(number)
		a.log.Info("Showing overlay display device", "number", number, "name", name, "modes", len(spec.Modes), "secure", spec.Secure)

		h := &overlayHandle{
			adapter: a,
			name:    name,
			number:  number,
			modes:   spec.Modes,
			secure:  spec.Secure,
			gravity: gravity,
		}
		a.overlays = append(a.overlays, h)
		h.showLocked()
	}
}

// setOverlayModeLocked switches overlay number to one of its other modes.
func (a *overlayDisplayAdapter) setOverlayModeLocked(number, modeIndex int) error {
	if number < 1 || number > len(a.overlays) {
		return fmt.Errorf("%w: no overlay #%d", ErrInvalidArgument, number)
	}
	h := a.overlays[number-1]
	if modeIndex < 0 || modeIndex >= len(h.modes) {
		return fmt.Errorf("%w: overlay #%d has no mode %d", ErrInvalidArgument, number, modeIndex)
	}
	h.setModeLocked(modeIndex)
	return nil
}

func (a *overlayDisplayAdapter) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s: setting=%q overlays=%d\n", a.name, a.currentValue, len(a.overlays))
	for _, h := range a.overlays {
		fmt.Fprintf(w, "  %s gravity=%s modes=%v activeMode=%d secure=%t\n", h.name, h.gravity, h.modes, h.activeMode, h.secure)
	}
}

// overlayHandle owns one overlay: its helper window lives on the UI
// handler, its device under the manager lock.
type overlayHandle struct {
	adapter *overlayDisplayAdapter
	name    string
	number  int
	modes   []OverlayMode
	secure  bool
	gravity Gravity

	// Guarded by the manager lock.
	activeMode int
	device     *overlayDisplayDevice

	// UI handler only.
	window *overlayWindow
}

func (h *overlayHandle) showLocked() {
	mode := h.modes[h.activeMode]
	h.adapter.ui.Post(func() {
		h.window = newOverlayWindow(h.name, h.number, mode, h.gravity, h)
		h.window.show()
	})
}

func (h *overlayHandle) dismissLocked() {
	h.adapter.ui.Post(func() {
		if h.window != nil {
			h.window.dismiss()
			h.window = nil
		}
	})
}

func (h *overlayHandle) setModeLocked(index int) {
	if index == h.activeMode {
		return
	}
	h.activeMode = index
	mode := h.modes[index]
	if h.device != nil {
		h.device.setModeLocked(mode)
	}
	h.adapter.ui.Post(func() {
		if h.window != nil {
			h.window.resize(mode)
		}
	})
}

// onWindowCreated runs on the UI handler once the window has a surface.
func (h *overlayHandle) onWindowCreated(surface Surface, refreshRate float64) {
	a := h.adapter
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()

	token := a.composer.CreateDisplay(h.name, h.secure)
	d := &overlayDisplayDevice{
		deviceBase:  newDeviceBase(a, a.composer, token, fmt.Sprintf("overlay:%d", h.number)),
		adapter:     a,
		name:        h.name,
		mode:        h.modes[h.activeMode],
		refreshRate: refreshRate,
		secure:      h.secure,
		surface:     surface,
	}
	d.computeInfo = d.computeInfoLocked
	h.device = d
	a.sendDeviceEventLocked(d, DeviceAdded)
}

// onWindowDestroyed runs on the UI handler after the window went away.
func (h *overlayHandle) onWindowDestroyed() {
	a := h.adapter
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()

	if h.device != nil {
		h.device.destroyLocked()
		a.sendDeviceEventLocked(h.device, DeviceRemoved)
		h.device = nil
	}
}

type overlayWindowListener interface {
	onWindowCreated(surface Surface, refreshRate float64)
	onWindowDestroyed()
}

// overlayWindow is the helper window an overlay renders into. It only
// tracks geometry; the surface handle is what the compositor draws to.
type overlayWindow struct {
	name     string
	surface  Surface
	mode     OverlayMode
	gravity  Gravity
	listener overlayWindowListener
	shown    bool
}

func newOverlayWindow(name string, number int, mode OverlayMode, gravity Gravity, listener overlayWindowListener) *overlayWindow {
	return &overlayWindow{
		name:     name,
		surface:  Surface(fmt.Sprintf("overlay-%d", number)),
		mode:     mode,
		gravity:  gravity,
		listener: listener,
	}
}

func (w *overlayWindow) show() {
	if w.shown {
		return
	}
	w.shown = true
	w.listener.onWindowCreated(w.surface, overlayRefreshRate)
}

func (w *overlayWindow) dismiss() {
	if !w.shown {
		return
	}
	w.shown = false
	w.listener.onWindowDestroyed()
}

func (w *overlayWindow) resize(mode OverlayMode) {
	w.mode = mode
}

type overlayDisplayDevice struct {
	deviceBase
	adapter     *overlayDisplayAdapter
	name        string
	mode        OverlayMode
	refreshRate float64
	secure      bool
	surface     Surface
	surfaceSent bool
}

func (d *overlayDisplayDevice) computeInfoLocked() DisplayDeviceInfo {
	info := DisplayDeviceInfo{
		Name:        d.name,
		UniqueID:    d.uniqueID,
		Width:       d.mode.Width,
		Height:      d.mode.Height,
		RefreshRate: d.refreshRate,
		DensityDPI:  d.mode.DensityDPI,
		XDPI:        float64(d.mode.DensityDPI),
		YDPI:        float64(d.mode.DensityDPI),
		Flags:       FlagPresentation,
		Type:        TypeOverlay,
		Touch:       TouchNone,
		State:       StateOn,
	}
	if d.secure {
		info.Flags |= FlagSecure
	}
	return info
}

func (d *overlayDisplayDevice) setModeLocked(mode OverlayMode) {
	d.stageLocked(func() {
		d.mode = mode
	})
	d.adapter.sendDeviceEventLocked(d, DeviceChanged)
}

func (d *overlayDisplayDevice) PerformTraversalInTransactionLocked() {
	if d.destroyed || d.surfaceSent {
		return
	}
	d.composer.SetDisplaySurface(d.token, d.surface)
	d.surfaceSent = true
}

func (d *overlayDisplayDevice) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "OverlayDisplayDevice %q\n", d.name)
	d.deviceBase.DumpLocked(w)
	fmt.Fprintf(w, "  mode=%dx%d/%d secure=%t surface=%q\n", d.mode.Width, d.mode.Height, d.mode.DensityDPI, d.secure, d.surface)
}
