package display

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// Panel is a physical output as seen by the local-panel adapter.
type Panel struct {
	ID          string
	Name        string
	Width       int
	Height      int
	RefreshRate float64
	DensityDPI  int
	XDPI        float64
	YDPI        float64
	Rotation    Rotation
	Primary     bool
}

// PanelSource enumerates the physical outputs. It may block on I/O and is
// never called with the manager lock held.
type PanelSource interface {
	Panels() ([]Panel, error)
}

// LocalOptions configures the local-panel adapter.
type LocalOptions struct {
	// Source is optional; without it only the fallback panel exists.
	Source PanelSource
	// Fallback is used as the built-in panel when the source reports
	// nothing at registration.
	Fallback Panel
	// PollInterval enables hot-plug polling when positive.
	PollInterval time.Duration
}

type localDisplayAdapter struct {
	adapterBase
	opts LocalOptions

	devices map[string]*localDisplayDevice
	builtIn *localDisplayDevice

	stop chan struct{}
	done chan struct{}
}

func newLocalDisplayAdapter(env adapterEnv, opts LocalOptions) *localDisplayAdapter {
	if opts.Fallback.ID == "" {
		opts.Fallback.ID = "fallback"
	}
	return &localDisplayAdapter{
		adapterBase: newAdapterBase(env, "LocalDisplayAdapter"),
		opts:        opts,
		devices:     make(map[string]*localDisplayDevice),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (a *localDisplayAdapter) RegisterLocked() {
	go a.run()
}

func (a *localDisplayAdapter) run() {
	defer close(a.done)

	a.scan()
	if a.opts.Source == nil || a.opts.PollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			a.scan()
		}
	}
}

// Close stops hot-plug polling.
func (a *localDisplayAdapter) Close() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
}

func (a *localDisplayAdapter) scan() {
	var panels []Panel
	var err error
	if a.opts.Source != nil {
		panels, err = a.opts.Source.Panels()
		if err != nil {
			a.log.Warn("failed to enumerate panels", "err", err)
		}
	}

	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()
	if err != nil && a.builtIn != nil {
		return
	}
	a.updatePanelsLocked(panels)
}

func (a *localDisplayAdapter) updatePanelsLocked(panels []Panel) {
	if len(panels) == 0 {
		if a.builtIn != nil {
			return
		}
		fallback := a.opts.Fallback
		fallback.Primary = true
		a.log.Info("no panels detected, using fallback panel", "width", fallback.Width, "height", fallback.Height)
		panels = []Panel{fallback}
	}

	if a.builtIn == nil {
		primary := 0
		for i, p := range panels {
			if p.Primary {
				primary = i
				break
			}
		}
		a.addDeviceLocked(panels[primary], true)
	}

	seen := make(map[string]bool, len(panels))
	for _, p := range panels {
		seen[p.ID] = true
		if d, ok := a.devices[p.ID]; ok {
			d.updatePanelLocked(p)
			continue
		}
		a.addDeviceLocked(p, false)
	}

	var gone []string
	for id, d := range a.devices {
		if !seen[id] && d != a.builtIn {
			gone = append(gone, id)
		}
	}
	sort.Strings(gone)
	for _, id := range gone {
		d := a.devices[id]
		delete(a.devices, id)
		a.log.Info("panel disconnected", "id", id)
		d.destroyLocked()
		a.sendDeviceEventLocked(d, DeviceRemoved)
	}
}

func (a *localDisplayAdapter) addDeviceLocked(p Panel, builtIn bool) {
	token := a.composer.CreateDisplay(p.Name, true)
	d := &localDisplayDevice{
		deviceBase: newDeviceBase(a, a.composer, token, "local:"+p.ID),
		adapter:    a,
		panel:      p,
		builtIn:    builtIn,
		state:      StateUnknown,
	}
	d.computeInfo = d.computeInfoLocked
	a.devices[p.ID] = d
	if builtIn {
		a.builtIn = d
	}
	a.log.Info("panel connected", "id", p.ID, "name", p.Name, "builtIn", builtIn)
	a.sendDeviceEventLocked(d, DeviceAdded)
}

func (a *localDisplayAdapter) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s: %d panels, polling every %s\n", a.name, len(a.devices), a.opts.PollInterval)
}

type localDisplayDevice struct {
	deviceBase
	adapter *localDisplayAdapter
	panel   Panel
	builtIn bool
	state   DisplayState
}

func (d *localDisplayDevice) computeInfoLocked() DisplayDeviceInfo {
	info := DisplayDeviceInfo{
		Name:        d.panel.Name,
		UniqueID:    d.uniqueID,
		Width:       d.panel.Width,
		Height:      d.panel.Height,
		RefreshRate: d.panel.RefreshRate,
		DensityDPI:  d.panel.DensityDPI,
		XDPI:        d.panel.XDPI,
		YDPI:        d.panel.YDPI,
		Rotation:    d.panel.Rotation,
		State:       d.state,
	}
	if d.builtIn {
		if info.Name == "" {
			info.Name = "Built-in Screen"
		}
		info.Flags = FlagDefaultDisplay | FlagRotatesWithContent | FlagSecure | FlagSupportsProtectedBuffers
		info.Type = TypeBuiltIn
		info.Touch = TouchInternal
	} else {
		if info.Name == "" {
			info.Name = "External Screen"
		}
		info.Flags = FlagSecure | FlagPresentation
		info.Type = TypeExternal
		info.Touch = TouchExternal
	}
	return info
}

func (d *localDisplayDevice) updatePanelLocked(p Panel) {
	// The built-in identity survives a change of primary output.
	p.Primary = d.panel.Primary
	if p == d.panel {
		return
	}
	d.stageLocked(func() {
		d.panel = p
	})
	d.adapter.sendDeviceEventLocked(d, DeviceChanged)
}

func (d *localDisplayDevice) RequestDisplayStateLocked(state DisplayState) func() {
	if d.state == state {
		return nil
	}
	d.state = state
	d.invalidateInfoLocked()
	d.adapter.sendDeviceEventLocked(d, DeviceChanged)

	composer, token := d.composer, d.token
	return func() {
		composer.SetDisplayPowerMode(token, state)
	}
}

func (d *localDisplayDevice) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "LocalDisplayDevice %q builtIn=%t\n", d.panel.Name, d.builtIn)
	d.deviceBase.DumpLocked(w)
	fmt.Fprintf(w, "  panel=%+v state=%s\n", d.panel, d.state)
}
