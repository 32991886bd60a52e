package display

import (
	"fmt"
	"io"
)

// CastSink describes a connected wireless display.
type CastSink struct {
	Address     string
	Name        string
	Width       int
	Height      int
	RefreshRate float64
	Secure      bool
}

// CastListener receives sink connection changes from a controller. It may
// be called from any goroutine.
type CastListener interface {
	SinkConnected(sink CastSink)
	SinkDisconnected()
}

// CastController discovers and connects wireless displays.
type CastController interface {
	Start(listener CastListener) error
	RequestStartScan()
	RequestStopScan()
}

type castDisplayAdapter struct {
	adapterBase
	controller CastController
	device     *castDisplayDevice
	scanning   bool
}

func newCastDisplayAdapter(env adapterEnv, controller CastController) *castDisplayAdapter {
	return &castDisplayAdapter{
		adapterBase: newAdapterBase(env, "CastDisplayAdapter"),
		controller:  controller,
	}
}

func (a *castDisplayAdapter) RegisterLocked() {
	if a.controller == nil {
		return
	}
	a.handler.Post(func() {
		if err := a.controller.Start(a); err != nil {
			a.log.Warn("failed to start cast controller", "err", err)
		}
	})
}

func (a *castDisplayAdapter) requestStartScanLocked() {
	a.scanning = true
	if a.controller != nil {
		a.handler.Post(a.controller.RequestStartScan)
	}
}

func (a *castDisplayAdapter) requestStopScanLocked() {
	a.scanning = false
	if a.controller != nil {
		a.handler.Post(a.controller.RequestStopScan)
	}
}

// SinkConnected creates the device for a newly connected sink, replacing
// any previous one.
func (a *castDisplayAdapter) SinkConnected(sink CastSink) {
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()

	if a.device != nil {
		if a.device.sink == sink {
			return
		}
		a.removeDeviceLocked()
	}

	token := a.composer.CreateDisplay(sink.Name, sink.Secure)
	d := &castDisplayDevice{
		deviceBase: newDeviceBase(a, a.composer, token, "cast:"+sink.Address),
		sink:       sink,
	}
	d.computeInfo = d.computeInfoLocked
	a.device = d
	a.log.Info("cast sink connected", "name", sink.Name, "address", sink.Address)
	a.sendDeviceEventLocked(d, DeviceAdded)
}

func (a *castDisplayAdapter) SinkDisconnected() {
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()
	a.removeDeviceLocked()
}

func (a *castDisplayAdapter) removeDeviceLocked() {
	if a.device == nil {
		return
	}
	d := a.device
	a.device = nil
	a.log.Info("cast sink disconnected", "name", d.sink.Name)
	d.destroyLocked()
	a.sendDeviceEventLocked(d, DeviceRemoved)
}

func (a *castDisplayAdapter) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s: controller=%t scanning=%t connected=%t\n", a.name, a.controller != nil, a.scanning, a.device != nil)
}

type castDisplayDevice struct {
	deviceBase
	sink CastSink
}

func (d *castDisplayDevice) computeInfoLocked() DisplayDeviceInfo {
	density := 160
	if min(d.sink.Width, d.sink.Height) >= 1080 {
		density = 320
	}
	info := DisplayDeviceInfo{
		Name:        d.sink.Name,
		UniqueID:    d.uniqueID,
		Width:       d.sink.Width,
		Height:      d.sink.Height,
		RefreshRate: d.sink.RefreshRate,
		DensityDPI:  density,
		XDPI:        float64(density),
		YDPI:        float64(density),
		Flags:       FlagPresentation,
		Type:        TypeCast,
		Touch:       TouchExternal,
		State:       StateOn,
		Address:     d.sink.Address,
	}
	if d.sink.Secure {
		info.Flags |= FlagSecure
	}
	return info
}

func (d *castDisplayDevice) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "CastDisplayDevice %q address=%s\n", d.sink.Name, d.sink.Address)
	d.deviceBase.DumpLocked(w)
}
