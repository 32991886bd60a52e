package display

import (
	"fmt"
	"io"
)

// SurfaceSize is the size of an auxiliary off-screen surface.
type SurfaceSize struct {
	Width      int
	Height     int
	DensityDPI int
}

func (s SurfaceSize) valid() bool {
	return s.Width > 0 && s.Height > 0
}

// SurfaceSizeSource reports the size of the auxiliary surface.
type SurfaceSizeSource interface {
	CurrentSize() (SurfaceSize, error)
	// Watch calls fn on every size change until stop is called.
	Watch(fn func(SurfaceSize)) (stop func(), err error)
}

const defaultAuxiliaryDensity = 160

type auxiliaryDisplayAdapter struct {
	adapterBase
	source SurfaceSizeSource

	device     *auxiliaryDisplayDevice
	generation int

	stopWatch func()
	closed    bool
}

func newAuxiliaryDisplayAdapter(env adapterEnv, source SurfaceSizeSource) *auxiliaryDisplayAdapter {
	return &auxiliaryDisplayAdapter{
		adapterBase: newAdapterBase(env, "AuxiliaryDisplayAdapter"),
		source:      source,
	}
}

func (a *auxiliaryDisplayAdapter) RegisterLocked() {
	go a.start()
}

func (a *auxiliaryDisplayAdapter) start() {
	size, err := a.source.CurrentSize()
	if err != nil {
		a.log.Warn("failed to read auxiliary surface size", "err", err)
	} else {
		a.onSizeChanged(size)
	}

	stop, err := a.source.Watch(a.onSizeChanged)
	if err != nil {
		a.log.Warn("failed to watch auxiliary surface size", "err", err)
		return
	}

	// stop may wait for a watcher that is blocked on syncRoot, so it is
	// never called with the lock held.
	a.syncRoot.Lock()
	closed := a.closed
	if !closed {
		a.stopWatch = stop
	}
	a.syncRoot.Unlock()

	if closed {
		stop()
	}
}

// Close stops watching the source.
func (a *auxiliaryDisplayAdapter) Close() {
	a.syncRoot.Lock()
	stop := a.stopWatch
	a.stopWatch = nil
	a.closed = true
	a.syncRoot.Unlock()

	if stop != nil {
		stop()
	}
}

func (a *auxiliaryDisplayAdapter) onSizeChanged(size SurfaceSize) {
	a.syncRoot.Lock()
	defer a.syncRoot.Unlock()
	if a.closed {
		return
	}
	if size.DensityDPI <= 0 {
		size.DensityDPI = defaultAuxiliaryDensity
	}
	a.updateSizeLocked(size)
}

// updateSizeLocked replaces the device; an existing device is never
// resized in place.
func (a *auxiliaryDisplayAdapter) updateSizeLocked(size SurfaceSize) {
	if a.device != nil && a.device.size == size {
		return
	}
	if a.device != nil {
		old := a.device
		a.device = nil
		old.destroyLocked()
		a.sendDeviceEventLocked(old, DeviceRemoved)
	}
	if !size.valid() {
		return
	}

	a.generation++
	name := "Auxiliary Surface"
	token := a.composer.CreateDisplay(name, false)
	d := &auxiliaryDisplayDevice{
		deviceBase: newDeviceBase(a, a.composer, token, fmt.Sprintf("auxiliary:%d", a.generation)),
		name:       name,
		size:       size,
	}
	d.computeInfo = d.computeInfoLocked
	a.device = d
	a.log.Info("auxiliary surface available", "width", size.Width, "height", size.Height, "density", size.DensityDPI)
	a.sendDeviceEventLocked(d, DeviceAdded)
}

func (a *auxiliaryDisplayAdapter) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s: generation=%d present=%t\n", a.name, a.generation, a.device != nil)
}

type auxiliaryDisplayDevice struct {
	deviceBase
	name string
	size SurfaceSize
}

func (d *auxiliaryDisplayDevice) computeInfoLocked() DisplayDeviceInfo {
	return DisplayDeviceInfo{
		Name:        d.name,
		UniqueID:    d.uniqueID,
		Width:       d.size.Width,
		Height:      d.size.Height,
		RefreshRate: 60,
		DensityDPI:  d.size.DensityDPI,
		XDPI:        float64(d.size.DensityDPI),
		YDPI:        float64(d.size.DensityDPI),
		Flags:       FlagPresentation,
		Type:        TypeAuxiliary,
		Touch:       TouchExternal,
		State:       StateOn,
	}
}

func (d *auxiliaryDisplayDevice) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "AuxiliaryDisplayDevice %dx%d/%d\n", d.size.Width, d.size.Height, d.size.DensityDPI)
	d.deviceBase.DumpLocked(w)
}
