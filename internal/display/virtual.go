package display

import (
	"fmt"
	"io"
)

// VirtualDisplayCallback is told about the lifecycle of a virtual display.
// Calls are made asynchronously.
type VirtualDisplayCallback interface {
	OnPaused()
	OnResumed()
	OnStopped()
}

// VirtualDisplayRequest describes a virtual display a client wants.
type VirtualDisplayRequest struct {
	Token      ClientToken
	Name       string
	Width      int
	Height     int
	DensityDPI int
	Surface    Surface
	Flags      VirtualDisplayFlag
	// Projection is a grant token; empty when the caller relies on its
	// own permissions.
	Projection string
	Callback   VirtualDisplayCallback
}

const (
	pendingResize = 1 << iota
	pendingSurfaceChange
)

type virtualDisplayAdapter struct {
	adapterBase
	devices  map[ClientToken]*virtualDisplayDevice
	callback *Handler
	serial   int
}

func newVirtualDisplayAdapter(env adapterEnv, callback *Handler) *virtualDisplayAdapter {
	return &virtualDisplayAdapter{
		adapterBase: newAdapterBase(env, "VirtualDisplayAdapter"),
		devices:     make(map[ClientToken]*virtualDisplayDevice),
		callback:    callback,
	}
}

func (a *virtualDisplayAdapter) RegisterLocked() {}

func (a *virtualDisplayAdapter) createVirtualDisplayLocked(req VirtualDisplayRequest, owner Caller, flags VirtualDisplayFlag, grant ProjectionGrant) (*virtualDisplayDevice, error) {
	if _, ok := a.devices[req.Token]; ok {
		return nil, fmt.Errorf("%w: virtual display token %q is in use", ErrAlreadyRegistered, req.Token)
	}

	token := a.composer.CreateDisplay(req.Name, flags&VirtualSecure != 0)
	uniqueID := fmt.Sprintf("virtual:%s,%d,%s,%d", owner.Package, owner.UID, req.Name, a.serial)
	a.serial++

	d := &virtualDisplayDevice{
		deviceBase:     newDeviceBase(a, a.composer, token, uniqueID),
		adapter:        a,
		clientToken:    req.Token,
		name:           req.Name,
		width:          req.Width,
		height:         req.Height,
		densityDPI:     req.DensityDPI,
		surfacePresent: req.Surface != "",
		reqWidth:       req.Width,
		reqHeight:      req.Height,
		reqDensityDPI:  req.DensityDPI,
		reqSurface:     req.Surface,
		flags:          flags,
		owner:          owner,
		callback:       req.Callback,
		pendingChanges: pendingSurfaceChange,
	}
	d.computeInfo = d.computeInfoLocked
	a.devices[req.Token] = d

	if grant != nil {
		d.cancelStop = grant.OnStop(func() {
			a.syncRoot.Lock()
			defer a.syncRoot.Unlock()
			if a.devices[d.clientToken] == d {
				a.log.Info("projection stopped, stopping virtual display", "name", d.name)
				d.stopLocked()
			}
		})
	}
	return d, nil
}

func (a *virtualDisplayAdapter) resizeVirtualDisplayLocked(token ClientToken, width, height, densityDPI int) {
	if d := a.devices[token]; d != nil {
		d.resizeLocked(width, height, densityDPI)
	}
}

func (a *virtualDisplayAdapter) setVirtualDisplaySurfaceLocked(token ClientToken, surface Surface) {
	if d := a.devices[token]; d != nil {
		d.setSurfaceLocked(surface)
	}
}

// releaseVirtualDisplayLocked forgets the registration and returns the
// device, or nil when the token is unknown.
func (a *virtualDisplayAdapter) releaseVirtualDisplayLocked(token ClientToken) *virtualDisplayDevice {
	d := a.devices[token]
	if d == nil {
		return nil
	}
	delete(a.devices, token)
	d.destroyLocked(true)
	return d
}

// clientDiedLocked removes the display of a client that went away.
func (a *virtualDisplayAdapter) clientDiedLocked(token ClientToken, d *virtualDisplayDevice) {
	if a.devices[token] != d {
		return
	}
	delete(a.devices, token)
	a.log.Info("virtual display client died, removing display", "name", d.name)
	d.destroyLocked(false)
	a.sendDeviceEventLocked(d, DeviceRemoved)
}

func (a *virtualDisplayAdapter) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "%s: %d virtual displays\n", a.name, len(a.devices))
	for token, d := range a.devices {
		fmt.Fprintf(w, "  %q -> %q owner=%d flags=%s stopped=%t\n", token, d.name, d.owner.UID, d.flags, d.stopped)
	}
}

type virtualDisplayDevice struct {
	deviceBase
	adapter     *virtualDisplayAdapter
	clientToken ClientToken
	name        string
	flags       VirtualDisplayFlag
	owner       Caller
	callback    VirtualDisplayCallback

	// Info fields, changed through stageLocked.
	width, height, densityDPI int
	surfacePresent            bool

	// Latest requested values, pushed to the compositor on traversal.
	reqWidth, reqHeight, reqDensityDPI int
	reqSurface                         Surface
	pendingChanges                     int

	displayState DisplayState
	stopped      bool
	cancelStop   func()
}

func (d *virtualDisplayDevice) computeInfoLocked() DisplayDeviceInfo {
	info := DisplayDeviceInfo{
		Name:         d.name,
		UniqueID:     d.uniqueID,
		Width:        d.width,
		Height:       d.height,
		RefreshRate:  60,
		DensityDPI:   d.densityDPI,
		XDPI:         float64(d.densityDPI),
		YDPI:         float64(d.densityDPI),
		Type:         TypeVirtual,
		Touch:        TouchNone,
		State:        StateOff,
		OwnerUID:     d.owner.UID,
		OwnerPackage: d.owner.Package,
	}
	if d.surfacePresent {
		info.State = StateOn
	}
	if d.flags&VirtualSecure != 0 {
		info.Flags |= FlagSecure
	}
	if d.flags&VirtualPublic == 0 {
		info.Flags |= FlagPrivate | FlagNeverBlank
	}
	if d.flags&VirtualAutoMirror == 0 {
		info.Flags |= FlagOwnContentOnly
	}
	if d.flags&VirtualPresentation != 0 {
		info.Flags |= FlagPresentation
	}
	return info
}

func (d *virtualDisplayDevice) resizeLocked(width, height, densityDPI int) {
	if d.reqWidth == width && d.reqHeight == height && d.reqDensityDPI == densityDPI {
		return
	}
	d.reqWidth, d.reqHeight, d.reqDensityDPI = width, height, densityDPI
	d.pendingChanges |= pendingResize
	d.stageLocked(func() {
		d.width, d.height, d.densityDPI = width, height, densityDPI
	})
	d.adapter.sendDeviceEventLocked(d, DeviceChanged)
	d.adapter.sendTraversalRequestLocked()
}

func (d *virtualDisplayDevice) setSurfaceLocked(surface Surface) {
	if d.stopped || d.reqSurface == surface {
		return
	}
	present := surface != ""
	if (d.reqSurface != "") != present {
		d.stageLocked(func() {
			d.surfacePresent = present
		})
		d.adapter.sendDeviceEventLocked(d, DeviceChanged)
	}
	d.reqSurface = surface
	d.pendingChanges |= pendingSurfaceChange
	d.adapter.sendTraversalRequestLocked()
}

func (d *virtualDisplayDevice) stopLocked() {
	d.setSurfaceLocked("")
	d.stopped = true
	d.dispatchLocked(VirtualDisplayCallback.OnStopped)
}

func (d *virtualDisplayDevice) PerformTraversalInTransactionLocked() {
	if d.destroyed {
		return
	}
	if d.pendingChanges&pendingResize != 0 {
		d.composer.SetDisplaySize(d.token, d.reqWidth, d.reqHeight)
	}
	if d.pendingChanges&pendingSurfaceChange != 0 {
		d.composer.SetDisplaySurface(d.token, d.reqSurface)
	}
	d.pendingChanges = 0
}

func (d *virtualDisplayDevice) RequestDisplayStateLocked(state DisplayState) func() {
	if state == d.displayState {
		return nil
	}
	d.displayState = state
	if state == StateOff {
		d.dispatchLocked(VirtualDisplayCallback.OnPaused)
	} else {
		d.dispatchLocked(VirtualDisplayCallback.OnResumed)
	}
	return nil
}

// destroyLocked releases compositor resources. A client that is still
// alive is told its display stopped.
func (d *virtualDisplayDevice) destroyLocked(clientAlive bool) {
	d.deviceBase.destroyLocked()
	if d.cancelStop != nil {
		d.cancelStop()
		d.cancelStop = nil
	}
	if clientAlive && !d.stopped {
		d.dispatchLocked(VirtualDisplayCallback.OnStopped)
	}
}

func (d *virtualDisplayDevice) dispatchLocked(fn func(VirtualDisplayCallback)) {
	if d.callback == nil {
		return
	}
	cb := d.callback
	d.adapter.callback.Post(func() { fn(cb) })
}

func (d *virtualDisplayDevice) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "VirtualDisplayDevice %q\n", d.name)
	d.deviceBase.DumpLocked(w)
	fmt.Fprintf(w, "  flags=%s surface=%q size=%dx%d/%d stopped=%t displayState=%s\n",
		d.flags, d.reqSurface, d.reqWidth, d.reqHeight, d.reqDensityDPI, d.stopped, d.displayState)
}
