package display

import (
	"fmt"
	"io"
)

// DisplayDevice is a physical or virtual display owned by an adapter.
// Methods ending in Locked must be called with the manager lock held.
type DisplayDevice interface {
	Adapter() Adapter
	Token() DisplayToken
	UniqueID() string
	HasStableUniqueID() bool

	// InfoLocked returns a copy of the current device info.
	InfoLocked() DisplayDeviceInfo
	// ApplyPendingChangesLocked folds changes the adapter staged since the
	// last CHANGED event into the device info.
	ApplyPendingChangesLocked()
	// PerformTraversalInTransactionLocked commits per-device compositor
	// state at the end of a traversal.
	PerformTraversalInTransactionLocked()
	// RequestDisplayStateLocked returns work that applies the power state
	// and must run after the lock is released, or nil.
	RequestDisplayStateLocked(state DisplayState) func()

	SetLayerStackInTransactionLocked(layerStack int)
	SetProjectionInTransactionLocked(orientation Rotation, layerStackRect, displayRect Rect)
	PopulateViewportLocked(viewport *Viewport)
	DumpLocked(w io.Writer)
}

// deviceBase carries the state every device shares. Concrete devices embed
// it and implement InfoLocked through computeInfo.
type deviceBase struct {
	adapter  Adapter
	composer Composer
	token    DisplayToken
	uniqueID string

	info        *DisplayDeviceInfo
	computeInfo func() DisplayDeviceInfo
	pending     []func()

	currentLayerStack     int
	currentOrientation    Rotation
	currentLayerStackRect Rect
	currentDisplayRect    Rect
	hasProjection         bool
	destroyed             bool
}

func newDeviceBase(adapter Adapter, composer Composer, token DisplayToken, uniqueID string) deviceBase {
	return deviceBase{
		adapter:           adapter,
		composer:          composer,
		token:             token,
		uniqueID:          uniqueID,
		currentLayerStack: -2,
	}
}

func (d *deviceBase) Adapter() Adapter        { return d.adapter }
func (d *deviceBase) Token() DisplayToken     { return d.token }
func (d *deviceBase) UniqueID() string        { return d.uniqueID }
func (d *deviceBase) HasStableUniqueID() bool { return true }

func (d *deviceBase) InfoLocked() DisplayDeviceInfo {
	if d.info == nil {
		info := d.computeInfo()
		d.info = &info
	}
	return *d.info
}

// invalidateInfoLocked drops the cached info so the next read recomputes it.
func (d *deviceBase) invalidateInfoLocked() {
	d.info = nil
}

// stageLocked queues a mutation of the fields InfoLocked is computed from.
// It is applied by ApplyPendingChangesLocked when the orchestrator handles
// the CHANGED event the adapter posts alongside.
func (d *deviceBase) stageLocked(change func()) {
	d.pending = append(d.pending, change)
}

func (d *deviceBase) ApplyPendingChangesLocked() {
	if len(d.pending) == 0 {
		return
	}
	for _, change := range d.pending {
		change()
	}
	d.pending = nil
	d.info = nil
}

func (d *deviceBase) PerformTraversalInTransactionLocked() {}

func (d *deviceBase) RequestDisplayStateLocked(DisplayState) func() { return nil }

func (d *deviceBase) SetLayerStackInTransactionLocked(layerStack int) {
	if d.destroyed {
		return
	}
	if d.currentLayerStack != layerStack {
		d.currentLayerStack = layerStack
		d.composer.SetDisplayLayerStack(d.token, layerStack)
	}
}

func (d *deviceBase) SetProjectionInTransactionLocked(orientation Rotation, layerStackRect, displayRect Rect) {
	if d.destroyed {
		return
	}
	if !d.hasProjection ||
		d.currentOrientation != orientation ||
		d.currentLayerStackRect != layerStackRect ||
		d.currentDisplayRect != displayRect {
		d.hasProjection = true
		d.currentOrientation = orientation
		d.currentLayerStackRect = layerStackRect
		d.currentDisplayRect = displayRect
		d.composer.SetDisplayProjection(d.token, orientation, layerStackRect, displayRect)
	}
}

func (d *deviceBase) PopulateViewportLocked(viewport *Viewport) {
	viewport.Orientation = d.currentOrientation
	viewport.LogicalFrame = d.currentLayerStackRect
	viewport.PhysicalFrame = d.currentDisplayRect

	info := d.InfoLocked()
	viewport.DeviceWidth, viewport.DeviceHeight = info.Width, info.Height
	if d.currentOrientation.swapsAxes() {
		viewport.DeviceWidth, viewport.DeviceHeight = info.Height, info.Width
	}
}

func (d *deviceBase) DumpLocked(w io.Writer) {
	fmt.Fprintf(w, "  token=%d uniqueId=%q\n", d.token, d.uniqueID)
	fmt.Fprintf(w, "  currentLayerStack=%d currentOrientation=%s\n", d.currentLayerStack, d.currentOrientation)
	fmt.Fprintf(w, "  currentLayerStackRect=%s currentDisplayRect=%s\n", d.currentLayerStackRect, d.currentDisplayRect)
}

// destroyLocked releases the compositor handle. The device may still be
// traversed until its REMOVED event is handled; it no longer touches the
// compositor.
func (d *deviceBase) destroyLocked() {
	if !d.destroyed {
		d.destroyed = true
		d.composer.DestroyDisplay(d.token)
	}
}
