package display

import "fmt"

// Viewport maps a logical display onto the physical frame of the device
// showing it. Input is routed through it.
type Viewport struct {
	Valid         bool
	DisplayID     int
	Orientation   Rotation
	LogicalFrame  Rect
	PhysicalFrame Rect
	DeviceWidth   int
	DeviceHeight  int
}

func (v Viewport) String() string {
	if !v.Valid {
		return "DisplayViewport{valid=false}"
	}
	return fmt.Sprintf("DisplayViewport{displayId=%d, orientation=%s, logicalFrame=%s, physicalFrame=%s, deviceWidth=%d, deviceHeight=%d}",
		v.DisplayID, v.Orientation, v.LogicalFrame, v.PhysicalFrame, v.DeviceWidth, v.DeviceHeight)
}

// viewportCalculator collects the default and external-touch viewports
// during one traversal. The first device that qualifies for a slot wins it.
type viewportCalculator struct {
	defaultViewport       Viewport
	externalTouchViewport Viewport
	externalTouchClaimed  bool
}

// offer considers a device after it was configured to show display.
// showsOwnContent reports whether the device shows its own logical display
// rather than mirroring the default one.
func (c *viewportCalculator) offer(display *LogicalDisplay, device DisplayDevice, info DisplayDeviceInfo, showsOwnContent bool) {
	if !c.defaultViewport.Valid && info.Flags&FlagDefaultDisplay != 0 {
		setViewport(&c.defaultViewport, display, device)
	}

	if c.externalTouchClaimed || info.Touch != TouchExternal {
		return
	}
	c.externalTouchClaimed = true

	// An auxiliary surface with nothing of its own to show keeps touch
	// from being routed to whatever it mirrors.
	if info.Type == TypeAuxiliary && !showsOwnContent {
		c.externalTouchViewport = Viewport{}
		return
	}
	setViewport(&c.externalTouchViewport, display, device)
}

func setViewport(viewport *Viewport, display *LogicalDisplay, device DisplayDevice) {
	viewport.Valid = true
	viewport.DisplayID = display.DisplayID()
	device.PopulateViewportLocked(viewport)
}
