package display

import (
	"fmt"
	"io"
	"strings"
)

// DisplayFlag describes a logical display to clients.
type DisplayFlag uint32

const (
	DisplaySupportsProtectedBuffers DisplayFlag = 1 << iota
	DisplaySecure
	DisplayPrivate
	DisplayPresentation
)

func (f DisplayFlag) String() string {
	var names []string
	if f&DisplaySupportsProtectedBuffers != 0 {
		names = append(names, "SUPPORTS_PROTECTED_BUFFERS")
	}
	if f&DisplaySecure != 0 {
		names = append(names, "SECURE")
	}
	if f&DisplayPrivate != 0 {
		names = append(names, "PRIVATE")
	}
	if f&DisplayPresentation != 0 {
		names = append(names, "PRESENTATION")
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// DisplayInfo is the externally visible description of a logical display.
type DisplayInfo struct {
	DisplayID  int
	LayerStack int
	Name       string
	UniqueID   string
	Type       DeviceType
	Address    string
	Flags      DisplayFlag
	State      DisplayState

	AppWidth          int
	AppHeight         int
	LogicalWidth      int
	LogicalHeight     int
	Rotation          Rotation
	RefreshRate       float64
	LogicalDensityDPI int
	PhysicalXDPI      float64
	PhysicalYDPI      float64

	OwnerUID     int
	OwnerPackage string
}

// HasAccess reports whether uid may see the display. Private displays are
// visible only to their owner and to privileged uids.
func (i DisplayInfo) HasAccess(uid int) bool {
	if i.Flags&DisplayPrivate == 0 {
		return true
	}
	return uid == i.OwnerUID || uid == RootUID || uid == SystemUID
}

func (i DisplayInfo) String() string {
	return fmt.Sprintf("DisplayInfo{%q, displayId %d, layerStack %d, app %d x %d, real %d x %d, rotation %s, %.1f fps, density %d, type %s, state %s, owner %d, flags %s}",
		i.Name, i.DisplayID, i.LayerStack, i.AppWidth, i.AppHeight, i.LogicalWidth, i.LogicalHeight,
		i.Rotation, i.RefreshRate, i.LogicalDensityDPI, i.Type, i.State, i.OwnerUID, i.Flags)
}

// LogicalDisplay is what clients see: an id, a layer stack and a
// description derived from its primary device. It is guarded by the
// manager lock.
type LogicalDisplay struct {
	displayID  int
	layerStack int

	primaryDevice     DisplayDevice
	primaryDeviceInfo *DisplayDeviceInfo

	baseInfo     DisplayInfo
	overrideInfo *DisplayInfo
	info         *DisplayInfo

	hasContent bool
}

func newLogicalDisplay(displayID, layerStack int, primary DisplayDevice) *LogicalDisplay {
	return &LogicalDisplay{
		displayID:     displayID,
		layerStack:    layerStack,
		primaryDevice: primary,
	}
}

func (ld *LogicalDisplay) DisplayID() int { return ld.displayID }

// PrimaryDeviceLocked returns the device the display takes its info from.
func (ld *LogicalDisplay) PrimaryDeviceLocked() DisplayDevice { return ld.primaryDevice }

// IsValidLocked reports whether the display still has a primary device.
func (ld *LogicalDisplay) IsValidLocked() bool { return ld.primaryDevice != nil }

func (ld *LogicalDisplay) HasContentLocked() bool { return ld.hasContent }

func (ld *LogicalDisplay) SetHasContentLocked(hasContent bool) { ld.hasContent = hasContent }

// DisplayInfoLocked returns the display info with any window manager
// override applied.
func (ld *LogicalDisplay) DisplayInfoLocked() DisplayInfo {
	if ld.info == nil {
		info := ld.baseInfo
		if o := ld.overrideInfo; o != nil {
			info.AppWidth, info.AppHeight = o.AppWidth, o.AppHeight
			info.LogicalWidth, info.LogicalHeight = o.LogicalWidth, o.LogicalHeight
			info.Rotation = o.Rotation
			info.LogicalDensityDPI = o.LogicalDensityDPI
		}
		ld.info = &info
	}
	return *ld.info
}

// SetDisplayInfoOverrideFromWindowManagerLocked replaces the override and
// reports whether it changed. A nil info clears it.
func (ld *LogicalDisplay) SetDisplayInfoOverrideFromWindowManagerLocked(info *DisplayInfo) bool {
	if info == nil {
		if ld.overrideInfo == nil {
			return false
		}
		ld.overrideInfo = nil
		ld.info = nil
		return true
	}
	if ld.overrideInfo != nil && *ld.overrideInfo == *info {
		return false
	}
	override := *info
	ld.overrideInfo = &override
	ld.info = nil
	return true
}

// UpdateLocked refreshes the base info from the primary device. The
// primary device is dropped when it is no longer among devices.
func (ld *LogicalDisplay) UpdateLocked(devices []DisplayDevice) {
	if ld.primaryDevice == nil {
		return
	}
	if !containsDevice(devices, ld.primaryDevice) {
		ld.primaryDevice = nil
		return
	}

	deviceInfo := ld.primaryDevice.InfoLocked()
	if ld.primaryDeviceInfo != nil && *ld.primaryDeviceInfo == deviceInfo {
		return
	}

	var flags DisplayFlag
	if deviceInfo.Flags&FlagSupportsProtectedBuffers != 0 {
		flags |= DisplaySupportsProtectedBuffers
	}
	if deviceInfo.Flags&FlagSecure != 0 {
		flags |= DisplaySecure
	}
	if deviceInfo.Flags&FlagPrivate != 0 {
		flags |= DisplayPrivate
	}
	if deviceInfo.Flags&FlagPresentation != 0 {
		flags |= DisplayPresentation
	}

	ld.baseInfo = DisplayInfo{
		DisplayID:         ld.displayID,
		LayerStack:        ld.layerStack,
		Name:              deviceInfo.Name,
		UniqueID:          deviceInfo.UniqueID,
		Type:              deviceInfo.Type,
		Address:           deviceInfo.Address,
		Flags:             flags,
		State:             deviceInfo.State,
		AppWidth:          deviceInfo.Width,
		AppHeight:         deviceInfo.Height,
		LogicalWidth:      deviceInfo.Width,
		LogicalHeight:     deviceInfo.Height,
		Rotation:          Rotation0,
		RefreshRate:       deviceInfo.RefreshRate,
		LogicalDensityDPI: deviceInfo.DensityDPI,
		PhysicalXDPI:      deviceInfo.XDPI,
		PhysicalYDPI:      deviceInfo.YDPI,
		OwnerUID:          deviceInfo.OwnerUID,
		OwnerPackage:      deviceInfo.OwnerPackage,
	}
	ld.primaryDeviceInfo = &deviceInfo
	ld.info = nil
}

// ConfigureDisplayInTransactionLocked points device at this display's
// layer stack and projects the logical frame onto it.
func (ld *LogicalDisplay) ConfigureDisplayInTransactionLocked(device DisplayDevice, blanked bool) {
	if blanked {
		device.SetLayerStackInTransactionLocked(BlankLayerStack)
	} else {
		device.SetLayerStackInTransactionLocked(ld.layerStack)
	}

	displayInfo := ld.DisplayInfoLocked()
	deviceInfo := device.InfoLocked()

	// Only the primary device follows the content rotation; mirrors keep
	// their natural orientation.
	orientation := Rotation0
	if device == ld.primaryDevice && deviceInfo.Flags&FlagRotatesWithContent != 0 {
		orientation = displayInfo.Rotation
	}
	orientation = (orientation + deviceInfo.Rotation) % 4

	layerStackRect, displayRect := projectionRects(orientation,
		displayInfo.LogicalWidth, displayInfo.LogicalHeight,
		deviceInfo.Width, deviceInfo.Height)
	device.SetProjectionInTransactionLocked(orientation, layerStackRect, displayRect)
}

// projectionRects fits the logical frame into the physical panel keeping
// its aspect ratio, centred with letterbox or pillarbox bars.
func projectionRects(orientation Rotation, logicalWidth, logicalHeight, physWidth, physHeight int) (layerStackRect, displayRect Rect) {
	if orientation.swapsAxes() {
		physWidth, physHeight = physHeight, physWidth
	}
	layerStackRect = Rect{Right: logicalWidth, Bottom: logicalHeight}
	if logicalWidth <= 0 || logicalHeight <= 0 || physWidth <= 0 || physHeight <= 0 {
		return layerStackRect, Rect{}
	}

	var width, height int
	if physWidth*logicalHeight < physHeight*logicalWidth {
		// Letter box.
		width = physWidth
		height = logicalHeight * physWidth / logicalWidth
	} else {
		// Pillar box.
		width = logicalWidth * physHeight / logicalHeight
		height = physHeight
	}
	top := (physHeight - height) / 2
	left := (physWidth - width) / 2
	displayRect = Rect{Left: left, Top: top, Right: left + width, Bottom: top + height}
	return layerStackRect, displayRect
}

func (ld *LogicalDisplay) dumpLocked(w io.Writer) {
	fmt.Fprintf(w, "Display %d:\n", ld.displayID)
	fmt.Fprintf(w, "  layerStack=%d hasContent=%t\n", ld.layerStack, ld.hasContent)
	if ld.primaryDevice != nil {
		fmt.Fprintf(w, "  primaryDevice=%q\n", ld.primaryDevice.UniqueID())
	}
	fmt.Fprintf(w, "  baseInfo=%s\n", ld.baseInfo)
	if ld.overrideInfo != nil {
		fmt.Fprintf(w, "  overrideInfo=%s\n", *ld.overrideInfo)
	}
}

func containsDevice(devices []DisplayDevice, device DisplayDevice) bool {
	for _, d := range devices {
		if d == device {
			return true
		}
	}
	return false
}
