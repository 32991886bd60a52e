package ipc

import "github.com/bnema/displaymgr/internal/display"

// EncodeDisplayInfo converts a display info to a message body.
func EncodeDisplayInfo(info display.DisplayInfo) Body {
	return Body{
		"display_id":     info.DisplayID,
		"layer_stack":    info.LayerStack,
		"name":           info.Name,
		"unique_id":      info.UniqueID,
		"type":           info.Type.String(),
		"address":        info.Address,
		"flags":          int(info.Flags),
		"state":          info.State.String(),
		"app_width":      info.AppWidth,
		"app_height":     info.AppHeight,
		"logical_width":  info.LogicalWidth,
		"logical_height": info.LogicalHeight,
		"rotation":       int(info.Rotation),
		"refresh_rate":   info.RefreshRate,
		"density":        info.LogicalDensityDPI,
		"xdpi":           info.PhysicalXDPI,
		"ydpi":           info.PhysicalYDPI,
		"owner_uid":      info.OwnerUID,
		"owner_package":  info.OwnerPackage,
	}
}

// DecodeDisplayInfo is the inverse of EncodeDisplayInfo.
func DecodeDisplayInfo(b Body) display.DisplayInfo {
	state, _ := display.ParseDisplayState(b.String("state"))
	return display.DisplayInfo{
		DisplayID:         b.Int("display_id"),
		LayerStack:        b.Int("layer_stack"),
		Name:              b.String("name"),
		UniqueID:          b.String("unique_id"),
		Type:              display.ParseDeviceType(b.String("type")),
		Address:           b.String("address"),
		Flags:             display.DisplayFlag(b.Int("flags")),
		State:             state,
		AppWidth:          b.Int("app_width"),
		AppHeight:         b.Int("app_height"),
		LogicalWidth:      b.Int("logical_width"),
		LogicalHeight:     b.Int("logical_height"),
		Rotation:          display.Rotation(b.Int("rotation")),
		RefreshRate:       b.Float("refresh_rate"),
		LogicalDensityDPI: b.Int("density"),
		PhysicalXDPI:      b.Float("xdpi"),
		PhysicalYDPI:      b.Float("ydpi"),
		OwnerUID:          b.Int("owner_uid"),
		OwnerPackage:      b.String("owner_package"),
	}
}

func encodeRect(r display.Rect) Body {
	return Body{"left": r.Left, "top": r.Top, "right": r.Right, "bottom": r.Bottom}
}

func decodeRect(b Body) display.Rect {
	return display.Rect{Left: b.Int("left"), Top: b.Int("top"), Right: b.Int("right"), Bottom: b.Int("bottom")}
}

// EncodeViewport converts a viewport to a message body.
func EncodeViewport(v display.Viewport) Body {
	return Body{
		"valid":          v.Valid,
		"display_id":     v.DisplayID,
		"orientation":    int(v.Orientation),
		"logical_frame":  encodeRect(v.LogicalFrame),
		"physical_frame": encodeRect(v.PhysicalFrame),
		"device_width":   v.DeviceWidth,
		"device_height":  v.DeviceHeight,
	}
}

// DecodeViewport is the inverse of EncodeViewport.
func DecodeViewport(b Body) display.Viewport {
	return display.Viewport{
		Valid:         b.Bool("valid"),
		DisplayID:     b.Int("display_id"),
		Orientation:   display.Rotation(b.Int("orientation")),
		LogicalFrame:  decodeRect(b.Map("logical_frame")),
		PhysicalFrame: decodeRect(b.Map("physical_frame")),
		DeviceWidth:   b.Int("device_width"),
		DeviceHeight:  b.Int("device_height"),
	}
}

// VirtualDisplaySpec is the client side of a create request. The server
// fills in the caller and callback.
type VirtualDisplaySpec struct {
	Token      string
	Name       string
	Width      int
	Height     int
	DensityDPI int
	Surface    string
	Flags      display.VirtualDisplayFlag
	Projection string
}

func (s VirtualDisplaySpec) encode() Body {
	return Body{
		"token":      s.Token,
		"name":       s.Name,
		"width":      s.Width,
		"height":     s.Height,
		"density":    s.DensityDPI,
		"surface":    s.Surface,
		"flags":      s.Flags.String(),
		"projection": s.Projection,
	}
}

// DecodeVirtualDisplaySpec parses a create request body.
func DecodeVirtualDisplaySpec(b Body) (VirtualDisplaySpec, error) {
	flags, err := display.ParseVirtualDisplayFlags(b.String("flags"))
	if err != nil {
		return VirtualDisplaySpec{}, err
	}
	return VirtualDisplaySpec{
		Token:      b.String("token"),
		Name:       b.String("name"),
		Width:      b.Int("width"),
		Height:     b.Int("height"),
		DensityDPI: b.Int("density"),
		Surface:    b.String("surface"),
		Flags:      flags,
		Projection: b.String("projection"),
	}, nil
}

// Virtual display callback names carried by EventVirtualCallback.
const (
	CallbackPaused  = "paused"
	CallbackResumed = "resumed"
	CallbackStopped = "stopped"
)

// NewDisplayEvent builds the event pushed to registered listeners.
func NewDisplayEvent(displayID int, event display.DisplayEvent) *Message {
	return NewEvent(EventDisplay, Body{"display_id": displayID, "event": event.String()})
}

// DecodeDisplayEvent extracts the display id and event kind of a pushed
// display event.
func DecodeDisplayEvent(msg *Message) (int, display.DisplayEvent, bool) {
	if msg.Type != TypeEvent || msg.Op != EventDisplay {
		return 0, 0, false
	}
	var event display.DisplayEvent
	switch msg.Body.String("event") {
	case display.EventDisplayAdded.String():
		event = display.EventDisplayAdded
	case display.EventDisplayChanged.String():
		event = display.EventDisplayChanged
	case display.EventDisplayRemoved.String():
		event = display.EventDisplayRemoved
	default:
		return 0, 0, false
	}
	return msg.Body.Int("display_id"), event, true
}

// NewVirtualCallbackEvent builds the event telling a client about its
// virtual display.
func NewVirtualCallbackEvent(token, callback string) *Message {
	return NewEvent(EventVirtualCallback, Body{"token": token, "callback": callback})
}

// DecodeVirtualCallbackEvent returns the client token and callback name.
func DecodeVirtualCallbackEvent(msg *Message) (token, callback string, ok bool) {
	if msg.Type != TypeEvent || msg.Op != EventVirtualCallback {
		return "", "", false
	}
	return msg.Body.String("token"), msg.Body.String("callback"), true
}

// Status is the server summary returned by OpStatus.
type Status struct {
	Version      string
	PID          int
	DisplayState display.DisplayState
	DisplayCount int
	Adapters     []string
}

// EncodeStatus converts a status to a message body.
func EncodeStatus(s Status) Body {
	return Body{
		"version":       s.Version,
		"pid":           s.PID,
		"display_state": s.DisplayState.String(),
		"display_count": s.DisplayCount,
		"adapters":      s.Adapters,
	}
}

// DecodeStatus is the inverse of EncodeStatus.
func DecodeStatus(b Body) Status {
	state, _ := display.ParseDisplayState(b.String("display_state"))
	var adapters []string
	list, _ := b["adapters"].([]interface{})
	for _, v := range list {
		if s, ok := v.(string); ok {
			adapters = append(adapters, s)
		}
	}
	return Status{
		Version:      b.String("version"),
		PID:          b.Int("pid"),
		DisplayState: state,
		DisplayCount: b.Int("display_count"),
		Adapters:     adapters,
	}
}
