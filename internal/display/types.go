package display

import (
	"fmt"
	"strings"
)

// Well known ids and uids.
const (
	DefaultDisplayID = 0
	InvalidDisplayID = -1
	// BlankLayerStack makes a device show nothing.
	BlankLayerStack = -1

	RootUID   = 0
	SystemUID = 1000
)

// DeviceFlag describes capabilities of a display device.
type DeviceFlag uint32

const (
	FlagDefaultDisplay DeviceFlag = 1 << iota
	FlagRotatesWithContent
	FlagSecure
	FlagSupportsProtectedBuffers
	FlagPrivate
	FlagNeverBlank
	FlagPresentation
	FlagOwnContentOnly
)

var deviceFlagNames = []struct {
	flag DeviceFlag
	name string
}{
	{FlagDefaultDisplay, "DEFAULT_DISPLAY"},
	{FlagRotatesWithContent, "ROTATES_WITH_CONTENT"},
	{FlagSecure, "SECURE"},
	{FlagSupportsProtectedBuffers, "SUPPORTS_PROTECTED_BUFFERS"},
	{FlagPrivate, "PRIVATE"},
	{FlagNeverBlank, "NEVER_BLANK"},
	{FlagPresentation, "PRESENTATION"},
	{FlagOwnContentOnly, "OWN_CONTENT_ONLY"},
}

func (f DeviceFlag) String() string {
	var names []string
	for _, n := range deviceFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// TouchMode says where touch input for a device comes from.
type TouchMode int

const (
	TouchNone TouchMode = iota
	TouchInternal
	TouchExternal
)

func (t TouchMode) String() string {
	switch t {
	case TouchInternal:
		return "INTERNAL"
	case TouchExternal:
		return "EXTERNAL"
	default:
		return "NONE"
	}
}

// DeviceType classifies where a display device comes from.
type DeviceType int

const (
	TypeUnknown DeviceType = iota
	TypeBuiltIn
	TypeExternal
	TypeOverlay
	TypeVirtual
	TypeCast
	TypeAuxiliary
)

func (t DeviceType) String() string {
	switch t {
	case TypeBuiltIn:
		return "BUILT_IN"
	case TypeExternal:
		return "EXTERNAL"
	case TypeOverlay:
		return "OVERLAY"
	case TypeVirtual:
		return "VIRTUAL"
	case TypeCast:
		return "CAST"
	case TypeAuxiliary:
		return "AUXILIARY"
	default:
		return "UNKNOWN"
	}
}

// ParseDeviceType is the inverse of DeviceType.String. Unknown names map
// to TypeUnknown.
func ParseDeviceType(s string) DeviceType {
	for t := TypeBuiltIn; t <= TypeAuxiliary; t++ {
		if t.String() == s {
			return t
		}
	}
	return TypeUnknown
}

// DisplayState is the power state of a display.
type DisplayState int

const (
	StateUnknown DisplayState = iota
	StateOff
	StateOn
	StateDoze
	StateDozeSuspend
)

func (s DisplayState) String() string {
	switch s {
	case StateOff:
		return "OFF"
	case StateOn:
		return "ON"
	case StateDoze:
		return "DOZE"
	case StateDozeSuspend:
		return "DOZE_SUSPEND"
	default:
		return "UNKNOWN"
	}
}

// ParseDisplayState maps a state name, as printed by String, back to a state.
func ParseDisplayState(s string) (DisplayState, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF":
		return StateOff, nil
	case "ON":
		return StateOn, nil
	case "DOZE":
		return StateDoze, nil
	case "DOZE_SUSPEND":
		return StateDozeSuspend, nil
	default:
		return StateUnknown, fmt.Errorf("%w: unknown display state %q", ErrInvalidArgument, s)
	}
}

// Rotation in quarter turns.
type Rotation int

const (
	Rotation0 Rotation = iota
	Rotation90
	Rotation180
	Rotation270
)

func (r Rotation) String() string {
	return fmt.Sprintf("%d", int(r)*90)
}

func (r Rotation) swapsAxes() bool {
	return r == Rotation90 || r == Rotation270
}

// Rect is an axis aligned rectangle, right and bottom exclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }
func (r Rect) Empty() bool { return r.Left >= r.Right || r.Top >= r.Bottom }

func (r Rect) String() string {
	return fmt.Sprintf("Rect(%d, %d - %d, %d)", r.Left, r.Top, r.Right, r.Bottom)
}

// DisplayDeviceInfo describes a display device as its adapter sees it.
// It is a value type; devices hand out copies.
type DisplayDeviceInfo struct {
	Name        string
	UniqueID    string
	Width       int
	Height      int
	RefreshRate float64
	DensityDPI  int
	XDPI        float64
	YDPI        float64
	Rotation    Rotation
	Flags       DeviceFlag
	Touch       TouchMode
	Type        DeviceType
	State       DisplayState
	Address     string

	OwnerUID     int
	OwnerPackage string
}

func (i DisplayDeviceInfo) String() string {
	return fmt.Sprintf("DisplayDeviceInfo{%q: uniqueId=%q, %d x %d, %.1f fps, density %d, %.1f x %.1f dpi, rotation %s, type %s, state %s, touch %s, flags %s}",
		i.Name, i.UniqueID, i.Width, i.Height, i.RefreshRate, i.DensityDPI, i.XDPI, i.YDPI,
		i.Rotation, i.Type, i.State, i.Touch, i.Flags)
}

// Caller identifies the process behind a client request.
type Caller struct {
	PID     int
	UID     int
	Package string
}

// ClientToken is the opaque identity a client uses for its virtual displays.
type ClientToken string

// Surface is an opaque handle for a buffer target owned by the compositor.
// The empty surface means none.
type Surface string
