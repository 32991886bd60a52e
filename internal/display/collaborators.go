package display

// DisplayToken is the compositor handle of a display device.
type DisplayToken uint64

// Composer applies per-display surface state. Devices call it while the
// manager holds its lock, so implementations must not block on the manager.
type Composer interface {
	CreateDisplay(name string, secure bool) DisplayToken
	DestroyDisplay(token DisplayToken)
	SetDisplayLayerStack(token DisplayToken, layerStack int)
	SetDisplayProjection(token DisplayToken, orientation Rotation, layerStackRect, displayRect Rect)
	SetDisplaySize(token DisplayToken, width, height int)
	SetDisplaySurface(token DisplayToken, surface Surface)
	SetDisplayPowerMode(token DisplayToken, state DisplayState)
}

// WindowManager drives traversals. RequestTraversalFromDisplayManager is
// called without the manager lock held; the window manager later calls
// back into Manager.PerformTraversalInTransactionFromWindowManager.
type WindowManager interface {
	RequestTraversalFromDisplayManager()
}

// InputRouter receives the viewports input should be routed to.
type InputRouter interface {
	SetDisplayViewports(defaultViewport, externalTouchViewport Viewport)
}

// TransactionListener is notified after every display transaction.
type TransactionListener interface {
	OnDisplayTransaction()
}

// PowerCallbacks receives global display state changes.
type PowerCallbacks interface {
	OnDisplayStateChange(state DisplayState)
}

// DisplayEvent is the kind of change a Listener is told about.
type DisplayEvent int

const (
	EventDisplayAdded DisplayEvent = iota + 1
	EventDisplayChanged
	EventDisplayRemoved
)

func (e DisplayEvent) String() string {
	switch e {
	case EventDisplayAdded:
		return "added"
	case EventDisplayChanged:
		return "changed"
	case EventDisplayRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Listener receives logical display events. A non-nil error means the
// listener is gone; it is then unregistered as if it had died.
type Listener interface {
	OnDisplayEvent(displayID int, event DisplayEvent) error
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(displayID int, event DisplayEvent) error

func (f ListenerFunc) OnDisplayEvent(displayID int, event DisplayEvent) error {
	return f(displayID, event)
}

// Permission names a capability a caller may hold.
type Permission int

const (
	PermissionCaptureVideoOutput Permission = iota
	PermissionCaptureSecureVideoOutput
)

func (p Permission) String() string {
	switch p {
	case PermissionCaptureVideoOutput:
		return "CAPTURE_VIDEO_OUTPUT"
	case PermissionCaptureSecureVideoOutput:
		return "CAPTURE_SECURE_VIDEO_OUTPUT"
	default:
		return "UNKNOWN"
	}
}

// PermissionChecker decides whether a caller holds a permission.
type PermissionChecker interface {
	HasPermission(caller Caller, permission Permission) bool
}

// StaticPermissions grants permissions to fixed sets of uids. Root and the
// system uid hold every permission.
type StaticPermissions struct {
	captureVideo       map[int]bool
	captureSecureVideo map[int]bool
}

// NewStaticPermissions builds a checker from uid lists.
func NewStaticPermissions(captureVideoUIDs, captureSecureVideoUIDs []int) *StaticPermissions {
	p := &StaticPermissions{
		captureVideo:       make(map[int]bool),
		captureSecureVideo: make(map[int]bool),
	}
	for _, uid := range captureVideoUIDs {
		p.captureVideo[uid] = true
	}
	for _, uid := range captureSecureVideoUIDs {
		p.captureSecureVideo[uid] = true
	}
	return p
}

func (p *StaticPermissions) HasPermission(caller Caller, permission Permission) bool {
	if caller.UID == RootUID || caller.UID == SystemUID {
		return true
	}
	switch permission {
	case PermissionCaptureVideoOutput:
		return p.captureVideo[caller.UID]
	case PermissionCaptureSecureVideoOutput:
		return p.captureSecureVideo[caller.UID]
	default:
		return false
	}
}
