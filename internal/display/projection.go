package display

import (
	"fmt"
	"strings"
	"sync"
)

// VirtualDisplayFlag is requested by clients creating virtual displays.
type VirtualDisplayFlag uint32

const (
	VirtualPublic VirtualDisplayFlag = 1 << iota
	VirtualPresentation
	VirtualSecure
	VirtualOwnContentOnly
	VirtualAutoMirror
)

var virtualFlagNames = []struct {
	flag VirtualDisplayFlag
	name string
}{
	{VirtualPublic, "public"},
	{VirtualPresentation, "presentation"},
	{VirtualSecure, "secure"},
	{VirtualOwnContentOnly, "own_content_only"},
	{VirtualAutoMirror, "auto_mirror"},
}

func (f VirtualDisplayFlag) String() string {
	var names []string
	for _, n := range virtualFlagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseVirtualDisplayFlags parses a comma separated flag list as printed
// by String.
func ParseVirtualDisplayFlags(s string) (VirtualDisplayFlag, error) {
	var flags VirtualDisplayFlag
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, n := range virtualFlagNames {
			if n.name == part {
				flags |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown virtual display flag %q", ErrInvalidArgument, part)
		}
	}
	return flags, nil
}

// NormalizeVirtualDisplayFlags applies the implicit flag rules: public
// displays mirror automatically unless they only show their own content.
func NormalizeVirtualDisplayFlags(flags VirtualDisplayFlag) VirtualDisplayFlag {
	if flags&VirtualPublic != 0 {
		flags |= VirtualAutoMirror
	}
	if flags&VirtualOwnContentOnly != 0 {
		flags &^= VirtualAutoMirror
	}
	return flags
}

// ProjectionGrant lets an unprivileged caller capture screen content.
type ProjectionGrant interface {
	ApplyVirtualDisplayFlags(flags VirtualDisplayFlag) VirtualDisplayFlag
	CanProjectVideo() bool
	CanProjectSecureVideo() bool
	// OnStop registers fn to run when the grant is revoked. The returned
	// function cancels the registration.
	OnStop(fn func()) (cancel func())
}

// ProjectionService resolves grant tokens presented by clients.
type ProjectionService interface {
	Resolve(token string) (ProjectionGrant, error)
}

// ProjectionType selects how a grant rewrites virtual display flags.
type ProjectionType int

const (
	ProjectionMirroring ProjectionType = iota
	ProjectionScreenCapture
	ProjectionPresentation
)

func (t ProjectionType) String() string {
	switch t {
	case ProjectionMirroring:
		return "mirroring"
	case ProjectionScreenCapture:
		return "screen_capture"
	case ProjectionPresentation:
		return "presentation"
	default:
		return "unknown"
	}
}

// ParseProjectionType maps a configuration name to a projection type.
func ParseProjectionType(s string) (ProjectionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mirroring":
		return ProjectionMirroring, nil
	case "screen_capture":
		return ProjectionScreenCapture, nil
	case "presentation":
		return ProjectionPresentation, nil
	default:
		return 0, fmt.Errorf("%w: unknown projection type %q", ErrInvalidArgument, s)
	}
}

// GrantRegistry is an in-memory ProjectionService.
type GrantRegistry struct {
	mu     sync.Mutex
	grants map[string]*grant
}

func NewGrantRegistry() *GrantRegistry {
	return &GrantRegistry{grants: make(map[string]*grant)}
}

// Add issues a grant under token, replacing any previous one.
func (r *GrantRegistry) Add(token string, kind ProjectionType) {
	r.mu.Lock()
	old := r.grants[token]
	r.grants[token] = &grant{kind: kind, stops: make(map[int]func())}
	r.mu.Unlock()

	if old != nil {
		old.stop()
	}
}

// Revoke invalidates the grant and stops every display created with it.
func (r *GrantRegistry) Revoke(token string) bool {
	r.mu.Lock()
	g, ok := r.grants[token]
	delete(r.grants, token)
	r.mu.Unlock()

	if ok {
		g.stop()
	}
	return ok
}

func (r *GrantRegistry) Resolve(token string) (ProjectionGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[token]
	if !ok {
		return nil, fmt.Errorf("%w: invalid projection grant", ErrSecurity)
	}
	return g, nil
}

type grant struct {
	kind ProjectionType

	mu      sync.Mutex
	nextID  int
	stops   map[int]func()
	stopped bool
}

func (g *grant) ApplyVirtualDisplayFlags(flags VirtualDisplayFlag) VirtualDisplayFlag {
	switch g.kind {
	case ProjectionMirroring:
		flags &^= VirtualOwnContentOnly
		flags |= VirtualAutoMirror | VirtualPublic
	case ProjectionScreenCapture:
		flags |= VirtualPublic | VirtualPresentation
	case ProjectionPresentation:
		flags &^= VirtualAutoMirror
		flags |= VirtualPublic | VirtualPresentation | VirtualOwnContentOnly
	}
	return flags
}

func (g *grant) CanProjectVideo() bool {
	return g.kind == ProjectionMirroring || g.kind == ProjectionScreenCapture
}

func (g *grant) CanProjectSecureVideo() bool { return false }

func (g *grant) OnStop(fn func()) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		go fn()
		return func() {}
	}
	id := g.nextID
	g.nextID++
	g.stops[id] = fn
	return func() {
		g.mu.Lock()
		delete(g.stops, id)
		g.mu.Unlock()
	}
}

func (g *grant) stop() {
	g.mu.Lock()
	g.stopped = true
	stops := g.stops
	g.stops = nil
	g.mu.Unlock()

	for _, fn := range stops {
		fn()
	}
}
