package compositor

import (
	"sort"
	"sync"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/charmbracelet/log"
)

// Display is the compositor-side state of one display device.
type Display struct {
	Token          display.DisplayToken
	Name           string
	Secure         bool
	LayerStack     int
	Orientation    display.Rotation
	LayerStackRect display.Rect
	DisplayRect    display.Rect
	Width          int
	Height         int
	Surface        display.Surface
	Power          display.DisplayState
}

// Recorder is an in-memory display.Composer. It keeps the last state set
// on every live display.
type Recorder struct {
	mu       sync.Mutex
	log      *log.Logger
	next     display.DisplayToken
	displays map[display.DisplayToken]*Display
}

func NewRecorder(logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		log:      logger,
		displays: make(map[display.DisplayToken]*Display),
	}
}

func (r *Recorder) CreateDisplay(name string, secure bool) display.DisplayToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	token := r.next
	r.displays[token] = &Display{
		Token:      token,
		Name:       name,
		Secure:     secure,
		LayerStack: display.BlankLayerStack,
	}
	r.log.Debug("display created", "token", token, "name", name, "secure", secure)
	return token
}

func (r *Recorder) DestroyDisplay(token display.DisplayToken) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.displays[token]; !ok {
		r.log.Warn("destroying unknown display", "token", token)
		return
	}
	delete(r.displays, token)
	r.log.Debug("display destroyed", "token", token)
}

func (r *Recorder) SetDisplayLayerStack(token display.DisplayToken, layerStack int) {
	r.update(token, func(d *Display) { d.LayerStack = layerStack })
}

func (r *Recorder) SetDisplayProjection(token display.DisplayToken, orientation display.Rotation, layerStackRect, displayRect display.Rect) {
	r.update(token, func(d *Display) {
		d.Orientation = orientation
		d.LayerStackRect = layerStackRect
		d.DisplayRect = displayRect
	})
}

func (r *Recorder) SetDisplaySize(token display.DisplayToken, width, height int) {
	r.update(token, func(d *Display) { d.Width, d.Height = width, height })
}

func (r *Recorder) SetDisplaySurface(token display.DisplayToken, surface display.Surface) {
	r.update(token, func(d *Display) { d.Surface = surface })
}

func (r *Recorder) SetDisplayPowerMode(token display.DisplayToken, state display.DisplayState) {
	r.update(token, func(d *Display) { d.Power = state })
}

func (r *Recorder) update(token display.DisplayToken, fn func(d *Display)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.displays[token]
	if !ok {
		r.log.Warn("update of unknown display ignored", "token", token)
		return
	}
	fn(d)
}

// Get returns the state of one display.
func (r *Recorder) Get(token display.DisplayToken) (Display, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.displays[token]
	if !ok {
		return Display{}, false
	}
	return *d, true
}

// Snapshot returns every live display ordered by token.
func (r *Recorder) Snapshot() []Display {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Display, 0, len(r.displays))
	for _, d := range r.displays {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
