package display

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

var (
	systemCaller = Caller{PID: 1, UID: SystemUID, Package: "system"}
	appCaller    = Caller{PID: 100, UID: 10001, Package: "com.example.app"}
	otherCaller  = Caller{PID: 200, UID: 10002, Package: "com.example.other"}
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

// fakeComposer records every compositor call in order.
type fakeComposer struct {
	mu          sync.Mutex
	next        DisplayToken
	calls       []string
	names       map[DisplayToken]string
	layerStacks map[DisplayToken]int
	surfaces    map[DisplayToken]Surface
	sizes       map[DisplayToken][2]int
	power       map[DisplayToken]DisplayState
	destroyed   map[DisplayToken]bool
}

func newFakeComposer() *fakeComposer {
	return &fakeComposer{
		names:       make(map[DisplayToken]string),
		layerStacks: make(map[DisplayToken]int),
		surfaces:    make(map[DisplayToken]Surface),
		sizes:       make(map[DisplayToken][2]int),
		power:       make(map[DisplayToken]DisplayState),
		destroyed:   make(map[DisplayToken]bool),
	}
}

func (c *fakeComposer) record(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *fakeComposer) CreateDisplay(name string, secure bool) DisplayToken {
	c.mu.Lock()
	c.next++
	token := c.next
	c.names[token] = name
	c.mu.Unlock()
	c.record("create:%d:%s", token, name)
	return token
}

func (c *fakeComposer) DestroyDisplay(token DisplayToken) {
	c.mu.Lock()
	c.destroyed[token] = true
	c.mu.Unlock()
	c.record("destroy:%d", token)
}

func (c *fakeComposer) SetDisplayLayerStack(token DisplayToken, layerStack int) {
	c.mu.Lock()
	c.layerStacks[token] = layerStack
	c.mu.Unlock()
	c.record("layerStack:%d:%d", token, layerStack)
}

func (c *fakeComposer) SetDisplayProjection(token DisplayToken, orientation Rotation, layerStackRect, displayRect Rect) {
	c.record("projection:%d:%s:%s", token, layerStackRect, displayRect)
}

func (c *fakeComposer) SetDisplaySize(token DisplayToken, width, height int) {
	c.mu.Lock()
	c.sizes[token] = [2]int{width, height}
	c.mu.Unlock()
	c.record("size:%d:%dx%d", token, width, height)
}

func (c *fakeComposer) SetDisplaySurface(token DisplayToken, surface Surface) {
	c.mu.Lock()
	c.surfaces[token] = surface
	c.mu.Unlock()
	c.record("surface:%d:%s", token, surface)
}

func (c *fakeComposer) SetDisplayPowerMode(token DisplayToken, state DisplayState) {
	c.mu.Lock()
	c.power[token] = state
	c.mu.Unlock()
	c.record("power:%d:%s", token, state)
}

func (c *fakeComposer) layerStack(token DisplayToken) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ls, ok := c.layerStacks[token]
	return ls, ok
}

func (c *fakeComposer) surface(token DisplayToken) Surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surfaces[token]
}

func (c *fakeComposer) powerState(token DisplayToken) DisplayState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.power[token]
}

func (c *fakeComposer) isDestroyed(token DisplayToken) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed[token]
}

func (c *fakeComposer) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// syncWindowManager performs every requested traversal right away.
type syncWindowManager struct {
	m        *Manager
	requests atomic.Int32
}

func (w *syncWindowManager) RequestTraversalFromDisplayManager() {
	w.requests.Add(1)
	w.m.PerformTraversalInTransactionFromWindowManager()
}

// countingWindowManager only counts requests.
type countingWindowManager struct {
	requests atomic.Int32
}

func (w *countingWindowManager) RequestTraversalFromDisplayManager() {
	w.requests.Add(1)
}

type recordedEvent struct {
	DisplayID int
	Event     DisplayEvent
}

type recordingListener struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (l *recordingListener) OnDisplayEvent(displayID int, event DisplayEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, recordedEvent{displayID, event})
	return nil
}

func (l *recordingListener) snapshot() []recordedEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedEvent(nil), l.events...)
}

func (l *recordingListener) eventsFor(displayID int) []DisplayEvent {
	var out []DisplayEvent
	for _, e := range l.snapshot() {
		if e.DisplayID == displayID {
			out = append(out, e.Event)
		}
	}
	return out
}

func (l *recordingListener) count(displayID int, event DisplayEvent) int {
	n := 0
	for _, e := range l.eventsFor(displayID) {
		if e == event {
			n++
		}
	}
	return n
}

type panelSource struct {
	mu     sync.Mutex
	panels []Panel
	err    error
}

func (p *panelSource) Panels() ([]Panel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Panel(nil), p.panels...), p.err
}

func (p *panelSource) set(panels ...Panel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.panels = panels
}

type recordingRouter struct {
	mu                    sync.Mutex
	calls                 int
	defaultViewport       Viewport
	externalTouchViewport Viewport
}

func (r *recordingRouter) SetDisplayViewports(defaultViewport, externalTouchViewport Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.defaultViewport = defaultViewport
	r.externalTouchViewport = externalTouchViewport
}

func (r *recordingRouter) viewports() (Viewport, Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultViewport, r.externalTouchViewport
}

var builtInPanel = Panel{ID: "eDP-1", Name: "eDP-1", Width: 1920, Height: 1080, RefreshRate: 60, DensityDPI: 160, XDPI: 160, YDPI: 160, Primary: true}
var externalPanel = Panel{ID: "HDMI-A-1", Name: "HDMI-A-1", Width: 1280, Height: 720, RefreshRate: 60, DensityDPI: 120, XDPI: 120, YDPI: 120}

type testEnv struct {
	m        *Manager
	composer *fakeComposer
	panels   *panelSource
	wm       *syncWindowManager
	router   *recordingRouter
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestManager boots a manager with the built-in panel plus the given
// extra panels, a synchronous window manager and a recording input router.
func newTestManager(t *testing.T, configure func(*Options), extra ...Panel) (*testEnv, *syncBuffer) {
	t.Helper()

	logs := &syncBuffer{}
	composer := newFakeComposer()
	panels := &panelSource{}
	panels.set(append([]Panel{builtInPanel}, extra...)...)

	opts := Options{
		Composer: composer,
		Logger:   log.NewWithOptions(logs, log.Options{Level: log.DebugLevel}),
		Local:    LocalOptions{Source: panels},
	}
	if configure != nil {
		configure(&opts)
	}

	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	env := &testEnv{
		m:        m,
		composer: composer,
		panels:   panels,
		wm:       &syncWindowManager{m: m},
		router:   &recordingRouter{},
	}
	m.SetInputRouter(env.router)
	m.SetWindowManager(env.wm)

	require.NoError(t, m.Start(context.Background(), waitFor))
	env.settle()
	return env, logs
}

// settle waits until every handler has drained the work queued so far.
// Work posted while settling is drained by the following rounds.
func (e *testEnv) settle() {
	for i := 0; i < 6; i++ {
		e.m.handler.RunSync(func() {})
		e.m.ui.RunSync(func() {})
		e.m.dispatch.RunSync(func() {})
	}
}

func (e *testEnv) displayIDs(caller Caller) []int {
	return e.m.GetDisplayIDs(caller)
}

// deviceToken returns the compositor token of the device behind a display.
func (e *testEnv) deviceToken(t *testing.T, displayID int) DisplayToken {
	t.Helper()
	e.m.syncRoot.Lock()
	defer e.m.syncRoot.Unlock()
	display := e.m.logicalDisplays[displayID]
	require.NotNil(t, display, "display %d", displayID)
	return display.PrimaryDeviceLocked().Token()
}

// testDevice is a device with fixed info, injected straight into the
// manager.
type testDevice struct {
	deviceBase
	info DisplayDeviceInfo
}

func newTestDevice(composer Composer, token DisplayToken, info DisplayDeviceInfo) *testDevice {
	d := &testDevice{
		deviceBase: newDeviceBase(nil, composer, token, info.UniqueID),
		info:       info,
	}
	d.computeInfo = func() DisplayDeviceInfo { return d.info }
	return d
}

type recordingCallback struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCallback) OnPaused()  { c.add("paused") }
func (c *recordingCallback) OnResumed() { c.add("resumed") }
func (c *recordingCallback) OnStopped() { c.add("stopped") }

func (c *recordingCallback) add(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
}

func (c *recordingCallback) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}
