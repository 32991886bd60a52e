package display

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCastController struct {
	mu       sync.Mutex
	listener CastListener
	started  int
	stopped  int
}

func (c *fakeCastController) Start(listener CastListener) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = listener
	return nil
}

func (c *fakeCastController) RequestStartScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *fakeCastController) RequestStopScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped++
}

func (c *fakeCastController) starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *fakeCastController) stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *fakeCastController) currentListener() CastListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func TestCastSinkLifecycle(t *testing.T) {
	controller := &fakeCastController{}
	env, _ := newTestManager(t, func(o *Options) { o.CastController = controller })
	listener := controller.currentListener()
	require.NotNil(t, listener)
	assert.Equal(t, listener, env.m.CastListener())

	sink := CastSink{Address: "aa:bb:cc:dd:ee:ff", Name: "Living Room", Width: 1920, Height: 1080, RefreshRate: 60, Secure: true}
	listener.SinkConnected(sink)
	listener.SinkConnected(sink)
	env.settle()

	require.Equal(t, []int{0, 1}, env.displayIDs(appCaller))
	info, _ := env.m.GetDisplayInfo(1, appCaller)
	assert.Equal(t, TypeCast, info.Type)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", info.Address)
	assert.Equal(t, 320, info.LogicalDensityDPI)
	assert.NotZero(t, info.Flags&DisplaySecure)

	// A different sink replaces the current one.
	listener.SinkConnected(CastSink{Address: "11:22", Name: "Bedroom", Width: 1280, Height: 720, RefreshRate: 30})
	env.settle()
	require.Equal(t, []int{0, 2}, env.displayIDs(appCaller))
	info, _ = env.m.GetDisplayInfo(2, appCaller)
	assert.Equal(t, 160, info.LogicalDensityDPI)

	listener.SinkDisconnected()
	listener.SinkDisconnected()
	env.settle()
	assert.Equal(t, []int{DefaultDisplayID}, env.displayIDs(appCaller))
}

func TestCastScanIsReferenceCounted(t *testing.T) {
	controller := &fakeCastController{}
	env, _ := newTestManager(t, func(o *Options) { o.CastController = controller })

	assert.ErrorIs(t, env.m.StartCastScan(appCaller), ErrNotRegistered)
	assert.ErrorIs(t, env.m.StopCastScan(appCaller), ErrNotRegistered)

	_, err := env.m.RegisterListener(appCaller, &recordingListener{})
	require.NoError(t, err)
	otherDied, err := env.m.RegisterListener(otherCaller, &recordingListener{})
	require.NoError(t, err)

	require.NoError(t, env.m.StartCastScan(appCaller))
	require.NoError(t, env.m.StartCastScan(appCaller))
	require.NoError(t, env.m.StartCastScan(otherCaller))
	env.settle()
	assert.Equal(t, 1, controller.starts())

	require.NoError(t, env.m.StopCastScan(appCaller))
	env.settle()
	assert.Equal(t, 0, controller.stops())

	otherDied()
	env.settle()
	assert.Equal(t, 1, controller.stops())

	require.NoError(t, env.m.StopCastScan(appCaller))
	env.settle()
	assert.Equal(t, 1, controller.stops())
}

func TestCastListenerWithoutAdapter(t *testing.T) {
	env, _ := newTestManager(t, func(o *Options) { o.CoreOnly = true })
	assert.Nil(t, env.m.CastListener())
}
