package display

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSizeSource struct {
	mu      sync.Mutex
	size    SurfaceSize
	err     error
	watcher func(SurfaceSize)
	stopped bool
}

func (s *fakeSizeSource) CurrentSize() (SurfaceSize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size, s.err
}

func (s *fakeSizeSource) Watch(fn func(SurfaceSize)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopped = true
	}, nil
}

func (s *fakeSizeSource) watching() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watcher != nil
}

func (s *fakeSizeSource) emit(size SurfaceSize) {
	s.mu.Lock()
	fn := s.watcher
	s.mu.Unlock()
	fn(size)
}

func TestAuxiliarySurfaceIsReplacedOnResize(t *testing.T) {
	source := &fakeSizeSource{size: SurfaceSize{Width: 1280, Height: 720}}
	env, _ := newTestManager(t, func(o *Options) { o.AuxiliarySource = source })
	listener := &recordingListener{}
	_, err := env.m.RegisterListener(systemCaller, listener)
	require.NoError(t, err)

	require.Eventually(t, source.watching, waitFor, tick)
	require.Eventually(t, func() bool {
		env.settle()
		return len(env.displayIDs(systemCaller)) == 2
	}, waitFor, tick)

	info, ok := env.m.GetDisplayInfo(1, systemCaller)
	require.True(t, ok)
	assert.Equal(t, TypeAuxiliary, info.Type)
	assert.Equal(t, 1280, info.AppWidth)
	assert.Equal(t, defaultAuxiliaryDensity, info.LogicalDensityDPI)

	// The same size changes nothing.
	source.emit(SurfaceSize{Width: 1280, Height: 720})
	env.settle()
	assert.Equal(t, []int{0, 1}, env.displayIDs(systemCaller))

	source.emit(SurfaceSize{Width: 1920, Height: 1080, DensityDPI: 240})
	env.settle()

	assert.Equal(t, []int{0, 2}, env.displayIDs(systemCaller))
	assert.Equal(t, 1, listener.count(1, EventDisplayRemoved))
	assert.Equal(t, []DisplayEvent{EventDisplayAdded}, listener.eventsFor(2))
	info, _ = env.m.GetDisplayInfo(2, systemCaller)
	assert.Equal(t, 240, info.LogicalDensityDPI)

	source.emit(SurfaceSize{})
	env.settle()
	assert.Equal(t, []int{DefaultDisplayID}, env.displayIDs(systemCaller))

	env.m.Close()
	source.mu.Lock()
	defer source.mu.Unlock()
	assert.True(t, source.stopped)
}

func TestAuxiliarySurfaceTouchNeedsOwnContent(t *testing.T) {
	source := &fakeSizeSource{size: SurfaceSize{Width: 1280, Height: 720, DensityDPI: 160}}
	env, _ := newTestManager(t, func(o *Options) { o.AuxiliarySource = source })

	require.Eventually(t, func() bool {
		env.settle()
		return len(env.displayIDs(systemCaller)) == 2
	}, waitFor, tick)

	_, ext := env.router.viewports()
	assert.False(t, ext.Valid, "a mirroring auxiliary surface takes no touch")

	env.m.SetDisplayHasContent(1, true, false)
	env.settle()
	_, ext = env.router.viewports()
	assert.True(t, ext.Valid)
	assert.Equal(t, 1, ext.DisplayID)
}

func TestAuxiliarySourceErrorIsLogged(t *testing.T) {
	source := &fakeSizeSource{err: errors.New("no bus")}
	_, logs := newTestManager(t, func(o *Options) { o.AuxiliarySource = source })

	require.Eventually(t, source.watching, waitFor, tick)
	assert.Contains(t, logs.String(), "failed to read auxiliary surface size")
}

// signalSizeSource delivers sizes from its own goroutine and, like a bus
// subscription, waits for that goroutine when stopped. A signal pending at
// stop time is delivered before the goroutine exits.
type signalSizeSource struct {
	entered chan struct{}
	proceed chan struct{}
	signals chan SurfaceSize
	stopped chan struct{}
}

func newSignalSizeSource() *signalSizeSource {
	return &signalSizeSource{
		entered: make(chan struct{}),
		proceed: make(chan struct{}),
		signals: make(chan SurfaceSize),
		stopped: make(chan struct{}),
	}
}

func (s *signalSizeSource) CurrentSize() (SurfaceSize, error) {
	return SurfaceSize{}, nil
}

func (s *signalSizeSource) Watch(fn func(SurfaceSize)) (func(), error) {
	close(s.entered)
	<-s.proceed

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			case size := <-s.signals:
				fn(size)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.signals <- SurfaceSize{Width: 800, Height: 600}
			close(stop)
			<-done
			close(s.stopped)
		})
	}, nil
}

func TestCloseWhileWatchIsStartingStopsWatchOutsideLock(t *testing.T) {
	source := newSignalSizeSource()
	env, _ := newTestManager(t, func(o *Options) { o.AuxiliarySource = source })

	select {
	case <-source.entered:
	case <-time.After(waitFor):
		t.Fatal("auxiliary adapter never started watching")
	}

	env.m.Close()
	close(source.proceed)

	select {
	case <-source.stopped:
	case <-time.After(waitFor):
		t.Fatal("stopping the size watch blocked on the manager lock")
	}

	// The signal delivered while stopping is ignored after Close.
	assert.Equal(t, []int{DefaultDisplayID}, env.displayIDs(systemCaller))
}
