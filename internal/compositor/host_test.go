package compositor

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTraverser struct {
	mu         sync.Mutex
	traversals int
	content    map[int]bool
	calls      []string
	block      chan struct{}
}

func (f *fakeTraverser) PerformTraversalInTransactionFromWindowManager() {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traversals++
	f.calls = append(f.calls, "traverse")
}

func (f *fakeTraverser) SetDisplayHasContent(displayID int, hasContent, inTraversal bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.content == nil {
		f.content = make(map[int]bool)
	}
	f.content[displayID] = hasContent
	f.calls = append(f.calls, fmt.Sprintf("content %d %t in_traversal=%t", displayID, hasContent, inTraversal))
}

func (f *fakeTraverser) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.traversals
}

func TestHostCoalescesRequests(t *testing.T) {
	traverser := &fakeTraverser{block: make(chan struct{})}
	h := NewHost(traverser, log.New(&bytes.Buffer{}))
	defer h.Close()

	// The first request is picked up and blocks; the rest collapse into one.
	h.RequestTraversalFromDisplayManager()
	require.Eventually(t, func() bool {
		n, _ := h.Stats()
		return n == 1
	}, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		h.RequestTraversalFromDisplayManager()
	}
	close(traverser.block)

	require.Eventually(t, func() bool { return traverser.count() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, traverser.count())
}

func TestHostReportsContentDuringTraversal(t *testing.T) {
	traverser := &fakeTraverser{block: make(chan struct{})}
	h := NewHost(traverser, nil)
	defer h.Close()

	// Hold the first traversal so both changes land in the next one.
	h.RequestTraversalFromDisplayManager()
	require.Eventually(t, func() bool {
		n, _ := h.Stats()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	h.SetContent(3, true)
	h.SetContent(5, true)
	h.SetContent(3, false)
	close(traverser.block)

	require.Eventually(t, func() bool { return traverser.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.False(t, h.HasContent(3))
	assert.True(t, h.HasContent(5))

	traverser.mu.Lock()
	defer traverser.mu.Unlock()
	assert.Equal(t, map[int]bool{3: false, 5: true}, traverser.content)
	assert.Equal(t, []string{
		"traverse",
		"content 3 false in_traversal=true",
		"content 5 true in_traversal=true",
		"traverse",
	}, traverser.calls)
}

type panels []display.Panel

func (p panels) Panels() ([]display.Panel, error) { return p, nil }

func newHostedManager(t *testing.T) (*display.Manager, *Host, *Recorder) {
	t.Helper()
	logger := log.New(&bytes.Buffer{})
	recorder := NewRecorder(logger)
	m, err := display.New(display.Options{
		Composer: recorder,
		Logger:   logger,
		Local: display.LocalOptions{Source: panels{
			{ID: "eDP-1", Name: "eDP-1", Width: 1920, Height: 1080, RefreshRate: 60, DensityDPI: 160, Primary: true},
			{ID: "HDMI-A-1", Name: "HDMI-A-1", Width: 1280, Height: 720, RefreshRate: 60, DensityDPI: 120},
		}},
		CoreOnly: true,
	})
	require.NoError(t, err)
	t.Cleanup(m.Close)

	host := NewHost(m, logger)
	t.Cleanup(host.Close)
	m.SetWindowManager(host)
	m.RegisterTransactionListener(host)
	require.NoError(t, m.Start(context.Background(), 2*time.Second))
	return m, host, recorder
}

func layerStacks(recorder *Recorder) []int {
	var out []int
	for _, d := range recorder.Snapshot() {
		out = append(out, d.LayerStack)
	}
	return out
}

func TestHostDrivesManager(t *testing.T) {
	_, host, recorder := newHostedManager(t)

	require.Eventually(t, func() bool {
		ls := layerStacks(recorder)
		return len(ls) == 2 && ls[0] == 0 && ls[1] == 0
	}, 2*time.Second, 5*time.Millisecond, "external panel mirrors the default display")

	host.SetContent(1, true)
	require.Eventually(t, func() bool {
		ls := layerStacks(recorder)
		return len(ls) == 2 && ls[1] == 1
	}, 2*time.Second, 5*time.Millisecond)

	_, transactions := host.Stats()
	assert.Positive(t, transactions)
}

func TestHostTraversalsSurviveConcurrentManagerChanges(t *testing.T) {
	m, host, recorder := newHostedManager(t)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				switch (w + i) % 4 {
				case 0:
					host.SetContent(1, i%2 == 0)
				case 1:
					m.SetDisplayInfoOverride(display.DefaultDisplayID, nil)
					m.SetDisplayHasContent(1, i%2 == 1, false)
				case 2:
					if i%2 == 0 {
						m.RequestDisplayState(display.StateOff)
					} else {
						m.RequestDisplayState(display.StateOn)
					}
				case 3:
					host.RequestTraversalFromDisplayManager()
					m.PerformTraversalInTransactionFromWindowManager()
				}
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("window manager and display manager deadlocked")
	}

	m.RequestDisplayState(display.StateOn)
	host.SetContent(1, true)
	require.Eventually(t, func() bool {
		ls := layerStacks(recorder)
		return len(ls) == 2 && ls[1] == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, host.HasContent(1))
}
