package compositor

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Traverser is the part of the display manager the host drives.
type Traverser interface {
	PerformTraversalInTransactionFromWindowManager()
	SetDisplayHasContent(displayID int, hasContent, inTraversal bool)
}

// Host plays the window manager. Traversals run on its own goroutine with
// the host lock held from the first content report until the manager's
// traversal returns. The manager only ever reaches the host through posted
// requests and transaction callbacks, neither of which takes that lock.
type Host struct {
	log       *log.Logger
	traverser Traverser

	// mu guards content and dirty and is held for a whole traversal.
	mu      sync.Mutex
	content map[int]bool
	dirty   map[int]bool

	traversals   atomic.Int64
	transactions atomic.Int64

	requests chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewHost(traverser Traverser, logger *log.Logger) *Host {
	if logger == nil {
		logger = log.Default()
	}
	h := &Host{
		log:       logger,
		traverser: traverser,
		content:   make(map[int]bool),
		dirty:     make(map[int]bool),
		requests:  make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.loop()
	return h
}

// RequestTraversalFromDisplayManager schedules a traversal. Requests made
// while one is already queued collapse into it.
func (h *Host) RequestTraversalFromDisplayManager() {
	select {
	case h.requests <- struct{}{}:
	default:
	}
}

// OnDisplayTransaction counts finished display transactions.
func (h *Host) OnDisplayTransaction() {
	h.transactions.Add(1)
}

func (h *Host) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case <-h.requests:
			h.traverse()
		}
	}
}

func (h *Host) traverse() {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.traversals.Add(1)
	h.log.Debug("performing display traversal", "n", n, "content_changes", len(h.dirty))

	ids := make([]int, 0, len(h.dirty))
	for id := range h.dirty {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		h.traverser.SetDisplayHasContent(id, h.dirty[id], true)
	}
	clear(h.dirty)

	h.traverser.PerformTraversalInTransactionFromWindowManager()
}

// SetContent records whether the host has windows of its own on a display.
// The change reaches the manager during the next host traversal.
func (h *Host) SetContent(displayID int, hasContent bool) {
	h.mu.Lock()
	if hasContent {
		h.content[displayID] = true
	} else {
		delete(h.content, displayID)
	}
	h.dirty[displayID] = hasContent
	h.mu.Unlock()

	h.RequestTraversalFromDisplayManager()
}

// HasContent reports what SetContent last recorded for a display.
func (h *Host) HasContent(displayID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.content[displayID]
}

// Stats returns the number of traversals run and transactions observed.
func (h *Host) Stats() (traversals, transactions int) {
	return int(h.traversals.Load()), int(h.transactions.Load())
}

// Close stops the host goroutine.
func (h *Host) Close() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}
