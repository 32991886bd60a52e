package display

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Handler runs posted functions one at a time, in posting order, on its
// own goroutine.
type Handler struct {
	name string
	log  *log.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewHandler starts a handler goroutine.
func NewHandler(name string, logger *log.Logger) *Handler {
	h := &Handler{
		name: name,
		log:  logger,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go h.loop()
	return h
}

// Post queues fn. It reports false once the handler is closed.
func (h *Handler) Post(fn func()) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.queue = append(h.queue, fn)
	select {
	case h.wake <- struct{}{}:
	default:
	}
	h.mu.Unlock()
	return true
}

// RunSync posts fn and waits for it to finish.
func (h *Handler) RunSync(fn func()) bool {
	finished := make(chan struct{})
	if !h.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		return false
	}
}

// Close stops the handler after the function currently running. Queued
// work is dropped.
func (h *Handler) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.closed = true
	h.queue = nil
	close(h.wake)
	h.mu.Unlock()

	<-h.done
}

func (h *Handler) loop() {
	defer close(h.done)
	for range h.wake {
		for {
			h.mu.Lock()
			if h.closed || len(h.queue) == 0 {
				h.mu.Unlock()
				break
			}
			fn := h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			h.mu.Unlock()

			h.run(fn)
		}
	}
}

func (h *Handler) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler task panicked", "handler", h.name, "panic", r)
		}
	}()
	fn()
}
