package display

import (
	"bytes"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestHandlerRunsInOrder(t *testing.T) {
	h := NewHandler("test", log.New(&bytes.Buffer{}))
	defer h.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		h.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	assert.True(t, h.RunSync(func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestHandlerRecoversFromPanics(t *testing.T) {
	var buf syncBuffer
	h := NewHandler("test", log.New(&buf))
	defer h.Close()

	h.Post(func() { panic("boom") })
	ran := false
	assert.True(t, h.RunSync(func() { ran = true }))
	assert.True(t, ran)
	assert.Contains(t, buf.String(), "handler task panicked")
}

func TestHandlerClose(t *testing.T) {
	h := NewHandler("test", log.New(&bytes.Buffer{}))
	h.Close()
	h.Close()

	assert.False(t, h.Post(func() {}))
	assert.False(t, h.RunSync(func() {}))
}
