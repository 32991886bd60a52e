package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPath returns a short socket path; t.TempDir can exceed the unix
// socket path limit for long test names.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "dm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "test.sock")
}

func startServer(t *testing.T, handler MessageHandler) *SocketServer {
	t.Helper()
	server, err := NewSocketServer(socketPath(t), handler)
	require.NoError(t, err)
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)
	return server
}

func dial(t *testing.T, server *SocketServer) *Conn {
	t.Helper()
	conn, err := NewClientWithTimeout(server.SocketPath(), 2*time.Second).Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewSocketServer(t *testing.T) {
	_, err := NewSocketServer("", HandlerFunc(func(*Session, string, Body) (Body, error) { return nil, nil }))
	assert.Error(t, err)

	_, err = NewSocketServer("/tmp/x.sock", nil)
	assert.Error(t, err)
}

func TestSocketServerStartStop(t *testing.T) {
	server, err := NewSocketServer(socketPath(t), HandlerFunc(func(*Session, string, Body) (Body, error) {
		return nil, nil
	}))
	require.NoError(t, err)

	// A stale file in the way is removed.
	require.NoError(t, os.WriteFile(server.SocketPath(), nil, 0600))

	require.NoError(t, server.Start())
	require.NoError(t, server.Start())

	fi, err := os.Stat(server.SocketPath())
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, fi.Mode()&os.ModeSocket)
	assert.Equal(t, os.FileMode(0666), fi.Mode().Perm())

	server.Stop()
	_, err = os.Stat(server.SocketPath())
	assert.True(t, os.IsNotExist(err))

	// Stopping again is harmless.
	server.Stop()
}

func TestCallRoundTrip(t *testing.T) {
	peers := make(chan Peer, 3)
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		peers <- sess.Peer()
		switch op {
		case "echo":
			return Body{"op": op, "value": body.Int("value")}, nil
		case "forbidden":
			return nil, fmt.Errorf("%w: not for you", display.ErrSecurity)
		default:
			return nil, errors.New("unknown op")
		}
	}))
	conn := dial(t, server)
	ctx := context.Background()

	body, err := conn.Call(ctx, "echo", Body{"value": 5})
	require.NoError(t, err)
	assert.Equal(t, "echo", body.String("op"))
	assert.Equal(t, 5, body.Int("value"))
	peer := <-peers
	assert.Equal(t, os.Getuid(), peer.UID)
	assert.Equal(t, os.Getpid(), peer.PID)

	_, err = conn.Call(ctx, "forbidden", nil)
	assert.ErrorIs(t, err, display.ErrSecurity)
	assert.Contains(t, err.Error(), "not for you")

	_, err = conn.Call(ctx, "nope", nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, display.ErrSecurity)
}

func TestConcurrentCalls(t *testing.T) {
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		return Body{"n": body.Int("n")}, nil
	}))
	conn := dial(t, server)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			body, err := conn.Call(context.Background(), "n", Body{"n": n})
			if assert.NoError(t, err) {
				assert.Equal(t, n, body.Int("n"))
			}
		}(i)
	}
	wg.Wait()
}

func TestPushedEvents(t *testing.T) {
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		go func() {
			for i := 0; i < 3; i++ {
				_ = sess.Push(NewDisplayEvent(i, display.EventDisplayAdded))
			}
		}()
		return nil, nil
	}))
	conn := dial(t, server)
	require.NoError(t, conn.RegisterListener(context.Background()))

	for i := 0; i < 3; i++ {
		select {
		case msg := <-conn.Events():
			id, event, ok := DecodeDisplayEvent(msg)
			require.True(t, ok)
			assert.Equal(t, i, id)
			assert.Equal(t, display.EventDisplayAdded, event)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestSessionOnCloseRunsWhenClientLeaves(t *testing.T) {
	var mu sync.Mutex
	var order []string
	closed := make(chan struct{})
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		sess.OnClose(func() {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
		})
		sess.OnClose(func() {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			close(closed)
		})
		return nil, nil
	}))
	conn := dial(t, server)
	_, err := conn.Call(context.Background(), "hold", nil)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close handlers did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestStopClosesSessions(t *testing.T) {
	released := make(chan struct{})
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		sess.OnClose(func() { close(released) })
		return nil, nil
	}))
	conn := dial(t, server)
	_, err := conn.Call(context.Background(), "hold", nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() took too long")
	}
	<-released

	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not notice the server going away")
	}
	_, err = conn.Call(context.Background(), "hold", nil)
	assert.Error(t, err)
}

func TestPushAfterClose(t *testing.T) {
	sessions := make(chan *Session, 1)
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		sessions <- sess
		return nil, nil
	}))
	conn := dial(t, server)
	_, err := conn.Call(context.Background(), "hold", nil)
	require.NoError(t, err)
	sess := <-sessions
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return sess.Push(NewDisplayEvent(0, display.EventDisplayChanged)) != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDialWithoutServer(t *testing.T) {
	client := NewClient(socketPath(t))
	_, err := client.Dial(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.False(t, client.IsRunning(context.Background()))
}

func TestCallContextCancelled(t *testing.T) {
	block := make(chan struct{})
	server := startServer(t, HandlerFunc(func(sess *Session, op string, body Body) (Body, error) {
		<-block
		return nil, nil
	}))
	conn := dial(t, server)
	t.Cleanup(func() { close(block) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := conn.Call(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
