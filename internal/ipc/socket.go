package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/displaymgr/internal/logger"
)

// writeTimeout bounds every write to a client, so a stuck client cannot
// stall event delivery for everybody else.
const writeTimeout = 2 * time.Second

// MessageHandler handles the requests of one session. The returned body is
// sent back as the response; an error is sent back as an error message.
type MessageHandler interface {
	HandleRequest(sess *Session, op string, body Body) (Body, error)
}

// HandlerFunc adapts a function to a MessageHandler.
type HandlerFunc func(sess *Session, op string, body Body) (Body, error)

func (f HandlerFunc) HandleRequest(sess *Session, op string, body Body) (Body, error) {
	return f(sess, op, body)
}

// Peer is the process on the other end of a connection, as reported by
// the kernel.
type Peer struct {
	PID int
	UID int
	GID int
}

// Session is one client connection. Handlers use it to learn who is
// calling, to push events and to tie resources to the connection lifetime.
type Session struct {
	conn net.Conn
	peer Peer

	writeMu sync.Mutex

	mu      sync.Mutex
	closers []func()
	closed  bool
}

func newSession(conn net.Conn, peer Peer) *Session {
	return &Session{conn: conn, peer: peer}
}

func (s *Session) Peer() Peer { return s.peer }

// OnClose registers fn to run when the connection goes away. Functions
// run in reverse registration order. If the session is already closed fn
// runs immediately.
func (s *Session) OnClose(fn func()) {
	s.mu.Lock()
	if !s.closed {
		s.closers = append(s.closers, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// Push sends an unsolicited message to the client.
func (s *Session) Push(msg *Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return net.ErrClosed
	}
	return s.send(msg)
}

func (s *Session) send(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return WriteMessage(s.conn, msg)
}

func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Debugf("Failed to close IPC connection: %v", err)
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

// SocketServer handles incoming IPC connections
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    MessageHandler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
	sessions   map[*Session]struct{}
}

// NewSocketServer creates a socket server listening on socketPath.
func NewSocketServer(socketPath string, handler MessageHandler) (*SocketServer, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path must not be empty")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler must not be nil")
	}
	return &SocketServer{
		socketPath: socketPath,
		handler:    handler,
		sessions:   make(map[*Session]struct{}),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *SocketServer) SocketPath() string { return s.socketPath }

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove existing socket file if it exists
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// Every user may connect; access is decided per request from the
	// peer credentials.
	if err := os.Chmod(s.socketPath, 0666); err != nil { //nolint:gosec // access is checked per peer
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Infof("IPC socket server started at %s", s.socketPath)
	return nil
}

// Stop closes the listener and every open session, then waits for the
// connection goroutines to finish.
func (s *SocketServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	sessions := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
	s.wg.Wait()

	os.RemoveAll(s.socketPath)

	logger.Info("IPC socket server stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		peer, err := peerCredentials(conn)
		if err != nil {
			logger.Warnf("Rejecting IPC connection: %v", err)
			conn.Close()
			continue
		}

		sess := newSession(conn, peer)
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions[sess] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(sess)
	}
}

func (s *SocketServer) handleConnection(sess *Session) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		sess.close()
	}()

	logger.Debug("New IPC connection established", "pid", sess.peer.PID, "uid", sess.peer.UID)

	for {
		msg, err := ReadMessage(sess.conn)
		if err != nil {
			logger.Debugf("Connection closed or read error: %v", err)
			return
		}

		response := s.handleMessage(sess, msg)
		if err := sess.send(response); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

func (s *SocketServer) handleMessage(sess *Session, msg *Message) *Message {
	if msg.Type != TypeRequest {
		return NewErrorMessage(msg, fmt.Errorf("unexpected message type: %s", msg.Type))
	}
	body, err := s.handler.HandleRequest(sess, msg.Op, msg.Body)
	if err != nil {
		logger.Debug("IPC request failed", "op", msg.Op, "pid", sess.peer.PID, "err", err)
		return NewErrorMessage(msg, err)
	}
	return NewResponse(msg, body)
}
