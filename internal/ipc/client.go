package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/logger"
)

// ErrNotRunning is returned when no server listens on the socket.
var ErrNotRunning = errors.New("displaymgr is not running")

// eventBuffer is how many pushed events a connection holds before it
// starts dropping them.
const eventBuffer = 256

// Client dials a running display manager.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the server at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// NewClientWithTimeout creates a client with a custom dial and request
// timeout.
func NewClientWithTimeout(socketPath string, timeout time.Duration) *Client {
	c := NewClient(socketPath)
	c.timeout = timeout
	return c
}

// Dial opens a connection. Listener registrations and virtual displays
// belong to the connection and go away when it is closed.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	d := net.Dialer{Timeout: c.timeout}
	nc, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if isConnectionRefused(err) {
			return nil, ErrNotRunning
		}
		return nil, fmt.Errorf("failed to connect to displaymgr: %w", err)
	}

	conn := &Conn{
		conn:    nc,
		timeout: c.timeout,
		pending: make(map[uint64]chan *Message),
		events:  make(chan *Message, eventBuffer),
		done:    make(chan struct{}),
	}
	go conn.readLoop()
	return conn, nil
}

// Do dials, runs fn and closes the connection.
func (c *Client) Do(ctx context.Context, fn func(*Conn) error) error {
	conn, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Debugf("Failed to close IPC connection: %v", err)
		}
	}()
	return fn(conn)
}

// IsRunning reports whether a server answers on the socket.
func (c *Client) IsRunning(ctx context.Context) bool {
	return c.Do(ctx, func(conn *Conn) error {
		_, err := conn.Status(ctx)
		return err
	}) == nil
}

func isConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT)
}

// Conn is one open connection to the server. Responses are matched to
// requests by id; pushed events are delivered on Events.
type Conn struct {
	conn    net.Conn
	timeout time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *Message
	err     error

	events    chan *Message
	done      chan struct{}
	closeOnce sync.Once
}

// Events returns the pushed events. The channel is closed when the
// connection ends.
func (c *Conn) Events() <-chan *Message { return c.events }

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close closes the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) readLoop() {
	defer close(c.events)
	defer close(c.done)

	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		switch msg.Type {
		case TypeEvent:
			select {
			case c.events <- msg:
			default:
				logger.Warn("Dropping IPC event, receiver is not keeping up", "event", msg.Op)
			}
		case TypeResponse, TypeError:
			c.mu.Lock()
			ch := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ch != nil {
				ch <- msg
			}
		default:
			logger.Debugf("Ignoring IPC message of type %s", msg.Type)
		}
	}
}

// Call sends a request and waits for its response.
func (c *Conn) Call(ctx context.Context, op string, body Body) (Body, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, NewRequest(id, op, body)); err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return responseBody(msg)
	case <-c.done:
		select {
		case msg := <-ch:
			return responseBody(msg)
		default:
		}
		return nil, fmt.Errorf("connection closed: %w", c.readErr())
	case <-timer.C:
		return nil, fmt.Errorf("timed out waiting for %s response", op)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func responseBody(msg *Message) (Body, error) {
	if msg.Type == TypeError {
		return nil, GetError(msg)
	}
	return msg.Body, nil
}

func (c *Conn) readErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return net.ErrClosed
	}
	return c.err
}

func (c *Conn) write(ctx context.Context, msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}
	return WriteMessage(c.conn, msg)
}

// Status returns the server summary.
func (c *Conn) Status(ctx context.Context) (Status, error) {
	body, err := c.Call(ctx, OpStatus, nil)
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(body), nil
}

// DisplayIDs returns the ids of the displays this user may see.
func (c *Conn) DisplayIDs(ctx context.Context) ([]int, error) {
	body, err := c.Call(ctx, OpGetDisplayIDs, nil)
	if err != nil {
		return nil, err
	}
	return body.Ints("display_ids"), nil
}

// DisplayInfo returns the info of one display. ok is false when the
// display does not exist or is not visible to this user.
func (c *Conn) DisplayInfo(ctx context.Context, displayID int) (info display.DisplayInfo, ok bool, err error) {
	body, err := c.Call(ctx, OpGetDisplayInfo, Body{"display_id": displayID})
	if err != nil {
		return display.DisplayInfo{}, false, err
	}
	if !body.Bool("found") {
		return display.DisplayInfo{}, false, nil
	}
	return DecodeDisplayInfo(body.Map("info")), true, nil
}

// RegisterListener subscribes this connection to display events.
func (c *Conn) RegisterListener(ctx context.Context) error {
	_, err := c.Call(ctx, OpRegisterListener, nil)
	return err
}

func (c *Conn) StartCastScan(ctx context.Context) error {
	_, err := c.Call(ctx, OpStartCastScan, nil)
	return err
}

func (c *Conn) StopCastScan(ctx context.Context) error {
	_, err := c.Call(ctx, OpStopCastScan, nil)
	return err
}

// CreateVirtualDisplay creates a virtual display owned by this connection
// and returns its display id.
func (c *Conn) CreateVirtualDisplay(ctx context.Context, spec VirtualDisplaySpec) (int, error) {
	body, err := c.Call(ctx, OpCreateVirtualDisplay, spec.encode())
	if err != nil {
		return display.InvalidDisplayID, err
	}
	return body.Int("display_id"), nil
}

func (c *Conn) ResizeVirtualDisplay(ctx context.Context, token string, width, height, densityDPI int) error {
	_, err := c.Call(ctx, OpResizeVirtualDisplay, Body{
		"token":   token,
		"width":   width,
		"height":  height,
		"density": densityDPI,
	})
	return err
}

// SetVirtualDisplaySurface attaches a surface; an empty surface detaches.
func (c *Conn) SetVirtualDisplaySurface(ctx context.Context, token, surface string) error {
	_, err := c.Call(ctx, OpSetVirtualDisplaySurface, Body{"token": token, "surface": surface})
	return err
}

func (c *Conn) ReleaseVirtualDisplay(ctx context.Context, token string) error {
	_, err := c.Call(ctx, OpReleaseVirtualDisplay, Body{"token": token})
	return err
}

// RequestDisplayState changes the global display state.
func (c *Conn) RequestDisplayState(ctx context.Context, state display.DisplayState) error {
	_, err := c.Call(ctx, OpRequestDisplayState, Body{"state": state.String()})
	return err
}

// Viewports returns the default and external touch viewports.
func (c *Conn) Viewports(ctx context.Context) (defaultViewport, externalTouchViewport display.Viewport, err error) {
	body, err := c.Call(ctx, OpGetViewports, nil)
	if err != nil {
		return display.Viewport{}, display.Viewport{}, err
	}
	return DecodeViewport(body.Map("default")), DecodeViewport(body.Map("external_touch")), nil
}

func (c *Conn) SetOverlayMode(ctx context.Context, number, modeIndex int) error {
	_, err := c.Call(ctx, OpSetOverlayMode, Body{"number": number, "mode": modeIndex})
	return err
}

// RevokeProjection revokes a projection grant and reports whether it
// existed.
func (c *Conn) RevokeProjection(ctx context.Context, token string) (bool, error) {
	body, err := c.Call(ctx, OpRevokeProjection, Body{"token": token})
	if err != nil {
		return false, err
	}
	return body.Bool("revoked"), nil
}

// Dump returns the server's diagnostic dump.
func (c *Conn) Dump(ctx context.Context) (string, error) {
	body, err := c.Call(ctx, OpDump, nil)
	if err != nil {
		return "", err
	}
	return body.String("dump"), nil
}

// Watch registers this connection as a display listener and calls fn for
// every display event until ctx is done or the connection ends.
func (c *Conn) Watch(ctx context.Context, fn func(displayID int, event display.DisplayEvent)) error {
	if err := c.RegisterListener(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.events:
			if !ok {
				return fmt.Errorf("connection closed: %w", c.readErr())
			}
			if id, event, ok := DecodeDisplayEvent(msg); ok {
				fn(id, event)
			}
		}
	}
}
