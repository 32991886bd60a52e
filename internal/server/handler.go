package server

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/bnema/displaymgr/internal/ipc"
	"github.com/charmbracelet/log"
)

// requestHandler serves IPC requests against the server's manager.
type requestHandler struct {
	s   *Server
	log *log.Logger
}

func newRequestHandler(s *Server) *requestHandler {
	return &requestHandler{s: s, log: s.log.WithPrefix("ipc")}
}

// clientToken scopes a client chosen token to the calling user, so two
// users cannot reach each other's virtual displays.
func clientToken(caller display.Caller, token string) display.ClientToken {
	return display.ClientToken(fmt.Sprintf("uid:%d/%s", caller.UID, token))
}

// privileged reports whether caller may change global state: root, the
// system uid and the user running the daemon.
func privileged(caller display.Caller) bool {
	return caller.UID == display.RootUID || caller.UID == display.SystemUID || caller.UID == os.Getuid()
}

func (h *requestHandler) HandleRequest(sess *ipc.Session, op string, body ipc.Body) (ipc.Body, error) {
	caller := callerFor(sess)
	m := h.s.manager

	switch op {
	case ipc.OpStatus:
		return ipc.EncodeStatus(ipc.Status{
			Version:      Version,
			PID:          os.Getpid(),
			DisplayState: m.GlobalDisplayState(),
			DisplayCount: len(m.GetDisplayIDs(caller)),
			Adapters:     m.AdapterNames(),
		}), nil

	case ipc.OpGetDisplayIDs:
		return ipc.Body{"display_ids": m.GetDisplayIDs(caller)}, nil

	case ipc.OpGetDisplayInfo:
		info, ok := m.GetDisplayInfo(body.Int("display_id"), caller)
		if !ok {
			return ipc.Body{"found": false}, nil
		}
		return ipc.Body{"found": true, "info": ipc.EncodeDisplayInfo(info)}, nil

	case ipc.OpRegisterListener:
		return nil, h.registerListener(sess, caller)

	case ipc.OpStartCastScan:
		return nil, m.StartCastScan(caller)

	case ipc.OpStopCastScan:
		return nil, m.StopCastScan(caller)

	case ipc.OpCreateVirtualDisplay:
		return h.createVirtualDisplay(sess, caller, body)

	case ipc.OpResizeVirtualDisplay:
		token, err := requireToken(body)
		if err != nil {
			return nil, err
		}
		return nil, m.ResizeVirtualDisplay(clientToken(caller, token),
			body.Int("width"), body.Int("height"), body.Int("density"))

	case ipc.OpSetVirtualDisplaySurface:
		token, err := requireToken(body)
		if err != nil {
			return nil, err
		}
		m.SetVirtualDisplaySurface(clientToken(caller, token), display.Surface(body.String("surface")))
		return nil, nil

	case ipc.OpReleaseVirtualDisplay:
		token, err := requireToken(body)
		if err != nil {
			return nil, err
		}
		m.ReleaseVirtualDisplay(clientToken(caller, token))
		return nil, nil

	case ipc.OpRequestDisplayState:
		if !privileged(caller) {
			return nil, fmt.Errorf("%w: changing the display state requires privileges", display.ErrSecurity)
		}
		state, err := display.ParseDisplayState(body.String("state"))
		if err != nil {
			return nil, err
		}
		h.log.Info("display state requested", "state", state, "pid", caller.PID, "uid", caller.UID)
		m.RequestDisplayState(state)
		return nil, nil

	case ipc.OpGetViewports:
		defaultViewport, externalTouchViewport := m.GetViewports()
		return ipc.Body{
			"default":        ipc.EncodeViewport(defaultViewport),
			"external_touch": ipc.EncodeViewport(externalTouchViewport),
		}, nil

	case ipc.OpSetOverlayMode:
		if !privileged(caller) {
			return nil, fmt.Errorf("%w: changing overlay modes requires privileges", display.ErrSecurity)
		}
		return nil, m.SetOverlayMode(body.Int("number"), body.Int("mode"))

	case ipc.OpRevokeProjection:
		if !privileged(caller) {
			return nil, fmt.Errorf("%w: revoking projections requires privileges", display.ErrSecurity)
		}
		token := body.String("token")
		if token == "" {
			return nil, fmt.Errorf("%w: projection token must not be empty", display.ErrInvalidArgument)
		}
		return ipc.Body{"revoked": h.s.grants.Revoke(token)}, nil

	case ipc.OpDump:
		if !privileged(caller) {
			return nil, fmt.Errorf("%w: dump requires privileges", display.ErrSecurity)
		}
		return ipc.Body{"dump": h.s.dump()}, nil

	default:
		return nil, fmt.Errorf("%w: unknown operation %q", display.ErrInvalidArgument, op)
	}
}

func requireToken(body ipc.Body) (string, error) {
	token := body.String("token")
	if token == "" {
		return "", fmt.Errorf("%w: client token must not be empty", display.ErrInvalidArgument)
	}
	return token, nil
}

func (h *requestHandler) registerListener(sess *ipc.Session, caller display.Caller) error {
	listener := display.ListenerFunc(func(displayID int, event display.DisplayEvent) error {
		return sess.Push(ipc.NewDisplayEvent(displayID, event))
	})
	unregister, err := h.s.manager.RegisterListener(caller, listener)
	if err != nil {
		return err
	}
	sess.OnClose(unregister)
	return nil
}

func (h *requestHandler) createVirtualDisplay(sess *ipc.Session, caller display.Caller, body ipc.Body) (ipc.Body, error) {
	spec, err := ipc.DecodeVirtualDisplaySpec(body)
	if err != nil {
		return nil, err
	}
	if spec.Token == "" {
		return nil, fmt.Errorf("%w: client token must not be empty", display.ErrInvalidArgument)
	}

	displayID, died, err := h.s.manager.CreateVirtualDisplay(caller, display.VirtualDisplayRequest{
		Token:      clientToken(caller, spec.Token),
		Name:       spec.Name,
		Width:      spec.Width,
		Height:     spec.Height,
		DensityDPI: spec.DensityDPI,
		Surface:    display.Surface(spec.Surface),
		Flags:      spec.Flags,
		Projection: spec.Projection,
		Callback:   &virtualCallback{sess: sess, token: spec.Token, log: h.log},
	})
	if err != nil {
		return nil, err
	}
	sess.OnClose(died)
	return ipc.Body{"display_id": displayID}, nil
}

// virtualCallback forwards virtual display lifecycle callbacks to the
// session that created the display.
type virtualCallback struct {
	sess  *ipc.Session
	token string
	log   *log.Logger
}

func (c *virtualCallback) OnPaused()  { c.push(ipc.CallbackPaused) }
func (c *virtualCallback) OnResumed() { c.push(ipc.CallbackResumed) }
func (c *virtualCallback) OnStopped() { c.push(ipc.CallbackStopped) }

func (c *virtualCallback) push(callback string) {
	if err := c.sess.Push(ipc.NewVirtualCallbackEvent(c.token, callback)); err != nil {
		c.log.Debug("failed to deliver virtual display callback", "token", c.token, "callback", callback, "err", err)
	}
}

// dump renders the manager state followed by the compositor view.
func (s *Server) dump() string {
	var buf bytes.Buffer
	s.manager.Dump(&buf)

	traversals, transactions := s.host.Stats()
	fmt.Fprintf(&buf, "\nCOMPOSITOR\n")
	fmt.Fprintf(&buf, "  traversals=%d transactions=%d\n", traversals, transactions)
	for _, d := range s.recorder.Snapshot() {
		fmt.Fprintf(&buf, "  %d %q: layerStack=%d size=%dx%d orientation=%s viewport=%s frame=%s power=%s secure=%t",
			d.Token, d.Name, d.LayerStack, d.Width, d.Height, d.Orientation,
			d.LayerStackRect, d.DisplayRect, d.Power, d.Secure)
		if d.Surface != "" {
			fmt.Fprintf(&buf, " surface=%s", d.Surface)
		}
		buf.WriteString("\n")
	}
	return strings.TrimRight(buf.String(), "\n") + "\n"
}
