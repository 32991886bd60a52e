package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/displaymgr/internal/display"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message types
const (
	TypeRequest  = "request"
	TypeResponse = "response"
	TypeError    = "error"
	TypeEvent    = "event"
)

// Operations
const (
	OpStatus                   = "status"
	OpGetDisplayIDs            = "get_display_ids"
	OpGetDisplayInfo           = "get_display_info"
	OpRegisterListener         = "register_listener"
	OpStartCastScan            = "start_cast_scan"
	OpStopCastScan             = "stop_cast_scan"
	OpCreateVirtualDisplay     = "create_virtual_display"
	OpResizeVirtualDisplay     = "resize_virtual_display"
	OpSetVirtualDisplaySurface = "set_virtual_display_surface"
	OpReleaseVirtualDisplay    = "release_virtual_display"
	OpRequestDisplayState      = "request_display_state"
	OpGetViewports             = "get_viewports"
	OpSetOverlayMode           = "set_overlay_mode"
	OpRevokeProjection         = "revoke_projection"
	OpDump                     = "dump"
)

// Pushed event names, carried in the op field of event messages.
const (
	EventDisplay         = "display_event"
	EventVirtualCallback = "virtual_callback"
)

// Error kinds
const (
	KindInvalidArgument   = "invalid_argument"
	KindSecurity          = "security"
	KindAlreadyRegistered = "already_registered"
	KindNotRegistered     = "not_registered"
	KindUnavailable       = "unavailable"
	KindInternal          = "internal"
)

// maxMessageSize bounds a single frame.
const maxMessageSize = 4 << 20

// Body is the payload of a message. Values are whatever structpb can carry:
// numbers come back as float64 and lists as []interface{}.
type Body map[string]interface{}

// Message is one frame on the wire.
type Message struct {
	ID   uint64
	Type string
	Op   string
	Body Body
}

// NewRequest creates a request message.
func NewRequest(id uint64, op string, body Body) *Message {
	return &Message{ID: id, Type: TypeRequest, Op: op, Body: body}
}

// NewResponse creates the response to a request.
func NewResponse(req *Message, body Body) *Message {
	return &Message{ID: req.ID, Type: TypeResponse, Op: req.Op, Body: body}
}

// NewEvent creates a pushed event message.
func NewEvent(name string, body Body) *Message {
	return &Message{Type: TypeEvent, Op: name, Body: body}
}

// NewErrorMessage creates the error response to a request.
func NewErrorMessage(req *Message, err error) *Message {
	return &Message{
		ID:   req.ID,
		Type: TypeError,
		Op:   req.Op,
		Body: Body{
			"error": err.Error(),
			"kind":  errorKind(err),
		},
	}
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

var errorKinds = []struct {
	kind     string
	sentinel error
}{
	{KindInvalidArgument, display.ErrInvalidArgument},
	{KindSecurity, display.ErrSecurity},
	{KindAlreadyRegistered, display.ErrAlreadyRegistered},
	{KindNotRegistered, display.ErrNotRegistered},
	{KindUnavailable, display.ErrAdapterUnavailable},
}

// RemoteError is an error reported by the server.
type RemoteError struct {
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap lets callers test remote errors with errors.Is against the
// display sentinels.
func (e *RemoteError) Unwrap() error {
	for _, k := range errorKinds {
		if k.kind == e.Kind {
			return k.sentinel
		}
	}
	return nil
}

// GetError extracts the error carried by an error message.
func GetError(msg *Message) error {
	if msg.Type != TypeError {
		return fmt.Errorf("message is not an error")
	}
	return &RemoteError{Kind: msg.Body.String("kind"), Message: msg.Body.String("error")}
}

func (m *Message) toStruct() (*structpb.Struct, error) {
	body := normalize(m.Body)
	if body == nil {
		body = map[string]interface{}{}
	}
	return structpb.NewStruct(map[string]interface{}{
		"id":   float64(m.ID),
		"type": m.Type,
		"op":   m.Op,
		"body": body,
	})
}

// normalize turns named maps and typed slices into the plain shapes
// structpb accepts.
func normalize(v interface{}) interface{} {
	switch v := v.(type) {
	case Body:
		if v == nil {
			return nil
		}
		return normalize(map[string]interface{}(v))
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	case []Body:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case []int:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	case []string:
		out := make([]interface{}, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out
	default:
		return v
	}
}

func messageFromStruct(s *structpb.Struct) (*Message, error) {
	fields := s.AsMap()
	msg := &Message{
		Type: Body(fields).String("type"),
		Op:   Body(fields).String("op"),
		Body: Body{},
	}
	if id, ok := fields["id"].(float64); ok {
		msg.ID = uint64(id)
	}
	if body, ok := fields["body"].(map[string]interface{}); ok {
		msg.Body = body
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return msg, nil
}

// WriteMessage writes a length-prefixed protobuf frame.
func WriteMessage(w io.Writer, msg *Message) error {
	s, err := msg.toStruct()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// Header and payload go out in a single write.
	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data))) //nolint:gosec // bounded by maxMessageSize on read
	copy(frame[4:], data)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// ReadMessage reads one length-prefixed protobuf frame.
func ReadMessage(r io.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, fmt.Errorf("failed to read message length: %w", err)
	}
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d bytes", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read message data: %w", err)
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return messageFromStruct(&s)
}

// String returns a string field or "".
func (b Body) String(key string) string {
	s, _ := b[key].(string)
	return s
}

// Int returns a numeric field or 0.
func (b Body) Int(key string) int {
	switch v := b[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

// Float returns a numeric field or 0.
func (b Body) Float(key string) float64 {
	switch v := b[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// Bool returns a boolean field or false.
func (b Body) Bool(key string) bool {
	v, _ := b[key].(bool)
	return v
}

// Has reports whether the field is present.
func (b Body) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// Ints returns a list of numbers.
func (b Body) Ints(key string) []int {
	list, _ := b[key].([]interface{})
	out := make([]int, 0, len(list))
	for _, v := range list {
		if f, ok := v.(float64); ok {
			out = append(out, int(f))
		}
	}
	return out
}

// Map returns a nested object.
func (b Body) Map(key string) Body {
	m, _ := b[key].(map[string]interface{})
	return m
}
