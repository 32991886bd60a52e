package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/bnema/displaymgr/internal/display"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := NewRequest(42, OpCreateVirtualDisplay, Body{
		"name":   "cast",
		"width":  1280,
		"nested": Body{"ids": []int{0, 3}},
		"public": true,
	})
	require.NoError(t, WriteMessage(&buf, req))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), got.ID)
	assert.Equal(t, TypeRequest, got.Type)
	assert.Equal(t, OpCreateVirtualDisplay, got.Op)
	assert.Equal(t, "cast", got.Body.String("name"))
	assert.Equal(t, 1280, got.Body.Int("width"))
	assert.True(t, got.Body.Bool("public"))
	assert.Equal(t, []int{0, 3}, got.Body.Map("nested").Ints("ids"))
	assert.Zero(t, buf.Len())
}

func TestMessageWithoutBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewRequest(1, OpStatus, nil)))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	assert.NotNil(t, got.Body)
	assert.False(t, got.Body.Has("anything"))
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(maxMessageSize+1)))

	_, err := ReadMessage(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestReadMessageTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewRequest(1, OpDump, nil)))
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-1])

	_, err := ReadMessage(truncated)
	assert.Error(t, err)
}

func TestErrorMessages(t *testing.T) {
	req := NewRequest(7, OpCreateVirtualDisplay, nil)

	tests := []struct {
		name     string
		err      error
		wantKind string
		sentinel error
	}{
		{
			name:     "invalid argument",
			err:      fmt.Errorf("%w: name must be non-empty", display.ErrInvalidArgument),
			wantKind: KindInvalidArgument,
			sentinel: display.ErrInvalidArgument,
		},
		{
			name:     "security",
			err:      fmt.Errorf("%w: requires CAPTURE_SECURE_VIDEO_OUTPUT", display.ErrSecurity),
			wantKind: KindSecurity,
			sentinel: display.ErrSecurity,
		},
		{
			name:     "already registered",
			err:      fmt.Errorf("pid 42: %w", display.ErrAlreadyRegistered),
			wantKind: KindAlreadyRegistered,
			sentinel: display.ErrAlreadyRegistered,
		},
		{
			name:     "not registered",
			err:      display.ErrNotRegistered,
			wantKind: KindNotRegistered,
			sentinel: display.ErrNotRegistered,
		},
		{
			name:     "adapter unavailable",
			err:      display.ErrAdapterUnavailable,
			wantKind: KindUnavailable,
			sentinel: display.ErrAdapterUnavailable,
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			wantKind: KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteMessage(&buf, NewErrorMessage(req, tt.err)))
			msg, err := ReadMessage(&buf)
			require.NoError(t, err)

			assert.Equal(t, TypeError, msg.Type)
			assert.Equal(t, uint64(7), msg.ID)

			remote := GetError(msg)
			var re *RemoteError
			require.ErrorAs(t, remote, &re)
			assert.Equal(t, tt.wantKind, re.Kind)
			assert.Equal(t, tt.err.Error(), re.Error())
			if tt.sentinel != nil {
				assert.ErrorIs(t, remote, tt.sentinel)
			}
		})
	}
}

func TestGetErrorOnResponse(t *testing.T) {
	msg := NewResponse(NewRequest(1, OpStatus, nil), nil)
	assert.Error(t, GetError(msg))
	assert.False(t, errors.As(GetError(msg), new(*RemoteError)))
}

func TestDisplayInfoOverTheWire(t *testing.T) {
	info := display.DisplayInfo{
		DisplayID:         2,
		LayerStack:        2,
		Name:              "HDMI Screen",
		UniqueID:          "local:1",
		Type:              display.TypeExternal,
		Address:           "HDMI-A-1",
		Flags:             display.DisplayPresentation | display.DisplaySecure,
		State:             display.StateOn,
		AppWidth:          1920,
		AppHeight:         1080,
		LogicalWidth:      1920,
		LogicalHeight:     1080,
		Rotation:          display.Rotation90,
		RefreshRate:       59.94,
		LogicalDensityDPI: 160,
		PhysicalXDPI:      92.5,
		PhysicalYDPI:      92.5,
		OwnerUID:          1000,
		OwnerPackage:      "shell",
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewEvent("info", Body{"info": EncodeDisplayInfo(info)})))
	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	assert.Equal(t, info, DecodeDisplayInfo(msg.Body.Map("info")))
}

func TestViewportOverTheWire(t *testing.T) {
	vp := display.Viewport{
		Valid:         true,
		DisplayID:     0,
		Orientation:   display.Rotation270,
		LogicalFrame:  display.Rect{Right: 1280, Bottom: 720},
		PhysicalFrame: display.Rect{Left: 10, Top: 20, Right: 1290, Bottom: 740},
		DeviceWidth:   1300,
		DeviceHeight:  760,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewEvent("vp", Body{"vp": EncodeViewport(vp)})))
	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	assert.Equal(t, vp, DecodeViewport(msg.Body.Map("vp")))
}

func TestDecodeVirtualDisplaySpec(t *testing.T) {
	spec := VirtualDisplaySpec{
		Token:      "t1",
		Name:       "recorder",
		Width:      640,
		Height:     480,
		DensityDPI: 120,
		Surface:    "buf-1",
		Flags:      display.VirtualPublic | display.VirtualOwnContentOnly,
		Projection: "grant",
	}
	got, err := DecodeVirtualDisplaySpec(spec.encode())
	require.NoError(t, err)
	assert.Equal(t, spec, got)

	_, err = DecodeVirtualDisplaySpec(Body{"flags": "public,sparkly"})
	assert.ErrorIs(t, err, display.ErrInvalidArgument)
}

func TestDisplayEvents(t *testing.T) {
	for _, event := range []display.DisplayEvent{
		display.EventDisplayAdded,
		display.EventDisplayChanged,
		display.EventDisplayRemoved,
	} {
		id, got, ok := DecodeDisplayEvent(NewDisplayEvent(3, event))
		require.True(t, ok, event.String())
		assert.Equal(t, 3, id)
		assert.Equal(t, event, got)
	}

	_, _, ok := DecodeDisplayEvent(NewVirtualCallbackEvent("t", CallbackPaused))
	assert.False(t, ok)

	token, callback, ok := DecodeVirtualCallbackEvent(NewVirtualCallbackEvent("t", CallbackStopped))
	require.True(t, ok)
	assert.Equal(t, "t", token)
	assert.Equal(t, CallbackStopped, callback)
}

func TestStatusOverTheWire(t *testing.T) {
	status := Status{
		Version:      "dev",
		PID:          1234,
		DisplayState: display.StateOn,
		DisplayCount: 2,
		Adapters:     []string{"LocalDisplayAdapter", "VirtualDisplayAdapter"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewResponse(NewRequest(1, OpStatus, nil), EncodeStatus(status))))
	msg, err := ReadMessage(&buf)
	require.NoError(t, err)

	assert.Equal(t, status, DecodeStatus(msg.Body))
}
