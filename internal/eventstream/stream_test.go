package eventstream

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecap/internal/wire"
)

// collectHandler records processed events and optionally fails on one kind.
type collectHandler struct {
	events []*wire.Event
	failOn wire.Kind
	err    error
}

func (h *collectHandler) Process(event *wire.Event) error {
	if h.err != nil && event.Kind == h.failOn {
		return h.err
	}
	h.events = append(h.events, event)
	return nil
}

func encodeStream(t *testing.T, events ...*wire.Event) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := wire.NewEncoder(&buf)
	for _, ev := range events {
		require.NoError(t, enc.Encode(ev))
	}
	return &buf
}

func TestStream_RunToEOF(t *testing.T) {
	buf := encodeStream(t,
		&wire.Event{Kind: wire.KindCaptureStarted, CaptureStarted: &wire.CaptureStarted{PID: 1}},
		&wire.Event{Kind: wire.KindSchedulingSlice, SchedulingSlice: &wire.SchedulingSlice{OutTimestampNs: 100, DurationNs: 50}},
		&wire.Event{Kind: wire.KindCaptureFinished, CaptureFinished: &wire.CaptureFinished{OK: true}},
	)

	handler := &collectHandler{}
	stream := New(wire.NewDecoder(buf), handler)
	require.NoError(t, stream.Run(context.Background()))

	require.Len(t, handler.events, 3)
	assert.Equal(t, wire.KindCaptureStarted, handler.events[0].Kind)
	assert.Equal(t, wire.KindCaptureFinished, handler.events[2].Kind)
}

func TestStream_HandlerErrorStopsStream(t *testing.T) {
	buf := encodeStream(t,
		&wire.Event{Kind: wire.KindCaptureStarted, CaptureStarted: &wire.CaptureStarted{PID: 1}},
		&wire.Event{Kind: wire.KindSchedulingSlice, SchedulingSlice: &wire.SchedulingSlice{OutTimestampNs: 100}},
		&wire.Event{Kind: wire.KindCaptureFinished, CaptureFinished: &wire.CaptureFinished{OK: true}},
	)

	fatal := errors.New("boom")
	handler := &collectHandler{failOn: wire.KindSchedulingSlice, err: fatal}
	stream := New(wire.NewDecoder(buf), handler)

	err := stream.Run(context.Background())
	assert.ErrorIs(t, err, fatal)
	assert.Len(t, handler.events, 1, "nothing processed past the fatal event")
}

func TestStream_DecodeErrorStopsStream(t *testing.T) {
	buf := encodeStream(t,
		&wire.Event{Kind: wire.KindCaptureStarted, CaptureStarted: &wire.CaptureStarted{PID: 1}},
	)
	// Append garbage that cannot be a valid frame.
	buf.Write([]byte{0x05, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0xff, 0xff})

	handler := &collectHandler{}
	stream := New(wire.NewDecoder(buf), handler)

	err := stream.Run(context.Background())
	require.Error(t, err)
	assert.Len(t, handler.events, 1)
}

func TestStream_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	buf := encodeStream(t,
		&wire.Event{Kind: wire.KindCaptureStarted, CaptureStarted: &wire.CaptureStarted{PID: 1}},
	)
	handler := &collectHandler{}
	stream := New(wire.NewDecoder(buf), handler)

	err := stream.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, handler.events)
}

func TestStream_StartStopWait(t *testing.T) {
	buf := encodeStream(t,
		&wire.Event{Kind: wire.KindCaptureStarted, CaptureStarted: &wire.CaptureStarted{PID: 1}},
		&wire.Event{Kind: wire.KindCaptureFinished, CaptureFinished: &wire.CaptureFinished{OK: true}},
	)
	handler := &collectHandler{}
	stream := New(wire.NewDecoder(buf), handler)

	stream.Start(context.Background())
	require.NoError(t, stream.Wait())
	assert.Len(t, handler.events, 2)
}
