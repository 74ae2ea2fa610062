// Package eventstream pumps decoded wire events from a capture stream into
// an event handler, one event at a time.
package eventstream

import (
	"context"
	"errors"
	"io"
	"log"

	"tracecap/internal/wire"
)

// Handler consumes decoded wire events. A non-nil error is fatal for the
// stream: the capture session cannot continue past it.
type Handler interface {
	Process(event *wire.Event) error
}

// Stream reads events from a decoder and dispatches them to a handler.
type Stream struct {
	decoder *wire.Decoder
	handler Handler
	stopCh  chan struct{}
	doneCh  chan error
}

// New creates a new Stream with the given decoder and event handler.
func New(decoder *wire.Decoder, handler Handler) *Stream {
	return &Stream{
		decoder: decoder,
		handler: handler,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan error, 1),
	}
}

// Start begins reading events in a goroutine. It returns immediately and
// processes events in the background until the stream ends, a fatal error
// occurs, the context is cancelled or Stop is called.
func (s *Stream) Start(ctx context.Context) {
	go func() {
		s.doneCh <- s.processEvents(ctx)
	}()
}

// Stop signals the event processing goroutine to stop.
func (s *Stream) Stop() {
	close(s.stopCh)
}

// Wait blocks until the stream has finished and returns its outcome: nil on
// a clean end of stream, the fatal error otherwise.
func (s *Stream) Wait() error {
	return <-s.doneCh
}

// Run processes the stream synchronously to completion. It is equivalent to
// Start followed by Wait.
func (s *Stream) Run(ctx context.Context) error {
	return s.processEvents(ctx)
}

// processEvents is the main event loop that reads and processes events.
func (s *Stream) processEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		default:
			event, err := s.decoder.Decode()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				// Decode failures are protocol violations; there is no way
				// to resynchronize mid-stream.
				log.Printf("decoding event: %v", err)
				return err
			}

			if err := s.handler.Process(event); err != nil {
				log.Printf("processing %s event: %v", event.Kind, err)
				return err
			}
		}
	}
}
