// Package output provides capture listeners that turn normalized events into
// output formats.
//
// SpanFormatter is a pure formatting layer that:
//   - Receives normalized domain events through the capture.Listener contract
//   - Creates OpenTelemetry spans for interval-shaped events
//   - Sets span attributes from prepared data
//
// It does NOT:
//   - Decode wire events
//   - Resolve intern keys it has not been handed
//   - Reconstruct derived intervals
//
// All event processing is delegated to specialized packages:
//   - eventprocessor: dispatch, interning, deduplication
//   - gpu: derived GPU interval synthesis
//   - timesync: monotonic timestamp conversion
//   - filter: expression evaluation
//   - threads: thread name storage and retrieval
//
// TextFormatter is the plain-text equivalent, and Fanout delivers one
// capture to several listeners.
package output
