// Package capture defines the consumer side of the processing core: the
// Listener contract that normalized domain events are delivered through, the
// normalized event shapes themselves, and the capture time watermark.
//
// Listener calls are made synchronously from within event processing, on the
// stream-reading goroutine. One wire event is fully processed, including all
// resulting listener calls, before the next one is accepted; implementations
// that need another thread must marshal the work themselves.
package capture
