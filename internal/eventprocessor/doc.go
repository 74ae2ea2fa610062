// Package eventprocessor reduces the inbound wire event stream to normalized
// domain events on a capture listener.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│        Wire Event Stream                │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │  ← Exhaustive variant dispatch
//	│   - Routes by variant tag               │
//	│   - Owns per-capture state              │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ Interned strings ──→ interning pools
//	          │    and call stacks      - Define once per key
//	          │                         - Keep first binding on duplicates
//	          │
//	          ├──→ GPU jobs and ─────→ gpu.Reconstructor
//	          │    queue submissions   - Derived phase intervals
//	          │                        - Job/submission correlation
//	          │
//	          ├──→ Api events ───────→ api sub-processor
//	          │                        - Scope stacks per tid
//	          │                        - Async scope pairing
//	          │                        - Tracked value decode
//	          │
//	          └──→ Everything else ──→ capture.Listener
//	                                   - Normalized, deduplicated events
//
// The processor is a pure reducer: single writer, no internal parallelism,
// one wire event fully processed (including all listener calls) before the
// next is accepted. Recoverable protocol anomalies are logged and processing
// continues; fatal ones are returned from Process and end the session.
package eventprocessor
