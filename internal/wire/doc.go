// Package wire defines the inbound capture protocol: the tagged event union
// delivered by the instrumentation producer, its closed enums, the fixed-width
// tracked-value decoding, and the length-prefixed binary stream codec.
//
// Every event carries exactly one active variant, identified by Kind. Intern
// keys (strings, call stacks, tracepoints) are 64-bit handles valid within a
// single capture session only; the protocol guarantees define-before-use in
// stream order. Enum values outside the closed sets defined here are decode
// errors, never defaults.
package wire
