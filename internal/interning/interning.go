// Package interning holds the per-capture intern pools and the forward-once
// deduplication filters. A pool maps a stream-scoped 64-bit key to its
// payload: defined at most once, resolved by later events. Pool memory grows
// with the number of distinct payloads in one capture and is released by
// dropping the pool with the capture session.
package interning

import (
	"errors"
	"fmt"

	"tracecap/internal/wire"
)

var (
	// ErrDuplicateKey reports a re-defined intern key. Recoverable: the
	// first-seen binding remains authoritative and the duplicate is dropped.
	ErrDuplicateKey = errors.New("duplicate intern key")

	// ErrUnresolved reports a lookup of a never-defined key. Fatal: the
	// stream violated its define-before-use ordering guarantee.
	ErrUnresolved = errors.New("unresolved intern reference")
)

// StringPool maps intern keys to strings.
type StringPool struct {
	values map[uint64]string
}

// NewStringPool creates an empty string pool.
func NewStringPool() *StringPool {
	return &StringPool{values: make(map[uint64]string)}
}

// Define binds key to value. Re-definition returns ErrDuplicateKey and keeps
// the existing binding.
func (p *StringPool) Define(key uint64, value string) error {
	if _, ok := p.values[key]; ok {
		return fmt.Errorf("%w: string key %#x", ErrDuplicateKey, key)
	}
	p.values[key] = value
	return nil
}

// Resolve returns the string bound to key.
func (p *StringPool) Resolve(key uint64) (string, error) {
	v, ok := p.values[key]
	if !ok {
		return "", fmt.Errorf("%w: string key %#x", ErrUnresolved, key)
	}
	return v, nil
}

// Contains reports whether key is defined.
func (p *StringPool) Contains(key uint64) bool {
	_, ok := p.values[key]
	return ok
}

// Len returns the number of distinct keys defined.
func (p *StringPool) Len() int {
	return len(p.values)
}

// CallstackPool maps intern keys to call stacks.
type CallstackPool struct {
	values map[uint64]wire.Callstack
}

// NewCallstackPool creates an empty call-stack pool.
func NewCallstackPool() *CallstackPool {
	return &CallstackPool{values: make(map[uint64]wire.Callstack)}
}

// Define binds key to callstack. Re-definition returns ErrDuplicateKey and
// keeps the existing binding.
func (p *CallstackPool) Define(key uint64, callstack wire.Callstack) error {
	if _, ok := p.values[key]; ok {
		return fmt.Errorf("%w: callstack key %#x", ErrDuplicateKey, key)
	}
	p.values[key] = callstack
	return nil
}

// Resolve returns the call stack bound to key.
func (p *CallstackPool) Resolve(key uint64) (wire.Callstack, error) {
	v, ok := p.values[key]
	if !ok {
		return wire.Callstack{}, fmt.Errorf("%w: callstack key %#x", ErrUnresolved, key)
	}
	return v, nil
}

// Len returns the number of distinct keys defined.
func (p *CallstackPool) Len() int {
	return len(p.values)
}

// SeenSet implements forward-once delivery: a payload identified by a 64-bit
// id is pushed to the consumer the first time its id appears and never again
// within the same capture.
type SeenSet struct {
	seen map[uint64]struct{}
}

// NewSeenSet creates an empty forward-once filter.
func NewSeenSet() *SeenSet {
	return &SeenSet{seen: make(map[uint64]struct{})}
}

// ForwardOnce invokes send iff id has not been seen before, then marks it
// seen. It reports whether send was invoked.
func (s *SeenSet) ForwardOnce(id uint64, send func()) bool {
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	send()
	return true
}

// Contains reports whether id has been forwarded already.
func (s *SeenSet) Contains(id uint64) bool {
	_, ok := s.seen[id]
	return ok
}
