package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ValueKind is the decoded type of a tracked value.
type ValueKind uint8

const (
	ValueNone ValueKind = iota
	ValueInt64
	ValueUint64
	ValueFloat64
)

// TrackedValue is a manual-instrumentation value sample, decoded from the
// 8-byte little-endian payload according to the event's sub-type tag.
// Narrower integer types are widened; Kind records which accessor is valid.
type TrackedValue struct {
	Kind    ValueKind
	Int64   int64
	Uint64  uint64
	Float64 float64
}

func (v TrackedValue) String() string {
	switch v.Kind {
	case ValueInt64:
		return fmt.Sprintf("%d", v.Int64)
	case ValueUint64:
		return fmt.Sprintf("%d", v.Uint64)
	case ValueFloat64:
		return fmt.Sprintf("%g", v.Float64)
	}
	return "<none>"
}

// DecodeTrackedValue interprets the raw payload bytes of a tracked-value
// api event. Decoding with a non-value sub-type is rejected, never
// reinterpreted.
func DecodeTrackedValue(kind ApiEventKind, payload [8]byte) (TrackedValue, error) {
	bits := binary.LittleEndian.Uint64(payload[:])
	switch kind {
	case ApiTrackInt32:
		return TrackedValue{Kind: ValueInt64, Int64: int64(int32(uint32(bits)))}, nil
	case ApiTrackUint32:
		return TrackedValue{Kind: ValueUint64, Uint64: uint64(uint32(bits))}, nil
	case ApiTrackInt64:
		return TrackedValue{Kind: ValueInt64, Int64: int64(bits)}, nil
	case ApiTrackUint64:
		return TrackedValue{Kind: ValueUint64, Uint64: bits}, nil
	case ApiTrackFloat:
		return TrackedValue{Kind: ValueFloat64, Float64: float64(math.Float32frombits(uint32(bits)))}, nil
	case ApiTrackDouble:
		return TrackedValue{Kind: ValueFloat64, Float64: math.Float64frombits(bits)}, nil
	}
	return TrackedValue{}, fmt.Errorf("%w: not a tracked-value sub-type: %s", ErrUnknownEnumValue, kind)
}
