package wire

import "errors"

// Protocol error sentinels. Both are fatal: a conformant stream never
// produces them, so hitting one means the producer and this decoder disagree
// about the protocol and no resynchronization is possible mid-stream.
var (
	// ErrUnknownVariant is returned for an unset or unrecognized event tag.
	ErrUnknownVariant = errors.New("unset or unknown event variant")

	// ErrUnknownEnumValue is returned when a closed-set field (thread state,
	// callstack kind, api sub-type) carries a value outside its set.
	ErrUnknownEnumValue = errors.New("unknown enum value")

	// ErrTruncated is returned when a frame ends before its variant's fields.
	ErrTruncated = errors.New("truncated event frame")
)
