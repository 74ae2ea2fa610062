package wire

import "fmt"

// DecodeThreadState validates a raw thread-state byte against the closed set.
func DecodeThreadState(v uint8) (ThreadState, error) {
	if ThreadState(v) >= threadStateEnd {
		return 0, fmt.Errorf("%w: thread state %d", ErrUnknownEnumValue, v)
	}
	return ThreadState(v), nil
}

func (s ThreadState) String() string {
	switch s {
	case ThreadStateRunning:
		return "running"
	case ThreadStateRunnable:
		return "runnable"
	case ThreadStateInterruptibleSleep:
		return "interruptible-sleep"
	case ThreadStateUninterruptibleSleep:
		return "uninterruptible-sleep"
	case ThreadStateStopped:
		return "stopped"
	case ThreadStateTraced:
		return "traced"
	case ThreadStateDead:
		return "dead"
	case ThreadStateZombie:
		return "zombie"
	case ThreadStateParked:
		return "parked"
	case ThreadStateIdle:
		return "idle"
	}
	return fmt.Sprintf("thread-state(%d)", uint8(s))
}

// DecodeCallstackKind validates a raw callstack-kind byte against the closed set.
func DecodeCallstackKind(v uint8) (CallstackKind, error) {
	if CallstackKind(v) >= callstackKindEnd {
		return 0, fmt.Errorf("%w: callstack kind %d", ErrUnknownEnumValue, v)
	}
	return CallstackKind(v), nil
}

func (k CallstackKind) String() string {
	switch k {
	case CallstackComplete:
		return "complete"
	case CallstackDwarfUnwindingError:
		return "dwarf-unwinding-error"
	case CallstackFramePointerUnwindingError:
		return "frame-pointer-unwinding-error"
	case CallstackInUprobes:
		return "in-uprobes"
	case CallstackUprobesPatchingFailed:
		return "uprobes-patching-failed"
	case CallstackStackTopTooSmall:
		return "stack-top-too-small"
	case CallstackStackTopDwarfError:
		return "stack-top-dwarf-error"
	}
	return fmt.Sprintf("callstack-kind(%d)", uint8(k))
}

// DecodeApiEventKind validates a raw api-event sub-type byte against the
// closed set.
func DecodeApiEventKind(v uint8) (ApiEventKind, error) {
	if ApiEventKind(v) >= apiEventKindEnd {
		return 0, fmt.Errorf("%w: api event kind %d", ErrUnknownEnumValue, v)
	}
	return ApiEventKind(v), nil
}

func (k ApiEventKind) String() string {
	switch k {
	case ApiScopeStart:
		return "scope-start"
	case ApiScopeStop:
		return "scope-stop"
	case ApiScopeStartAsync:
		return "scope-start-async"
	case ApiScopeStopAsync:
		return "scope-stop-async"
	case ApiTrackInt32:
		return "track-int32"
	case ApiTrackUint32:
		return "track-uint32"
	case ApiTrackInt64:
		return "track-int64"
	case ApiTrackUint64:
		return "track-uint64"
	case ApiTrackFloat:
		return "track-float"
	case ApiTrackDouble:
		return "track-double"
	}
	return fmt.Sprintf("api-event-kind(%d)", uint8(k))
}

// IsTrackedValue reports whether the sub-type carries a value payload.
func (k ApiEventKind) IsTrackedValue() bool {
	switch k {
	case ApiTrackInt32, ApiTrackUint32, ApiTrackInt64, ApiTrackUint64, ApiTrackFloat, ApiTrackDouble:
		return true
	}
	return false
}
