package capture

import (
	"github.com/google/uuid"

	"tracecap/internal/wire"
)

// TimerType tags the source a normalized interval was derived from.
type TimerType uint8

const (
	TimerNone TimerType = iota
	TimerCoreActivity
	TimerGpuActivity
	TimerGpuCommandBuffer
	TimerGpuDebugMarker
	TimerFrame
	TimerIntrospection
	TimerApiScope
	TimerApiScopeAsync
	TimerApiValue
)

func (t TimerType) String() string {
	switch t {
	case TimerNone:
		return "none"
	case TimerCoreActivity:
		return "core-activity"
	case TimerGpuActivity:
		return "gpu-activity"
	case TimerGpuCommandBuffer:
		return "gpu-command-buffer"
	case TimerGpuDebugMarker:
		return "gpu-debug-marker"
	case TimerFrame:
		return "frame"
	case TimerIntrospection:
		return "introspection"
	case TimerApiScope:
		return "api-scope"
	case TimerApiScopeAsync:
		return "api-scope-async"
	case TimerApiValue:
		return "api-value"
	}
	return "timer-type(?)"
}

// InvalidProcessor marks intervals with no CPU affinity.
const InvalidProcessor int32 = -1

// TimerInfo is the normalized interval shape every timer-like event is
// reduced to. Start <= End; fields past Type are populated per type:
// FunctionID for dynamic instrumentation, TimelineKey and LabelKey for GPU
// activity, AsyncID and Value for manual instrumentation.
type TimerInfo struct {
	ProcessID   int32
	ThreadID    int32
	Start       uint64
	End         uint64
	Depth       uint8
	Processor   int32
	Type        TimerType
	FunctionID  uint64
	UserDataKey uint64
	LabelKey    uint64
	TimelineKey uint64
	AsyncID     uint64
	Registers   []uint64
	Value       wire.TrackedValue
}

// ThreadState mirrors wire.ThreadState one-to-one on the consumer side.
// The mapping is performed by an exhaustive switch in the processor so a
// producer/consumer version skew surfaces as a decode error, never as a
// silently shifted value.
type ThreadState uint8

const (
	StateRunning ThreadState = iota
	StateRunnable
	StateInterruptibleSleep
	StateUninterruptibleSleep
	StateStopped
	StateTraced
	StateDead
	StateZombie
	StateParked
	StateIdle
)

func (s ThreadState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateRunnable:
		return "runnable"
	case StateInterruptibleSleep:
		return "interruptible-sleep"
	case StateUninterruptibleSleep:
		return "uninterruptible-sleep"
	case StateStopped:
		return "stopped"
	case StateTraced:
		return "traced"
	case StateDead:
		return "dead"
	case StateZombie:
		return "zombie"
	case StateParked:
		return "parked"
	case StateIdle:
		return "idle"
	}
	return "thread-state(?)"
}

// ThreadStateSlice is one normalized thread-state interval.
type ThreadStateSlice struct {
	TID              int32
	State            ThreadState
	BeginTimestampNs uint64
	EndTimestampNs   uint64
}

// CallstackType mirrors wire.CallstackKind one-to-one on the consumer side.
type CallstackType uint8

const (
	CallstackComplete CallstackType = iota
	CallstackDwarfUnwindingError
	CallstackFramePointerUnwindingError
	CallstackInUprobes
	CallstackUprobesPatchingFailed
	CallstackStackTopTooSmall
	CallstackStackTopDwarfError
)

// CallstackInfo is the owned form of a call stack handed to the listener
// exactly once per distinct id.
type CallstackInfo struct {
	Frames []uint64
	Type   CallstackType
}

// CallstackEvent references a call stack already delivered via
// OnUniqueCallstack.
type CallstackEvent struct {
	TimestampNs uint64
	CallstackID uint64
	ThreadID    int32
}

// AddressInfo is the resolved form of a wire address-info record, with the
// interned name keys replaced by their strings.
type AddressInfo struct {
	AbsoluteAddress  uint64
	ModulePath       string
	FunctionName     string
	OffsetInFunction uint64
}

// TracepointEventInfo is one normalized tracepoint occurrence.
type TracepointEventInfo struct {
	PID           int32
	TID           int32
	CPU           int32
	TimestampNs   uint64
	TracepointKey uint64
}

// StartInfo describes the opening of a capture session.
type StartInfo struct {
	CaptureID               uuid.UUID
	PID                     int32
	ExecutablePath          string
	CaptureStartTimestampNs uint64
}

// FinishInfo describes the close of a capture session. MinTimestampNs is the
// capture time watermark observed across all timestamped events; Valid is
// false when no timestamped event arrived.
type FinishInfo struct {
	CaptureID         uuid.UUID
	OK                bool
	ErrorMessage      string
	MinTimestampNs    uint64
	MinTimestampValid bool
}

// Listener is the consumer sink the processing core delivers normalized
// events to. The core depends only on this interface; sink lifetime is
// managed by the caller.
//
// Ordering guarantees: OnCaptureStarted is the first call of a session and
// OnCaptureFinished the last. OnKeyAndString for a key always precedes any
// event referencing that key. OnUniqueCallstack and OnUniqueTracepointInfo
// are called at most once per distinct id.
type Listener interface {
	OnCaptureStarted(info StartInfo)
	OnCaptureFinished(info FinishInfo)
	OnTimer(timer TimerInfo)
	OnKeyAndString(key uint64, str string)
	OnUniqueCallstack(id uint64, callstack CallstackInfo)
	OnCallstackEvent(event CallstackEvent)
	OnThreadName(tid int32, name string)
	OnThreadStateSlice(slice ThreadStateSlice)
	OnAddressInfo(info AddressInfo)
	OnUniqueTracepointInfo(key uint64, info wire.TracepointInfo)
	OnTracepointEvent(event TracepointEventInfo)
	OnModuleUpdate(timestampNs uint64, module wire.ModuleInfo)
	OnModulesSnapshot(timestampNs uint64, modules []wire.ModuleInfo)
	OnMemoryUsageEvent(event wire.MemoryUsage)
	OnMetadataEvent(event wire.MetadataEvent)
}
