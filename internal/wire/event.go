package wire

// Kind identifies the active variant of an Event.
type Kind uint8

const (
	KindUnset Kind = iota
	KindCaptureStarted
	KindCaptureFinished
	KindSchedulingSlice
	KindInternedCallstack
	KindCallstackSample
	KindFunctionCall
	KindIntrospectionScope
	KindInternedString
	KindModuleUpdate
	KindModulesSnapshot
	KindGpuJob
	KindGpuQueueSubmission
	KindThreadName
	KindThreadNamesSnapshot
	KindThreadStateSlice
	KindAddressInfo
	KindInternedTracepointInfo
	KindTracepointEvent
	KindMemoryUsage
	KindApiEvent
	KindMetadataEvent

	kindEnd // sentinel, keep last
)

func (k Kind) String() string {
	names := [...]string{
		KindUnset:                  "unset",
		KindCaptureStarted:         "capture-started",
		KindCaptureFinished:        "capture-finished",
		KindSchedulingSlice:        "scheduling-slice",
		KindInternedCallstack:      "interned-callstack",
		KindCallstackSample:        "callstack-sample",
		KindFunctionCall:           "function-call",
		KindIntrospectionScope:     "introspection-scope",
		KindInternedString:         "interned-string",
		KindModuleUpdate:           "module-update",
		KindModulesSnapshot:        "modules-snapshot",
		KindGpuJob:                 "gpu-job",
		KindGpuQueueSubmission:     "gpu-queue-submission",
		KindThreadName:             "thread-name",
		KindThreadNamesSnapshot:    "thread-names-snapshot",
		KindThreadStateSlice:       "thread-state-slice",
		KindAddressInfo:            "address-info",
		KindInternedTracepointInfo: "interned-tracepoint-info",
		KindTracepointEvent:        "tracepoint-event",
		KindMemoryUsage:            "memory-usage",
		KindApiEvent:               "api-event",
		KindMetadataEvent:          "metadata-event",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Event is the tagged union delivered once per wire message. Exactly one
// variant pointer is non-nil, matching Kind.
type Event struct {
	Kind Kind

	CaptureStarted         *CaptureStarted
	CaptureFinished        *CaptureFinished
	SchedulingSlice        *SchedulingSlice
	InternedCallstack      *InternedCallstack
	CallstackSample        *CallstackSample
	FunctionCall           *FunctionCall
	IntrospectionScope     *IntrospectionScope
	InternedString         *InternedString
	ModuleUpdate           *ModuleUpdate
	ModulesSnapshot        *ModulesSnapshot
	GpuJob                 *GpuJob
	GpuQueueSubmission     *GpuQueueSubmission
	ThreadName             *ThreadName
	ThreadNamesSnapshot    *ThreadNamesSnapshot
	ThreadStateSlice       *ThreadStateSlice
	AddressInfo            *AddressInfo
	InternedTracepointInfo *InternedTracepointInfo
	TracepointEvent        *TracepointEvent
	MemoryUsage            *MemoryUsage
	ApiEvent               *ApiEvent
	MetadataEvent          *MetadataEvent
}

// CaptureStarted opens a capture session. It is the first event of a
// conformant stream.
type CaptureStarted struct {
	PID                     int32
	ExecutablePath          string
	CaptureStartTimestampNs uint64
}

// CaptureFinished closes a capture session. It is the last event of a
// conformant stream.
type CaptureFinished struct {
	OK           bool
	ErrorMessage string
}

// SchedulingSlice is one CPU scheduling interval: the traced thread occupied
// Core from OutTimestampNs-DurationNs until OutTimestampNs.
type SchedulingSlice struct {
	PID            int32
	TID            int32
	Core           int32
	OutTimestampNs uint64
	DurationNs     uint64
}

// CallstackKind classifies how a call stack was unwound.
type CallstackKind uint8

const (
	CallstackComplete CallstackKind = iota
	CallstackDwarfUnwindingError
	CallstackFramePointerUnwindingError
	CallstackInUprobes
	CallstackUprobesPatchingFailed
	CallstackStackTopTooSmall
	CallstackStackTopDwarfError

	callstackKindEnd // sentinel, keep last
)

// Callstack is an ordered sequence of program counters, innermost first.
type Callstack struct {
	PCs  []uint64
	Kind CallstackKind
}

// InternedCallstack binds an intern key to a call stack. Keys are defined at
// most once per capture.
type InternedCallstack struct {
	Key       uint64
	Callstack Callstack
}

// CallstackSample references a previously interned call stack.
type CallstackSample struct {
	CallstackID uint64
	PID         int32
	TID         int32
	TimestampNs uint64
}

// FunctionCall is one dynamically instrumented call, reported at return time.
type FunctionCall struct {
	PID            int32
	TID            int32
	Depth          int32
	FunctionID     uint64
	EndTimestampNs uint64
	DurationNs     uint64
	ReturnValue    uint64
	Registers      []uint64
}

// IntrospectionScope is a self-profiling scope of the tracer itself.
type IntrospectionScope struct {
	PID            int32
	TID            int32
	Depth          int32
	EndTimestampNs uint64
	DurationNs     uint64
	Registers      []uint64
}

// InternedString binds an intern key to a string. Keys are defined at most
// once per capture.
type InternedString struct {
	Key    uint64
	Intern string
}

// ModuleInfo describes one loaded object file of the target process.
type ModuleInfo struct {
	Name         string
	FilePath     string
	BuildID      string
	AddressStart uint64
	AddressEnd   uint64
	LoadBias     uint64
}

// ModuleUpdate reports a module (un)load observed mid-capture.
type ModuleUpdate struct {
	TimestampNs uint64
	Module      ModuleInfo
}

// ModulesSnapshot is the full module list of the target at TimestampNs.
type ModulesSnapshot struct {
	TimestampNs uint64
	PID         int32
	Modules     []ModuleInfo
}

// GpuJob is one raw GPU job record from the driver: the four hardware/driver
// timestamps spanning submission to fence signal.
type GpuJob struct {
	PID                 int32
	TID                 int32
	Context             uint32
	SeqNo               uint32
	Depth               int32
	TimelineKey         uint64
	IoctlTimeNs         uint64
	SchedRunTimeNs      uint64
	HwStartTimeNs       uint64
	FenceSignaledTimeNs uint64
}

// SubmissionMetaInfo locates a queue submission on the CPU timeline: the
// thread that issued it and the CPU timestamps bracketing the submit call.
type SubmissionMetaInfo struct {
	TID                          int32
	PreSubmissionCpuTimestampNs  uint64
	PostSubmissionCpuTimestampNs uint64
}

// GpuCommandBuffer is one command buffer of a submit, in GPU clock domain.
type GpuCommandBuffer struct {
	BeginGpuTimestampNs uint64
	EndGpuTimestampNs   uint64
}

// GpuSubmitInfo groups the command buffers of one vkQueueSubmit batch entry.
type GpuSubmitInfo struct {
	CommandBuffers []GpuCommandBuffer
}

// GpuDebugMarkerBeginInfo is the begin half of a debug marker. The meta info
// identifies the submission the begin was recorded in, which may be an
// earlier submission than the one carrying the completed marker.
type GpuDebugMarkerBeginInfo struct {
	MetaInfo       *SubmissionMetaInfo
	GpuTimestampNs uint64
}

// GpuDebugMarker is a completed (closed) debug marker. BeginMarker is nil
// when the begin was recorded before the capture started.
type GpuDebugMarker struct {
	TextKey           uint64
	Depth             int32
	EndGpuTimestampNs uint64
	BeginMarker       *GpuDebugMarkerBeginInfo
}

// GpuQueueSubmission is a Vulkan-level submission record: command buffer
// timestamps and debug markers, correlated later with the matching GpuJob.
// NumBeginMarkers counts begin markers recorded within this submission,
// including ones whose end lies in a later submission.
type GpuQueueSubmission struct {
	MetaInfo         *SubmissionMetaInfo
	SubmitInfos      []GpuSubmitInfo
	CompletedMarkers []GpuDebugMarker
	NumBeginMarkers  uint32
}

// ThreadName reports the current name of one thread.
type ThreadName struct {
	PID  int32
	TID  int32
	Name string
}

// ThreadNamesSnapshot batches the names of all threads at TimestampNs.
type ThreadNamesSnapshot struct {
	TimestampNs uint64
	ThreadNames []ThreadName
}

// ThreadState is the closed set of OS thread states.
type ThreadState uint8

const (
	ThreadStateRunning ThreadState = iota
	ThreadStateRunnable
	ThreadStateInterruptibleSleep
	ThreadStateUninterruptibleSleep
	ThreadStateStopped
	ThreadStateTraced
	ThreadStateDead
	ThreadStateZombie
	ThreadStateParked
	ThreadStateIdle

	threadStateEnd // sentinel, keep last
)

// ThreadStateSlice is one interval spent in State, reported at its end.
type ThreadStateSlice struct {
	TID            int32
	State          ThreadState
	EndTimestampNs uint64
	DurationNs     uint64
}

// AddressInfo maps an absolute address to interned function and module name
// keys. Both keys must already be defined by prior interned-string events.
type AddressInfo struct {
	AbsoluteAddress  uint64
	FunctionNameKey  uint64
	ModuleNameKey    uint64
	OffsetInFunction uint64
}

// TracepointInfo identifies a kernel tracepoint.
type TracepointInfo struct {
	Category string
	Name     string
}

// InternedTracepointInfo binds an intern key to a tracepoint definition.
type InternedTracepointInfo struct {
	Key  uint64
	Info TracepointInfo
}

// TracepointEvent is one occurrence of a previously interned tracepoint.
type TracepointEvent struct {
	PID           int32
	TID           int32
	CPU           int32
	TimestampNs   uint64
	TracepointKey uint64
}

// SystemMemoryUsage samples system-wide memory counters, in kilobytes.
// A counter that could not be read is -1.
type SystemMemoryUsage struct {
	TotalKB     int64
	FreeKB      int64
	AvailableKB int64
	BuffersKB   int64
	CachedKB    int64
}

// ProcessMemoryUsage samples per-process memory counters. A counter that
// could not be read is -1.
type ProcessMemoryUsage struct {
	PID         int32
	RssAnonKB   int64
	MinorFaults int64
	MajorFaults int64
}

// MemoryUsage wraps the memory counter samples taken at TimestampNs. Either
// sub-record may be nil when its source was unavailable.
type MemoryUsage struct {
	TimestampNs uint64
	System      *SystemMemoryUsage
	Process     *ProcessMemoryUsage
}

// ApiEventKind is the closed set of manual-instrumentation event sub-types.
type ApiEventKind uint8

const (
	ApiScopeStart ApiEventKind = iota
	ApiScopeStop
	ApiScopeStartAsync
	ApiScopeStopAsync
	ApiTrackInt32
	ApiTrackUint32
	ApiTrackInt64
	ApiTrackUint64
	ApiTrackFloat
	ApiTrackDouble

	apiEventKindEnd // sentinel, keep last
)

// ApiEvent is one manual-instrumentation record. Name is set for scope starts
// and tracked values, ID for async scope pairs, and Payload carries the raw
// little-endian value bytes for tracked values.
type ApiEvent struct {
	PID         int32
	TID         int32
	TimestampNs uint64
	Kind        ApiEventKind
	Name        string
	ID          uint64
	Payload     [8]byte
	Color       uint32
}

// MetadataEvent is free-form capture metadata passed through untouched.
type MetadataEvent struct {
	TimestampNs uint64
	Name        string
	Value       string
}
