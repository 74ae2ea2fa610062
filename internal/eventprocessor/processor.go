package eventprocessor

import (
	"errors"
	"fmt"
	"log"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"tracecap/internal/capture"
	"tracecap/internal/gpu"
	"tracecap/internal/interning"
	"tracecap/internal/wire"
)

// Processor owns all per-capture state: the intern pools, the forward-once
// filters, the GPU reconstructor and the time watermark. Construct one per
// capture session and discard it when the session ends; it holds only a
// reference to the listener, never ownership.
//
// Process must not be called after a capture-finished event has been
// processed.
type Processor struct {
	listener capture.Listener

	strings        *stringTable
	callstacks     *interning.CallstackPool
	callstacksSeen *interning.SeenSet
	tracepoints    map[uint64]wire.TracepointInfo

	watermark capture.TimeWatermark
	gpu       *gpu.Reconstructor
	api       *apiProcessor

	captureID uuid.UUID
}

// NewProcessor creates a processor for one capture session delivering to
// listener.
func NewProcessor(listener capture.Listener) *Processor {
	p := &Processor{
		listener: listener,
		strings: &stringTable{
			pool:     interning.NewStringPool(),
			listener: listener,
		},
		callstacks:     interning.NewCallstackPool(),
		callstacksSeen: interning.NewSeenSet(),
		tracepoints:    make(map[uint64]wire.TracepointInfo),
	}
	p.gpu = gpu.NewReconstructor(p.strings, &p.watermark)
	p.api = newApiProcessor(p.strings)
	return p
}

// Process dispatches one wire event to its handler. A nil return means the
// event was consumed, possibly after logging a recoverable anomaly; a
// non-nil return is a fatal protocol violation and the session must be
// abandoned. Everything validly derived before the failure has already been
// delivered to the listener.
func (p *Processor) Process(event *wire.Event) error {
	switch event.Kind {
	case wire.KindCaptureStarted:
		p.processCaptureStarted(event.CaptureStarted)
	case wire.KindCaptureFinished:
		p.processCaptureFinished(event.CaptureFinished)
	case wire.KindSchedulingSlice:
		p.processSchedulingSlice(event.SchedulingSlice)
	case wire.KindInternedCallstack:
		p.processInternedCallstack(event.InternedCallstack)
	case wire.KindCallstackSample:
		return p.processCallstackSample(event.CallstackSample)
	case wire.KindFunctionCall:
		p.processFunctionCall(event.FunctionCall)
	case wire.KindIntrospectionScope:
		p.processIntrospectionScope(event.IntrospectionScope)
	case wire.KindInternedString:
		p.processInternedString(event.InternedString)
	case wire.KindModuleUpdate:
		p.listener.OnModuleUpdate(event.ModuleUpdate.TimestampNs, event.ModuleUpdate.Module)
	case wire.KindModulesSnapshot:
		p.listener.OnModulesSnapshot(event.ModulesSnapshot.TimestampNs, event.ModulesSnapshot.Modules)
	case wire.KindGpuJob:
		return p.processGpuJob(event.GpuJob)
	case wire.KindGpuQueueSubmission:
		return p.processGpuQueueSubmission(event.GpuQueueSubmission)
	case wire.KindThreadName:
		// Note: the pid is available on the wire, but currently dropped.
		p.listener.OnThreadName(event.ThreadName.TID, event.ThreadName.Name)
	case wire.KindThreadNamesSnapshot:
		for _, tn := range event.ThreadNamesSnapshot.ThreadNames {
			p.listener.OnThreadName(tn.TID, tn.Name)
		}
	case wire.KindThreadStateSlice:
		return p.processThreadStateSlice(event.ThreadStateSlice)
	case wire.KindAddressInfo:
		return p.processAddressInfo(event.AddressInfo)
	case wire.KindInternedTracepointInfo:
		p.processInternedTracepointInfo(event.InternedTracepointInfo)
	case wire.KindTracepointEvent:
		return p.processTracepointEvent(event.TracepointEvent)
	case wire.KindMemoryUsage:
		p.watermark.Observe(event.MemoryUsage.TimestampNs)
		p.listener.OnMemoryUsageEvent(*event.MemoryUsage)
	case wire.KindApiEvent:
		return p.processApiEvent(event.ApiEvent)
	case wire.KindMetadataEvent:
		p.listener.OnMetadataEvent(*event.MetadataEvent)
	default:
		return fmt.Errorf("%w: tag %d", wire.ErrUnknownVariant, event.Kind)
	}
	return nil
}

func (p *Processor) processCaptureStarted(started *wire.CaptureStarted) {
	p.captureID = uuid.New()
	p.listener.OnCaptureStarted(capture.StartInfo{
		CaptureID:               p.captureID,
		PID:                     started.PID,
		ExecutablePath:          started.ExecutablePath,
		CaptureStartTimestampNs: started.CaptureStartTimestampNs,
	})
}

func (p *Processor) processCaptureFinished(finished *wire.CaptureFinished) {
	minNs, valid := p.watermark.Min()
	p.listener.OnCaptureFinished(capture.FinishInfo{
		CaptureID:         p.captureID,
		OK:                finished.OK,
		ErrorMessage:      finished.ErrorMessage,
		MinTimestampNs:    minNs,
		MinTimestampValid: valid,
	})
}

func (p *Processor) processSchedulingSlice(slice *wire.SchedulingSlice) {
	inTimestampNs := slice.OutTimestampNs - slice.DurationNs
	p.watermark.Observe(inTimestampNs)
	p.listener.OnTimer(capture.TimerInfo{
		ProcessID: slice.PID,
		ThreadID:  slice.TID,
		Start:     inTimestampNs,
		End:       slice.OutTimestampNs,
		Depth:     uint8(slice.Core),
		Processor: slice.Core,
		Type:      capture.TimerCoreActivity,
	})
}

func (p *Processor) processInternedCallstack(interned *wire.InternedCallstack) {
	if err := p.callstacks.Define(interned.Key, interned.Callstack); err != nil {
		log.Printf("keeping first binding: %v", err)
	}
}

func (p *Processor) processCallstackSample(sample *wire.CallstackSample) error {
	callstack, err := p.callstacks.Resolve(sample.CallstackID)
	if err != nil {
		return fmt.Errorf("callstack sample: %w", err)
	}
	if err := p.sendCallstackOnce(sample.CallstackID, callstack); err != nil {
		return err
	}

	p.watermark.Observe(sample.TimestampNs)
	// Note: the pid is available on the wire, but currently dropped.
	p.listener.OnCallstackEvent(capture.CallstackEvent{
		TimestampNs: sample.TimestampNs,
		CallstackID: sample.CallstackID,
		ThreadID:    sample.TID,
	})
	return nil
}

// sendCallstackOnce delivers the full call-stack definition to the listener
// the first time its id is sampled.
func (p *Processor) sendCallstackOnce(id uint64, callstack wire.Callstack) error {
	if p.callstacksSeen.Contains(id) {
		return nil
	}
	callstackType, err := mapCallstackKind(callstack.Kind)
	if err != nil {
		return err
	}
	p.callstacksSeen.ForwardOnce(id, func() {
		p.listener.OnUniqueCallstack(id, capture.CallstackInfo{
			Frames: callstack.PCs,
			Type:   callstackType,
		})
	})
	return nil
}

func (p *Processor) processFunctionCall(call *wire.FunctionCall) {
	beginTimestampNs := call.EndTimestampNs - call.DurationNs
	p.watermark.Observe(beginTimestampNs)
	p.listener.OnTimer(capture.TimerInfo{
		ProcessID:   call.PID,
		ThreadID:    call.TID,
		Start:       beginTimestampNs,
		End:         call.EndTimestampNs,
		Depth:       uint8(call.Depth),
		Processor:   capture.InvalidProcessor,
		Type:        capture.TimerNone,
		FunctionID:  call.FunctionID,
		UserDataKey: call.ReturnValue,
		Registers:   call.Registers,
	})
}

func (p *Processor) processIntrospectionScope(scope *wire.IntrospectionScope) {
	beginTimestampNs := scope.EndTimestampNs - scope.DurationNs
	p.watermark.Observe(beginTimestampNs)
	p.listener.OnTimer(capture.TimerInfo{
		ProcessID: scope.PID,
		ThreadID:  scope.TID,
		Start:     beginTimestampNs,
		End:       scope.EndTimestampNs,
		Depth:     uint8(scope.Depth),
		Processor: capture.InvalidProcessor,
		Type:      capture.TimerIntrospection,
		Registers: scope.Registers,
	})
}

func (p *Processor) processInternedString(interned *wire.InternedString) {
	if err := p.strings.pool.Define(interned.Key, interned.Intern); err != nil {
		log.Printf("keeping first binding: %v", err)
		return
	}
	p.listener.OnKeyAndString(interned.Key, interned.Intern)
}

func (p *Processor) processGpuJob(job *wire.GpuJob) error {
	timers, err := p.gpu.ProcessJob(job)
	for _, timer := range timers {
		p.listener.OnTimer(timer)
	}
	return err
}

func (p *Processor) processGpuQueueSubmission(sub *wire.GpuQueueSubmission) error {
	timers, err := p.gpu.ProcessQueueSubmission(sub)
	if errors.Is(err, gpu.ErrMissingMetaInfo) {
		log.Printf("skipping derived gpu events: %v", err)
		err = nil
	}
	for _, timer := range timers {
		p.listener.OnTimer(timer)
	}
	return err
}

func (p *Processor) processThreadStateSlice(slice *wire.ThreadStateSlice) error {
	state, err := mapThreadState(slice.State)
	if err != nil {
		return err
	}
	beginTimestampNs := slice.EndTimestampNs - slice.DurationNs
	p.watermark.Observe(beginTimestampNs)
	p.listener.OnThreadStateSlice(capture.ThreadStateSlice{
		TID:              slice.TID,
		State:            state,
		BeginTimestampNs: beginTimestampNs,
		EndTimestampNs:   slice.EndTimestampNs,
	})
	return nil
}

func (p *Processor) processAddressInfo(info *wire.AddressInfo) error {
	functionName, err := p.strings.Resolve(info.FunctionNameKey)
	if err != nil {
		return fmt.Errorf("address info function name: %w", err)
	}
	modulePath, err := p.strings.Resolve(info.ModuleNameKey)
	if err != nil {
		return fmt.Errorf("address info module name: %w", err)
	}
	p.listener.OnAddressInfo(capture.AddressInfo{
		AbsoluteAddress:  info.AbsoluteAddress,
		ModulePath:       modulePath,
		FunctionName:     functionName,
		OffsetInFunction: info.OffsetInFunction,
	})
	return nil
}

func (p *Processor) processInternedTracepointInfo(interned *wire.InternedTracepointInfo) {
	if _, ok := p.tracepoints[interned.Key]; ok {
		log.Printf("keeping first binding: duplicate tracepoint key %#x", interned.Key)
		return
	}
	p.tracepoints[interned.Key] = interned.Info
	p.listener.OnUniqueTracepointInfo(interned.Key, interned.Info)
}

func (p *Processor) processTracepointEvent(event *wire.TracepointEvent) error {
	if _, ok := p.tracepoints[event.TracepointKey]; !ok {
		return fmt.Errorf("tracepoint event: %w: tracepoint key %#x", interning.ErrUnresolved, event.TracepointKey)
	}
	p.watermark.Observe(event.TimestampNs)
	p.listener.OnTracepointEvent(capture.TracepointEventInfo{
		PID:           event.PID,
		TID:           event.TID,
		CPU:           event.CPU,
		TimestampNs:   event.TimestampNs,
		TracepointKey: event.TracepointKey,
	})
	return nil
}

func (p *Processor) processApiEvent(event *wire.ApiEvent) error {
	p.watermark.Observe(event.TimestampNs)
	timers, err := p.api.process(event)
	for _, timer := range timers {
		p.listener.OnTimer(timer)
	}
	return err
}

// BeginCaptureTime returns the capture time watermark: the minimum timestamp
// observed so far across all timestamped events.
func (p *Processor) BeginCaptureTime() (uint64, bool) {
	return p.watermark.Min()
}

// mapThreadState maps the wire thread state onto the consumer enum. The
// switch is exhaustive over the closed set; anything else is a decoder
// version mismatch.
func mapThreadState(state wire.ThreadState) (capture.ThreadState, error) {
	switch state {
	case wire.ThreadStateRunning:
		return capture.StateRunning, nil
	case wire.ThreadStateRunnable:
		return capture.StateRunnable, nil
	case wire.ThreadStateInterruptibleSleep:
		return capture.StateInterruptibleSleep, nil
	case wire.ThreadStateUninterruptibleSleep:
		return capture.StateUninterruptibleSleep, nil
	case wire.ThreadStateStopped:
		return capture.StateStopped, nil
	case wire.ThreadStateTraced:
		return capture.StateTraced, nil
	case wire.ThreadStateDead:
		return capture.StateDead, nil
	case wire.ThreadStateZombie:
		return capture.StateZombie, nil
	case wire.ThreadStateParked:
		return capture.StateParked, nil
	case wire.ThreadStateIdle:
		return capture.StateIdle, nil
	}
	return 0, fmt.Errorf("%w: thread state %d", wire.ErrUnknownEnumValue, state)
}

func mapCallstackKind(kind wire.CallstackKind) (capture.CallstackType, error) {
	switch kind {
	case wire.CallstackComplete:
		return capture.CallstackComplete, nil
	case wire.CallstackDwarfUnwindingError:
		return capture.CallstackDwarfUnwindingError, nil
	case wire.CallstackFramePointerUnwindingError:
		return capture.CallstackFramePointerUnwindingError, nil
	case wire.CallstackInUprobes:
		return capture.CallstackInUprobes, nil
	case wire.CallstackUprobesPatchingFailed:
		return capture.CallstackUprobesPatchingFailed, nil
	case wire.CallstackStackTopTooSmall:
		return capture.CallstackStackTopTooSmall, nil
	case wire.CallstackStackTopDwarfError:
		return capture.CallstackStackTopDwarfError, nil
	}
	return 0, fmt.Errorf("%w: callstack kind %d", wire.ErrUnknownEnumValue, kind)
}

// stringTable adapts the string pool and the listener into the interning
// capability handed to sub-processors, so they never hold a back-reference
// to the processor itself. The pool doubles as the forward-once filter:
// every defined key has already been delivered via OnKeyAndString.
type stringTable struct {
	pool     *interning.StringPool
	listener capture.Listener
}

// InternLabel interns an internally synthesized label by content hash,
// delivering key and string to the listener on first use only.
func (t *stringTable) InternLabel(label string) uint64 {
	hash := xxhash.Sum64String(label)
	if t.pool.Contains(hash) {
		return hash
	}
	if err := t.pool.Define(hash, label); err != nil {
		log.Printf("interning label %q: %v", label, err)
		return hash
	}
	t.listener.OnKeyAndString(hash, label)
	return hash
}

// Resolve looks up a previously defined string key.
func (t *stringTable) Resolve(key uint64) (string, error) {
	return t.pool.Resolve(key)
}
