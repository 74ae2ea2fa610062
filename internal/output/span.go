package output

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tracecap/internal/capture"
	"tracecap/internal/filter"
	"tracecap/internal/threads"
	"tracecap/internal/timesync"
	"tracecap/internal/wire"
)

// SpanFormatter exports interval-shaped capture events as OpenTelemetry
// spans. Timestamps are converted from the capture's monotonic clock to
// wall-clock time; each span carries the capture id, the originating pid and
// tid, the thread name when one has been reported, and any configured custom
// attributes.
type SpanFormatter struct {
	tracer    trace.Tracer
	converter *timesync.Converter
	evaluator *filter.Evaluator
	names     *threads.Registry
	strings   map[uint64]string
	captureID string
}

// NewSpanFormatter creates a SpanFormatter. evaluator may be nil when no
// filter or custom attributes are configured.
func NewSpanFormatter(tracer trace.Tracer, converter *timesync.Converter, evaluator *filter.Evaluator) *SpanFormatter {
	return &SpanFormatter{
		tracer:    tracer,
		converter: converter,
		evaluator: evaluator,
		names:     threads.NewRegistry(),
		strings:   make(map[uint64]string),
	}
}

func (f *SpanFormatter) OnCaptureStarted(info capture.StartInfo) {
	f.captureID = info.CaptureID.String()
}

func (f *SpanFormatter) OnCaptureFinished(info capture.FinishInfo) {
	// Span export is handled by the SDK batcher; nothing to flush here.
}

// spanName picks a human-readable span name for a timer.
func (f *SpanFormatter) spanName(timer capture.TimerInfo) string {
	if label, ok := f.strings[timer.LabelKey]; ok && timer.LabelKey != 0 {
		return label
	}
	if timer.FunctionID != 0 {
		return fmt.Sprintf("function %#x", timer.FunctionID)
	}
	return timer.Type.String()
}

func (f *SpanFormatter) OnTimer(timer capture.TimerInfo) {
	if timer.Type == capture.TimerApiValue {
		// Point samples, not intervals; no span to emit.
		return
	}

	label := ""
	if timer.LabelKey != 0 {
		label = f.strings[timer.LabelKey]
	}
	threadName := f.names.Get(timer.ThreadID)
	env := filter.NewTimerEnv(timer, label, threadName)
	if f.evaluator != nil && !f.evaluator.Match(env) {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("capture.id", f.captureID),
		attribute.Int("process.pid", int(timer.ProcessID)),
		attribute.Int("thread.id", int(timer.ThreadID)),
		attribute.String("timer.type", timer.Type.String()),
		attribute.Int("timer.depth", int(timer.Depth)),
	}
	if threadName != "" {
		attrs = append(attrs, attribute.String("thread.name", threadName))
	}
	if timer.Processor != capture.InvalidProcessor {
		attrs = append(attrs, attribute.Int("cpu.core", int(timer.Processor)))
	}
	if timer.TimelineKey != 0 {
		attrs = append(attrs, attribute.String("gpu.timeline", fmt.Sprintf("%#x", timer.TimelineKey)))
	}
	if f.evaluator != nil {
		attrs = append(attrs, f.evaluator.EvaluateCustomAttributes(env)...)
	}

	startTime := f.converter.MonotonicToWallClock(timer.Start)
	endTime := f.converter.MonotonicToWallClock(timer.End)

	_, span := f.tracer.Start(context.Background(), f.spanName(timer),
		trace.WithTimestamp(startTime),
		trace.WithAttributes(attrs...),
	)
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(endTime))
}

func (f *SpanFormatter) OnKeyAndString(key uint64, str string) {
	f.strings[key] = str
}

func (f *SpanFormatter) OnUniqueCallstack(id uint64, callstack capture.CallstackInfo) {}

func (f *SpanFormatter) OnCallstackEvent(event capture.CallstackEvent) {}

func (f *SpanFormatter) OnThreadName(tid int32, name string) {
	f.names.Set(tid, name)
}

func (f *SpanFormatter) OnThreadStateSlice(slice capture.ThreadStateSlice) {}

func (f *SpanFormatter) OnAddressInfo(info capture.AddressInfo) {}

func (f *SpanFormatter) OnUniqueTracepointInfo(key uint64, info wire.TracepointInfo) {}

func (f *SpanFormatter) OnTracepointEvent(event capture.TracepointEventInfo) {}

func (f *SpanFormatter) OnModuleUpdate(timestampNs uint64, module wire.ModuleInfo) {}

func (f *SpanFormatter) OnModulesSnapshot(timestampNs uint64, modules []wire.ModuleInfo) {}

func (f *SpanFormatter) OnMemoryUsageEvent(event wire.MemoryUsage) {}

func (f *SpanFormatter) OnMetadataEvent(event wire.MetadataEvent) {}
