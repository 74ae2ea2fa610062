package output

import (
	"fmt"
	"io"

	"tracecap/internal/capture"
	"tracecap/internal/threads"
	"tracecap/internal/wire"
)

// TextFormatter renders a capture as one line per normalized event, with a
// summary at capture end. It keeps its own key-to-string view, populated by
// OnKeyAndString before any event references a key.
type TextFormatter struct {
	w       io.Writer
	strings map[uint64]string
	names   *threads.Registry

	timerCount      map[capture.TimerType]int
	callstackCount  int
	sampleCount     int
	stateCount      int
	tracepointCount int
}

// NewTextFormatter creates a TextFormatter writing to w.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{
		w:          w,
		strings:    make(map[uint64]string),
		names:      threads.NewRegistry(),
		timerCount: make(map[capture.TimerType]int),
	}
}

func (f *TextFormatter) label(key uint64) string {
	if key == 0 {
		return ""
	}
	if s, ok := f.strings[key]; ok {
		return s
	}
	return fmt.Sprintf("key(%#x)", key)
}

func (f *TextFormatter) OnCaptureStarted(info capture.StartInfo) {
	fmt.Fprintf(f.w, "capture %s started: pid=%d exe=%s t0=%dns\n",
		info.CaptureID, info.PID, info.ExecutablePath, info.CaptureStartTimestampNs)
}

func (f *TextFormatter) OnCaptureFinished(info capture.FinishInfo) {
	status := "complete"
	if !info.OK {
		status = fmt.Sprintf("failed: %s", info.ErrorMessage)
	}
	fmt.Fprintf(f.w, "capture %s finished (%s)\n", info.CaptureID, status)
	if info.MinTimestampValid {
		fmt.Fprintf(f.w, "  earliest event: %dns\n", info.MinTimestampNs)
	}
	for timerType, n := range f.timerCount {
		fmt.Fprintf(f.w, "  timers[%s]: %d\n", timerType, n)
	}
	fmt.Fprintf(f.w, "  callstacks: %d unique, %d samples\n", f.callstackCount, f.sampleCount)
	fmt.Fprintf(f.w, "  thread states: %d  tracepoints: %d  threads named: %d\n",
		f.stateCount, f.tracepointCount, f.names.Len())
}

func (f *TextFormatter) OnTimer(timer capture.TimerInfo) {
	f.timerCount[timer.Type]++
	fmt.Fprintf(f.w, "timer %s pid=%d tid=%d [%d,%d]ns depth=%d",
		timer.Type, timer.ProcessID, timer.ThreadID, timer.Start, timer.End, timer.Depth)
	if label := f.label(timer.LabelKey); label != "" {
		fmt.Fprintf(f.w, " label=%q", label)
	}
	if timer.TimelineKey != 0 {
		fmt.Fprintf(f.w, " timeline=%#x", timer.TimelineKey)
	}
	if timer.Type == capture.TimerApiValue {
		fmt.Fprintf(f.w, " value=%s", timer.Value)
	}
	fmt.Fprintln(f.w)
}

func (f *TextFormatter) OnKeyAndString(key uint64, str string) {
	f.strings[key] = str
}

func (f *TextFormatter) OnUniqueCallstack(id uint64, callstack capture.CallstackInfo) {
	f.callstackCount++
	fmt.Fprintf(f.w, "callstack %#x: %d frames (%v)\n", id, len(callstack.Frames), callstack.Type)
}

func (f *TextFormatter) OnCallstackEvent(event capture.CallstackEvent) {
	f.sampleCount++
	fmt.Fprintf(f.w, "sample tid=%d t=%dns callstack=%#x\n", event.ThreadID, event.TimestampNs, event.CallstackID)
}

func (f *TextFormatter) OnThreadName(tid int32, name string) {
	f.names.Set(tid, name)
	fmt.Fprintf(f.w, "thread %d named %q\n", tid, name)
}

func (f *TextFormatter) OnThreadStateSlice(slice capture.ThreadStateSlice) {
	f.stateCount++
	fmt.Fprintf(f.w, "thread %d %s [%d,%d]ns\n",
		slice.TID, slice.State, slice.BeginTimestampNs, slice.EndTimestampNs)
}

func (f *TextFormatter) OnAddressInfo(info capture.AddressInfo) {
	fmt.Fprintf(f.w, "address %#x = %s+%d (%s)\n",
		info.AbsoluteAddress, info.FunctionName, info.OffsetInFunction, info.ModulePath)
}

func (f *TextFormatter) OnUniqueTracepointInfo(key uint64, info wire.TracepointInfo) {
	fmt.Fprintf(f.w, "tracepoint %#x = %s:%s\n", key, info.Category, info.Name)
}

func (f *TextFormatter) OnTracepointEvent(event capture.TracepointEventInfo) {
	f.tracepointCount++
	fmt.Fprintf(f.w, "tracepoint hit %#x pid=%d tid=%d cpu=%d t=%dns\n",
		event.TracepointKey, event.PID, event.TID, event.CPU, event.TimestampNs)
}

func (f *TextFormatter) OnModuleUpdate(timestampNs uint64, module wire.ModuleInfo) {
	fmt.Fprintf(f.w, "module update t=%dns %s [%#x,%#x)\n",
		timestampNs, module.FilePath, module.AddressStart, module.AddressEnd)
}

func (f *TextFormatter) OnModulesSnapshot(timestampNs uint64, modules []wire.ModuleInfo) {
	fmt.Fprintf(f.w, "modules snapshot t=%dns: %d modules\n", timestampNs, len(modules))
}

func (f *TextFormatter) OnMemoryUsageEvent(event wire.MemoryUsage) {
	fmt.Fprintf(f.w, "memory t=%dns", event.TimestampNs)
	if event.System != nil {
		fmt.Fprintf(f.w, " free=%dkB available=%dkB", event.System.FreeKB, event.System.AvailableKB)
	}
	if event.Process != nil {
		fmt.Fprintf(f.w, " pid=%d rss_anon=%dkB", event.Process.PID, event.Process.RssAnonKB)
	}
	fmt.Fprintln(f.w)
}

func (f *TextFormatter) OnMetadataEvent(event wire.MetadataEvent) {
	fmt.Fprintf(f.w, "metadata t=%dns %s=%q\n", event.TimestampNs, event.Name, event.Value)
}
