package output

import (
	"tracecap/internal/capture"
	"tracecap/internal/wire"
)

// Fanout replicates every listener callback to all wrapped listeners, in
// order. It lets a single capture feed both the text formatter and the span
// exporter.
type Fanout []capture.Listener

func (f Fanout) OnCaptureStarted(info capture.StartInfo) {
	for _, l := range f {
		l.OnCaptureStarted(info)
	}
}

func (f Fanout) OnCaptureFinished(info capture.FinishInfo) {
	for _, l := range f {
		l.OnCaptureFinished(info)
	}
}

func (f Fanout) OnTimer(timer capture.TimerInfo) {
	for _, l := range f {
		l.OnTimer(timer)
	}
}

func (f Fanout) OnKeyAndString(key uint64, str string) {
	for _, l := range f {
		l.OnKeyAndString(key, str)
	}
}

func (f Fanout) OnUniqueCallstack(id uint64, callstack capture.CallstackInfo) {
	for _, l := range f {
		l.OnUniqueCallstack(id, callstack)
	}
}

func (f Fanout) OnCallstackEvent(event capture.CallstackEvent) {
	for _, l := range f {
		l.OnCallstackEvent(event)
	}
}

func (f Fanout) OnThreadName(tid int32, name string) {
	for _, l := range f {
		l.OnThreadName(tid, name)
	}
}

func (f Fanout) OnThreadStateSlice(slice capture.ThreadStateSlice) {
	for _, l := range f {
		l.OnThreadStateSlice(slice)
	}
}

func (f Fanout) OnAddressInfo(info capture.AddressInfo) {
	for _, l := range f {
		l.OnAddressInfo(info)
	}
}

func (f Fanout) OnUniqueTracepointInfo(key uint64, info wire.TracepointInfo) {
	for _, l := range f {
		l.OnUniqueTracepointInfo(key, info)
	}
}

func (f Fanout) OnTracepointEvent(event capture.TracepointEventInfo) {
	for _, l := range f {
		l.OnTracepointEvent(event)
	}
}

func (f Fanout) OnModuleUpdate(timestampNs uint64, module wire.ModuleInfo) {
	for _, l := range f {
		l.OnModuleUpdate(timestampNs, module)
	}
}

func (f Fanout) OnModulesSnapshot(timestampNs uint64, modules []wire.ModuleInfo) {
	for _, l := range f {
		l.OnModulesSnapshot(timestampNs, modules)
	}
}

func (f Fanout) OnMemoryUsageEvent(event wire.MemoryUsage) {
	for _, l := range f {
		l.OnMemoryUsageEvent(event)
	}
}

func (f Fanout) OnMetadataEvent(event wire.MetadataEvent) {
	for _, l := range f {
		l.OnMetadataEvent(event)
	}
}
