package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single event frame. Callstack-heavy events stay far
// below this; anything larger indicates stream corruption.
const maxFrameSize = 16 << 20

// Encoder writes events as length-prefixed little-endian binary frames.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes one event frame.
func (e *Encoder) Encode(ev *Event) error {
	body, err := appendEvent(e.buf[:0], ev)
	if err != nil {
		return err
	}
	e.buf = body

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := e.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("writing frame prefix: %w", err)
	}
	if _, err := e.w.Write(body); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// Decoder reads events from length-prefixed little-endian binary frames.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next event frame. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when the stream stops mid-frame.
func (d *Decoder) Decode() (*Event, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(d.r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame prefix: %w", err)
	}
	size := binary.LittleEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	if cap(d.buf) < int(size) {
		d.buf = make([]byte, size)
	}
	body := d.buf[:size]
	if _, err := io.ReadFull(d.r, body); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return decodeEvent(body)
}

// appendEvent serializes one event: a variant tag byte followed by the
// variant's fields.
func appendEvent(b []byte, ev *Event) ([]byte, error) {
	b = append(b, byte(ev.Kind))
	switch ev.Kind {
	case KindCaptureStarted:
		v := ev.CaptureStarted
		b = appendI32(b, v.PID)
		b = appendStr(b, v.ExecutablePath)
		b = appendU64(b, v.CaptureStartTimestampNs)
	case KindCaptureFinished:
		v := ev.CaptureFinished
		b = appendBool(b, v.OK)
		b = appendStr(b, v.ErrorMessage)
	case KindSchedulingSlice:
		v := ev.SchedulingSlice
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendI32(b, v.Core)
		b = appendU64(b, v.OutTimestampNs)
		b = appendU64(b, v.DurationNs)
	case KindInternedCallstack:
		v := ev.InternedCallstack
		b = appendU64(b, v.Key)
		b = append(b, byte(v.Callstack.Kind))
		b = appendU64Slice(b, v.Callstack.PCs)
	case KindCallstackSample:
		v := ev.CallstackSample
		b = appendU64(b, v.CallstackID)
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendU64(b, v.TimestampNs)
	case KindFunctionCall:
		v := ev.FunctionCall
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendI32(b, v.Depth)
		b = appendU64(b, v.FunctionID)
		b = appendU64(b, v.EndTimestampNs)
		b = appendU64(b, v.DurationNs)
		b = appendU64(b, v.ReturnValue)
		b = appendU64Slice(b, v.Registers)
	case KindIntrospectionScope:
		v := ev.IntrospectionScope
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendI32(b, v.Depth)
		b = appendU64(b, v.EndTimestampNs)
		b = appendU64(b, v.DurationNs)
		b = appendU64Slice(b, v.Registers)
	case KindInternedString:
		v := ev.InternedString
		b = appendU64(b, v.Key)
		b = appendStr(b, v.Intern)
	case KindModuleUpdate:
		v := ev.ModuleUpdate
		b = appendU64(b, v.TimestampNs)
		b = appendModule(b, &v.Module)
	case KindModulesSnapshot:
		v := ev.ModulesSnapshot
		b = appendU64(b, v.TimestampNs)
		b = appendI32(b, v.PID)
		b = appendU16(b, uint16(len(v.Modules)))
		for i := range v.Modules {
			b = appendModule(b, &v.Modules[i])
		}
	case KindGpuJob:
		v := ev.GpuJob
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendU32(b, v.Context)
		b = appendU32(b, v.SeqNo)
		b = appendI32(b, v.Depth)
		b = appendU64(b, v.TimelineKey)
		b = appendU64(b, v.IoctlTimeNs)
		b = appendU64(b, v.SchedRunTimeNs)
		b = appendU64(b, v.HwStartTimeNs)
		b = appendU64(b, v.FenceSignaledTimeNs)
	case KindGpuQueueSubmission:
		b = appendSubmission(b, ev.GpuQueueSubmission)
	case KindThreadName:
		v := ev.ThreadName
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendStr(b, v.Name)
	case KindThreadNamesSnapshot:
		v := ev.ThreadNamesSnapshot
		b = appendU64(b, v.TimestampNs)
		b = appendU16(b, uint16(len(v.ThreadNames)))
		for i := range v.ThreadNames {
			b = appendI32(b, v.ThreadNames[i].PID)
			b = appendI32(b, v.ThreadNames[i].TID)
			b = appendStr(b, v.ThreadNames[i].Name)
		}
	case KindThreadStateSlice:
		v := ev.ThreadStateSlice
		b = appendI32(b, v.TID)
		b = append(b, byte(v.State))
		b = appendU64(b, v.EndTimestampNs)
		b = appendU64(b, v.DurationNs)
	case KindAddressInfo:
		v := ev.AddressInfo
		b = appendU64(b, v.AbsoluteAddress)
		b = appendU64(b, v.FunctionNameKey)
		b = appendU64(b, v.ModuleNameKey)
		b = appendU64(b, v.OffsetInFunction)
	case KindInternedTracepointInfo:
		v := ev.InternedTracepointInfo
		b = appendU64(b, v.Key)
		b = appendStr(b, v.Info.Category)
		b = appendStr(b, v.Info.Name)
	case KindTracepointEvent:
		v := ev.TracepointEvent
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendI32(b, v.CPU)
		b = appendU64(b, v.TimestampNs)
		b = appendU64(b, v.TracepointKey)
	case KindMemoryUsage:
		v := ev.MemoryUsage
		b = appendU64(b, v.TimestampNs)
		b = appendBool(b, v.System != nil)
		if v.System != nil {
			b = appendI64(b, v.System.TotalKB)
			b = appendI64(b, v.System.FreeKB)
			b = appendI64(b, v.System.AvailableKB)
			b = appendI64(b, v.System.BuffersKB)
			b = appendI64(b, v.System.CachedKB)
		}
		b = appendBool(b, v.Process != nil)
		if v.Process != nil {
			b = appendI32(b, v.Process.PID)
			b = appendI64(b, v.Process.RssAnonKB)
			b = appendI64(b, v.Process.MinorFaults)
			b = appendI64(b, v.Process.MajorFaults)
		}
	case KindApiEvent:
		v := ev.ApiEvent
		b = appendI32(b, v.PID)
		b = appendI32(b, v.TID)
		b = appendU64(b, v.TimestampNs)
		b = append(b, byte(v.Kind))
		b = appendStr(b, v.Name)
		b = appendU64(b, v.ID)
		b = append(b, v.Payload[:]...)
		b = appendU32(b, v.Color)
	case KindMetadataEvent:
		v := ev.MetadataEvent
		b = appendU64(b, v.TimestampNs)
		b = appendStr(b, v.Name)
		b = appendStr(b, v.Value)
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownVariant, ev.Kind)
	}
	return b, nil
}

func decodeEvent(body []byte) (*Event, error) {
	r := frameReader{buf: body}
	kind := Kind(r.u8())
	ev := &Event{Kind: kind}
	switch kind {
	case KindCaptureStarted:
		ev.CaptureStarted = &CaptureStarted{
			PID:                     r.i32(),
			ExecutablePath:          r.str(),
			CaptureStartTimestampNs: r.u64(),
		}
	case KindCaptureFinished:
		ev.CaptureFinished = &CaptureFinished{
			OK:           r.bool(),
			ErrorMessage: r.str(),
		}
	case KindSchedulingSlice:
		ev.SchedulingSlice = &SchedulingSlice{
			PID:            r.i32(),
			TID:            r.i32(),
			Core:           r.i32(),
			OutTimestampNs: r.u64(),
			DurationNs:     r.u64(),
		}
	case KindInternedCallstack:
		v := &InternedCallstack{Key: r.u64()}
		kindByte := r.u8()
		v.Callstack.PCs = r.u64Slice()
		if r.err == nil {
			ck, err := DecodeCallstackKind(kindByte)
			if err != nil {
				return nil, err
			}
			v.Callstack.Kind = ck
		}
		ev.InternedCallstack = v
	case KindCallstackSample:
		ev.CallstackSample = &CallstackSample{
			CallstackID: r.u64(),
			PID:         r.i32(),
			TID:         r.i32(),
			TimestampNs: r.u64(),
		}
	case KindFunctionCall:
		ev.FunctionCall = &FunctionCall{
			PID:            r.i32(),
			TID:            r.i32(),
			Depth:          r.i32(),
			FunctionID:     r.u64(),
			EndTimestampNs: r.u64(),
			DurationNs:     r.u64(),
			ReturnValue:    r.u64(),
			Registers:      r.u64Slice(),
		}
	case KindIntrospectionScope:
		ev.IntrospectionScope = &IntrospectionScope{
			PID:            r.i32(),
			TID:            r.i32(),
			Depth:          r.i32(),
			EndTimestampNs: r.u64(),
			DurationNs:     r.u64(),
			Registers:      r.u64Slice(),
		}
	case KindInternedString:
		ev.InternedString = &InternedString{
			Key:    r.u64(),
			Intern: r.str(),
		}
	case KindModuleUpdate:
		ev.ModuleUpdate = &ModuleUpdate{
			TimestampNs: r.u64(),
			Module:      r.module(),
		}
	case KindModulesSnapshot:
		v := &ModulesSnapshot{
			TimestampNs: r.u64(),
			PID:         r.i32(),
		}
		n := int(r.u16())
		for i := 0; i < n && r.err == nil; i++ {
			v.Modules = append(v.Modules, r.module())
		}
		ev.ModulesSnapshot = v
	case KindGpuJob:
		ev.GpuJob = &GpuJob{
			PID:                 r.i32(),
			TID:                 r.i32(),
			Context:             r.u32(),
			SeqNo:               r.u32(),
			Depth:               r.i32(),
			TimelineKey:         r.u64(),
			IoctlTimeNs:         r.u64(),
			SchedRunTimeNs:      r.u64(),
			HwStartTimeNs:       r.u64(),
			FenceSignaledTimeNs: r.u64(),
		}
	case KindGpuQueueSubmission:
		ev.GpuQueueSubmission = r.submission()
	case KindThreadName:
		ev.ThreadName = &ThreadName{
			PID:  r.i32(),
			TID:  r.i32(),
			Name: r.str(),
		}
	case KindThreadNamesSnapshot:
		v := &ThreadNamesSnapshot{TimestampNs: r.u64()}
		n := int(r.u16())
		for i := 0; i < n && r.err == nil; i++ {
			v.ThreadNames = append(v.ThreadNames, ThreadName{
				PID:  r.i32(),
				TID:  r.i32(),
				Name: r.str(),
			})
		}
		ev.ThreadNamesSnapshot = v
	case KindThreadStateSlice:
		tid := r.i32()
		stateByte := r.u8()
		endNs := r.u64()
		durNs := r.u64()
		if r.err == nil {
			state, err := DecodeThreadState(stateByte)
			if err != nil {
				return nil, err
			}
			ev.ThreadStateSlice = &ThreadStateSlice{
				TID:            tid,
				State:          state,
				EndTimestampNs: endNs,
				DurationNs:     durNs,
			}
		}
	case KindAddressInfo:
		ev.AddressInfo = &AddressInfo{
			AbsoluteAddress:  r.u64(),
			FunctionNameKey:  r.u64(),
			ModuleNameKey:    r.u64(),
			OffsetInFunction: r.u64(),
		}
	case KindInternedTracepointInfo:
		ev.InternedTracepointInfo = &InternedTracepointInfo{
			Key: r.u64(),
			Info: TracepointInfo{
				Category: r.str(),
				Name:     r.str(),
			},
		}
	case KindTracepointEvent:
		ev.TracepointEvent = &TracepointEvent{
			PID:           r.i32(),
			TID:           r.i32(),
			CPU:           r.i32(),
			TimestampNs:   r.u64(),
			TracepointKey: r.u64(),
		}
	case KindMemoryUsage:
		v := &MemoryUsage{TimestampNs: r.u64()}
		if r.bool() {
			v.System = &SystemMemoryUsage{
				TotalKB:     r.i64(),
				FreeKB:      r.i64(),
				AvailableKB: r.i64(),
				BuffersKB:   r.i64(),
				CachedKB:    r.i64(),
			}
		}
		if r.bool() {
			v.Process = &ProcessMemoryUsage{
				PID:         r.i32(),
				RssAnonKB:   r.i64(),
				MinorFaults: r.i64(),
				MajorFaults: r.i64(),
			}
		}
		ev.MemoryUsage = v
	case KindApiEvent:
		v := &ApiEvent{
			PID:         r.i32(),
			TID:         r.i32(),
			TimestampNs: r.u64(),
		}
		kindByte := r.u8()
		v.Name = r.str()
		v.ID = r.u64()
		r.bytes8(&v.Payload)
		v.Color = r.u32()
		if r.err == nil {
			ak, err := DecodeApiEventKind(kindByte)
			if err != nil {
				return nil, err
			}
			v.Kind = ak
		}
		ev.ApiEvent = v
	case KindMetadataEvent:
		ev.MetadataEvent = &MetadataEvent{
			TimestampNs: r.u64(),
			Name:        r.str(),
			Value:       r.str(),
		}
	default:
		return nil, fmt.Errorf("%w: tag %d", ErrUnknownVariant, kind)
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding %s: %w", kind, r.err)
	}
	return ev, nil
}

func appendU16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

func appendU32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

func appendU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

func appendI32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendI64(b []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(b, uint64(v))
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func appendStr(b []byte, s string) []byte {
	b = appendU16(b, uint16(len(s)))
	return append(b, s...)
}

func appendU64Slice(b []byte, vs []uint64) []byte {
	b = appendU16(b, uint16(len(vs)))
	for _, v := range vs {
		b = appendU64(b, v)
	}
	return b
}

func appendModule(b []byte, m *ModuleInfo) []byte {
	b = appendStr(b, m.Name)
	b = appendStr(b, m.FilePath)
	b = appendStr(b, m.BuildID)
	b = appendU64(b, m.AddressStart)
	b = appendU64(b, m.AddressEnd)
	b = appendU64(b, m.LoadBias)
	return b
}

func appendMetaInfo(b []byte, m *SubmissionMetaInfo) []byte {
	b = appendBool(b, m != nil)
	if m == nil {
		return b
	}
	b = appendI32(b, m.TID)
	b = appendU64(b, m.PreSubmissionCpuTimestampNs)
	b = appendU64(b, m.PostSubmissionCpuTimestampNs)
	return b
}

func appendSubmission(b []byte, s *GpuQueueSubmission) []byte {
	b = appendMetaInfo(b, s.MetaInfo)
	b = appendU16(b, uint16(len(s.SubmitInfos)))
	for _, si := range s.SubmitInfos {
		b = appendU16(b, uint16(len(si.CommandBuffers)))
		for _, cb := range si.CommandBuffers {
			b = appendU64(b, cb.BeginGpuTimestampNs)
			b = appendU64(b, cb.EndGpuTimestampNs)
		}
	}
	b = appendU16(b, uint16(len(s.CompletedMarkers)))
	for _, m := range s.CompletedMarkers {
		b = appendU64(b, m.TextKey)
		b = appendI32(b, m.Depth)
		b = appendU64(b, m.EndGpuTimestampNs)
		b = appendBool(b, m.BeginMarker != nil)
		if m.BeginMarker != nil {
			b = appendMetaInfo(b, m.BeginMarker.MetaInfo)
			b = appendU64(b, m.BeginMarker.GpuTimestampNs)
		}
	}
	b = appendU32(b, s.NumBeginMarkers)
	return b
}

// frameReader cursors over one frame body with a sticky error, so variant
// decoders can read fields without per-field error plumbing.
type frameReader struct {
	buf []byte
	off int
	err error
}

func (r *frameReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *frameReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *frameReader) bool() bool {
	return r.u8() != 0
}

func (r *frameReader) u16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *frameReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *frameReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *frameReader) i32() int32 {
	return int32(r.u32())
}

func (r *frameReader) i64() int64 {
	return int64(r.u64())
}

func (r *frameReader) str() string {
	n := int(r.u16())
	b := r.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

func (r *frameReader) u64Slice() []uint64 {
	n := int(r.u16())
	if n == 0 {
		return nil
	}
	vs := make([]uint64, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		vs = append(vs, r.u64())
	}
	return vs
}

func (r *frameReader) bytes8(dst *[8]byte) {
	b := r.take(8)
	if b != nil {
		copy(dst[:], b)
	}
}

func (r *frameReader) module() ModuleInfo {
	return ModuleInfo{
		Name:         r.str(),
		FilePath:     r.str(),
		BuildID:      r.str(),
		AddressStart: r.u64(),
		AddressEnd:   r.u64(),
		LoadBias:     r.u64(),
	}
}

func (r *frameReader) metaInfo() *SubmissionMetaInfo {
	if !r.bool() {
		return nil
	}
	return &SubmissionMetaInfo{
		TID:                          r.i32(),
		PreSubmissionCpuTimestampNs:  r.u64(),
		PostSubmissionCpuTimestampNs: r.u64(),
	}
}

func (r *frameReader) submission() *GpuQueueSubmission {
	s := &GpuQueueSubmission{MetaInfo: r.metaInfo()}
	nSubmits := int(r.u16())
	for i := 0; i < nSubmits && r.err == nil; i++ {
		var si GpuSubmitInfo
		nCbs := int(r.u16())
		for j := 0; j < nCbs && r.err == nil; j++ {
			si.CommandBuffers = append(si.CommandBuffers, GpuCommandBuffer{
				BeginGpuTimestampNs: r.u64(),
				EndGpuTimestampNs:   r.u64(),
			})
		}
		s.SubmitInfos = append(s.SubmitInfos, si)
	}
	nMarkers := int(r.u16())
	for i := 0; i < nMarkers && r.err == nil; i++ {
		m := GpuDebugMarker{
			TextKey:           r.u64(),
			Depth:             r.i32(),
			EndGpuTimestampNs: r.u64(),
		}
		if r.bool() {
			m.BeginMarker = &GpuDebugMarkerBeginInfo{
				MetaInfo:       r.metaInfo(),
				GpuTimestampNs: r.u64(),
			}
		}
		s.CompletedMarkers = append(s.CompletedMarkers, m)
	}
	s.NumBeginMarkers = r.u32()
	return s
}
