package gpu

import (
	"errors"
	"fmt"
	"log"

	"tracecap/internal/capture"
	"tracecap/internal/wire"
)

// Derived-interval label vocabulary. Each label is interned once per capture
// on first use, by content hash.
const (
	labelSwQueue       = "sw queue"
	labelHwQueue       = "hw queue"
	labelHwExecution   = "hw execution"
	labelCommandBuffer = "command buffer"
)

// ErrMissingMetaInfo reports a queue submission without its meta info.
// Recoverable: the derived events depending on it are skipped.
var ErrMissingMetaInfo = errors.New("gpu queue submission without meta info")

// StringTable is the interning capability the reconstructor depends on:
// forward-once content-hash interning for label strings, and resolution of
// wire intern keys for debug marker texts.
type StringTable interface {
	InternLabel(label string) uint64
	Resolve(key uint64) (string, error)
}

// submissionState tracks one queue submission until it can be released: its
// job must have matched and all begin markers recorded in it consumed.
type submissionState struct {
	sub             *wire.GpuQueueSubmission
	matched         bool
	remainingBegins int
}

// Reconstructor synthesizes derived GPU intervals. State lives for one
// capture session; there is exactly one writer and no concurrent readers.
type Reconstructor struct {
	strings   StringTable
	watermark *capture.TimeWatermark

	pendingSubmissions map[int32][]*submissionState
	pendingJobs        map[int32][]*wire.GpuJob
}

// NewReconstructor creates an empty reconstructor. The string table and
// watermark are owned by the caller.
func NewReconstructor(strings StringTable, watermark *capture.TimeWatermark) *Reconstructor {
	return &Reconstructor{
		strings:            strings,
		watermark:          watermark,
		pendingSubmissions: make(map[int32][]*submissionState),
		pendingJobs:        make(map[int32][]*wire.GpuJob),
	}
}

// ProcessJob turns one raw GPU job into its three canonical phase intervals,
// plus any submission-level intervals whose queue submission was already
// waiting for this job.
func (r *Reconstructor) ProcessJob(job *wire.GpuJob) ([]capture.TimerInfo, error) {
	timers := make([]capture.TimerInfo, 0, 3)
	timers = append(timers,
		r.phaseTimer(job, labelSwQueue, job.IoctlTimeNs, job.SchedRunTimeNs),
		r.phaseTimer(job, labelHwQueue, job.SchedRunTimeNs, job.HwStartTimeNs),
		r.phaseTimer(job, labelHwExecution, job.HwStartTimeNs, job.FenceSignaledTimeNs),
	)
	r.watermark.Observe(job.IoctlTimeNs)

	state := r.takeSubmissionFor(job)
	if state == nil {
		r.pendingJobs[job.TID] = append(r.pendingJobs[job.TID], job)
		return timers, nil
	}
	submissionTimers, err := r.emitSubmission(job, state)
	if err != nil {
		return timers, err
	}
	return append(timers, submissionTimers...), nil
}

// ProcessQueueSubmission correlates one Vulkan-level submission with its GPU
// job. When the job has not arrived yet the submission is cached.
func (r *Reconstructor) ProcessQueueSubmission(sub *wire.GpuQueueSubmission) ([]capture.TimerInfo, error) {
	if sub.MetaInfo == nil {
		return nil, ErrMissingMetaInfo
	}
	state := &submissionState{
		sub:             sub,
		remainingBegins: int(sub.NumBeginMarkers),
	}
	job := r.takeJobFor(sub.MetaInfo)
	if job == nil {
		tid := sub.MetaInfo.TID
		r.pendingSubmissions[tid] = append(r.pendingSubmissions[tid], state)
		return nil, nil
	}
	r.pendingSubmissions[sub.MetaInfo.TID] = append(r.pendingSubmissions[sub.MetaInfo.TID], state)
	return r.emitSubmission(job, state)
}

func (r *Reconstructor) phaseTimer(job *wire.GpuJob, label string, startNs, endNs uint64) capture.TimerInfo {
	return capture.TimerInfo{
		ProcessID:   job.PID,
		ThreadID:    job.TID,
		Start:       startNs,
		End:         endNs,
		Depth:       uint8(job.Depth),
		Processor:   capture.InvalidProcessor,
		Type:        capture.TimerGpuActivity,
		LabelKey:    r.strings.InternLabel(label),
		TimelineKey: job.TimelineKey,
	}
}

// matches reports whether the job's submit ioctl happened inside the CPU
// window bracketing the submission.
func matches(meta *wire.SubmissionMetaInfo, job *wire.GpuJob) bool {
	return meta.TID == job.TID &&
		meta.PreSubmissionCpuTimestampNs <= job.IoctlTimeNs &&
		job.IoctlTimeNs <= meta.PostSubmissionCpuTimestampNs
}

func (r *Reconstructor) takeSubmissionFor(job *wire.GpuJob) *submissionState {
	for _, state := range r.pendingSubmissions[job.TID] {
		if !state.matched && matches(state.sub.MetaInfo, job) {
			return state
		}
	}
	return nil
}

func (r *Reconstructor) takeJobFor(meta *wire.SubmissionMetaInfo) *wire.GpuJob {
	jobs := r.pendingJobs[meta.TID]
	for i, job := range jobs {
		if matches(meta, job) {
			r.pendingJobs[meta.TID] = append(jobs[:i], jobs[i+1:]...)
			if len(r.pendingJobs[meta.TID]) == 0 {
				delete(r.pendingJobs, meta.TID)
			}
			return job
		}
	}
	return nil
}

// earliestCommandBufferBegin finds the smallest command-buffer begin
// timestamp across all submit infos, in the GPU clock domain. ok is false
// when the submission carries no command buffers.
func earliestCommandBufferBegin(sub *wire.GpuQueueSubmission) (uint64, bool) {
	var earliest uint64
	found := false
	for _, si := range sub.SubmitInfos {
		for _, cb := range si.CommandBuffers {
			if !found || cb.BeginGpuTimestampNs < earliest {
				earliest = cb.BeginGpuTimestampNs
				found = true
			}
		}
	}
	return earliest, found
}

// emitSubmission produces the command-buffer and debug-marker intervals for
// a matched job/submission pair.
func (r *Reconstructor) emitSubmission(job *wire.GpuJob, state *submissionState) ([]capture.TimerInfo, error) {
	state.matched = true
	defer r.sweep(state.sub.MetaInfo.TID)

	sub := state.sub
	anchor, ok := earliestCommandBufferBegin(sub)
	if !ok {
		// Nothing to translate GPU timestamps against; markers of this
		// submission cannot be placed on the CPU timeline.
		if len(sub.CompletedMarkers) > 0 {
			log.Printf("gpu: submission on tid %d has markers but no command buffers, dropping %d markers",
				sub.MetaInfo.TID, len(sub.CompletedMarkers))
		}
		return nil, nil
	}
	// GPU clock to CPU clock: the earliest command buffer begin is assumed
	// to coincide with the job's hardware start.
	delta := int64(job.HwStartTimeNs) - int64(anchor)
	translate := func(gpuNs uint64) uint64 {
		return uint64(int64(gpuNs) + delta)
	}

	var timers []capture.TimerInfo
	cbLabel := r.strings.InternLabel(labelCommandBuffer)
	for _, si := range sub.SubmitInfos {
		for _, cb := range si.CommandBuffers {
			timer := capture.TimerInfo{
				ProcessID:   job.PID,
				ThreadID:    sub.MetaInfo.TID,
				Start:       translate(cb.BeginGpuTimestampNs),
				End:         translate(cb.EndGpuTimestampNs),
				Depth:       uint8(job.Depth),
				Processor:   capture.InvalidProcessor,
				Type:        capture.TimerGpuCommandBuffer,
				LabelKey:    cbLabel,
				TimelineKey: job.TimelineKey,
			}
			r.watermark.Observe(timer.Start)
			timers = append(timers, timer)
		}
	}

	for i := range sub.CompletedMarkers {
		timer, err := r.markerTimer(job, state, &sub.CompletedMarkers[i], translate)
		if err != nil {
			return timers, err
		}
		r.watermark.Observe(timer.Start)
		timers = append(timers, timer)
	}
	return timers, nil
}

func (r *Reconstructor) markerTimer(job *wire.GpuJob, state *submissionState, marker *wire.GpuDebugMarker, translate func(uint64) uint64) (capture.TimerInfo, error) {
	if marker.TextKey != 0 {
		// Marker texts arrive through regular string interning; an undefined
		// key is an upstream ordering violation.
		if _, err := r.strings.Resolve(marker.TextKey); err != nil {
			return capture.TimerInfo{}, fmt.Errorf("gpu debug marker text: %w", err)
		}
	}

	end := translate(marker.EndGpuTimestampNs)
	var begin uint64
	switch {
	case marker.BeginMarker != nil:
		begin = translate(marker.BeginMarker.GpuTimestampNs)
		r.consumeBegin(state, marker.BeginMarker.MetaInfo)
	default:
		// The begin was recorded before the capture started; clamp to the
		// earliest known capture time.
		if minNs, ok := r.watermark.Min(); ok && minNs < end {
			begin = minNs
		} else {
			begin = end
		}
	}

	return capture.TimerInfo{
		ProcessID:   job.PID,
		ThreadID:    state.sub.MetaInfo.TID,
		Start:       begin,
		End:         end,
		Depth:       uint8(marker.Depth),
		Processor:   capture.InvalidProcessor,
		Type:        capture.TimerGpuDebugMarker,
		LabelKey:    marker.TextKey,
		TimelineKey: job.TimelineKey,
	}, nil
}

// consumeBegin decrements the begin-marker budget of the submission the
// begin half was recorded in. A nil meta info means the current submission.
func (r *Reconstructor) consumeBegin(current *submissionState, beginMeta *wire.SubmissionMetaInfo) {
	if beginMeta == nil {
		current.remainingBegins--
		return
	}
	for _, state := range r.pendingSubmissions[beginMeta.TID] {
		m := state.sub.MetaInfo
		if m.PreSubmissionCpuTimestampNs == beginMeta.PreSubmissionCpuTimestampNs &&
			m.PostSubmissionCpuTimestampNs == beginMeta.PostSubmissionCpuTimestampNs {
			state.remainingBegins--
			return
		}
	}
	// Begin submission already released or never seen; nothing to account.
}

// sweep releases submissions that are fully consumed.
func (r *Reconstructor) sweep(tid int32) {
	pending := r.pendingSubmissions[tid]
	kept := pending[:0]
	for _, state := range pending {
		if state.matched && state.remainingBegins <= 0 {
			continue
		}
		kept = append(kept, state)
	}
	if len(kept) == 0 {
		delete(r.pendingSubmissions, tid)
		return
	}
	r.pendingSubmissions[tid] = kept
}
