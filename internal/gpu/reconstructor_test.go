package gpu

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracecap/internal/capture"
	"tracecap/internal/wire"
)

// fakeStrings assigns sequential keys to labels and resolves only what was
// explicitly defined or interned.
type fakeStrings struct {
	byLabel map[string]uint64
	byKey   map[uint64]string
	next    uint64
}

func newFakeStrings() *fakeStrings {
	return &fakeStrings{
		byLabel: make(map[string]uint64),
		byKey:   make(map[uint64]string),
		next:    1,
	}
}

func (f *fakeStrings) InternLabel(label string) uint64 {
	if key, ok := f.byLabel[label]; ok {
		return key
	}
	key := f.next
	f.next++
	f.byLabel[label] = key
	f.byKey[key] = label
	return key
}

func (f *fakeStrings) define(key uint64, s string) {
	f.byKey[key] = s
}

func (f *fakeStrings) Resolve(key uint64) (string, error) {
	s, ok := f.byKey[key]
	if !ok {
		return "", fmt.Errorf("undefined string key %#x", key)
	}
	return s, nil
}

func testJob() *wire.GpuJob {
	return &wire.GpuJob{
		PID:                 1,
		TID:                 2,
		Depth:               0,
		TimelineKey:         0x42,
		IoctlTimeNs:         100,
		SchedRunTimeNs:      150,
		HwStartTimeNs:       200,
		FenceSignaledTimeNs: 300,
	}
}

// testSubmission brackets testJob's ioctl time and carries one command
// buffer spanning GPU timestamps 1000-1050.
func testSubmission() *wire.GpuQueueSubmission {
	return &wire.GpuQueueSubmission{
		MetaInfo: &wire.SubmissionMetaInfo{
			TID:                          2,
			PreSubmissionCpuTimestampNs:  90,
			PostSubmissionCpuTimestampNs: 110,
		},
		SubmitInfos: []wire.GpuSubmitInfo{
			{CommandBuffers: []wire.GpuCommandBuffer{{BeginGpuTimestampNs: 1000, EndGpuTimestampNs: 1050}}},
		},
	}
}

func timersByType(timers []capture.TimerInfo, typ capture.TimerType) []capture.TimerInfo {
	var out []capture.TimerInfo
	for _, timer := range timers {
		if timer.Type == typ {
			out = append(out, timer)
		}
	}
	return out
}

func TestReconstructor_JobPhases(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)
	require.Len(t, timers, 3)

	wantLabels := []string{"sw queue", "hw queue", "hw execution"}
	wantIntervals := [][2]uint64{{100, 150}, {150, 200}, {200, 300}}
	for i, timer := range timers {
		label, err := strings.Resolve(timer.LabelKey)
		require.NoError(t, err)
		assert.Equal(t, wantLabels[i], label)
		assert.Equal(t, wantIntervals[i][0], timer.Start)
		assert.Equal(t, wantIntervals[i][1], timer.End)
		assert.Equal(t, capture.TimerGpuActivity, timer.Type)
		assert.Equal(t, uint64(0x42), timer.TimelineKey)
	}

	minNs, ok := watermark.Min()
	require.True(t, ok)
	assert.Equal(t, uint64(100), minNs)
}

func TestReconstructor_JobThenSubmission(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	jobTimers, err := r.ProcessJob(testJob())
	require.NoError(t, err)
	assert.Len(t, jobTimers, 3, "submission not seen yet, phases only")

	subTimers, err := r.ProcessQueueSubmission(testSubmission())
	require.NoError(t, err)

	cbs := timersByType(subTimers, capture.TimerGpuCommandBuffer)
	require.Len(t, cbs, 1)
	// GPU begin 1000 is anchored to the job's hardware start at 200.
	assert.Equal(t, uint64(200), cbs[0].Start)
	assert.Equal(t, uint64(250), cbs[0].End)
	assert.Equal(t, uint64(0x42), cbs[0].TimelineKey)
}

func TestReconstructor_SubmissionThenJob(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	subTimers, err := r.ProcessQueueSubmission(testSubmission())
	require.NoError(t, err)
	assert.Empty(t, subTimers, "job not seen yet, submission cached")

	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)

	cbs := timersByType(timers, capture.TimerGpuCommandBuffer)
	require.Len(t, cbs, 1)
	assert.Equal(t, uint64(200), cbs[0].Start)
	assert.Equal(t, uint64(250), cbs[0].End)
}

func TestReconstructor_DebugMarker(t *testing.T) {
	strings := newFakeStrings()
	strings.define(0x77, "draw shadows")
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.NumBeginMarkers = 1
	sub.CompletedMarkers = []wire.GpuDebugMarker{{
		TextKey:           0x77,
		Depth:             2,
		EndGpuTimestampNs: 1040,
		BeginMarker:       &wire.GpuDebugMarkerBeginInfo{GpuTimestampNs: 1010},
	}}

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)

	markers := timersByType(timers, capture.TimerGpuDebugMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, uint64(210), markers[0].Start)
	assert.Equal(t, uint64(240), markers[0].End)
	assert.Equal(t, uint8(2), markers[0].Depth)
	assert.Equal(t, uint64(0x77), markers[0].LabelKey)
}

func TestReconstructor_MarkerWithoutBeginClampsToWatermark(t *testing.T) {
	strings := newFakeStrings()
	strings.define(0x77, "frame")
	var watermark capture.TimeWatermark
	watermark.Observe(50)
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.CompletedMarkers = []wire.GpuDebugMarker{{
		TextKey:           0x77,
		EndGpuTimestampNs: 1040,
	}}

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)

	markers := timersByType(timers, capture.TimerGpuDebugMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, uint64(50), markers[0].Start, "begin predates the capture, clamp to its start")
	assert.Equal(t, uint64(240), markers[0].End)
}

func TestReconstructor_MarkerBeginInEarlierSubmission(t *testing.T) {
	strings := newFakeStrings()
	strings.define(0x88, "shadow pass")
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	// First submission opens a marker but does not complete it.
	first := testSubmission()
	first.NumBeginMarkers = 1

	_, err := r.ProcessQueueSubmission(first)
	require.NoError(t, err)
	_, err = r.ProcessJob(testJob())
	require.NoError(t, err)
	require.Len(t, r.pendingSubmissions[2], 1,
		"matched submission still owns an unconsumed begin marker")

	// Second submission on the same thread completes it, pointing back at
	// the first submission's bracketing window.
	second := &wire.GpuQueueSubmission{
		MetaInfo: &wire.SubmissionMetaInfo{
			TID:                          2,
			PreSubmissionCpuTimestampNs:  490,
			PostSubmissionCpuTimestampNs: 510,
		},
		SubmitInfos: []wire.GpuSubmitInfo{
			{CommandBuffers: []wire.GpuCommandBuffer{{BeginGpuTimestampNs: 2000, EndGpuTimestampNs: 2050}}},
		},
		CompletedMarkers: []wire.GpuDebugMarker{{
			TextKey:           0x88,
			Depth:             1,
			EndGpuTimestampNs: 2040,
			BeginMarker: &wire.GpuDebugMarkerBeginInfo{
				GpuTimestampNs: 1970,
				MetaInfo:       first.MetaInfo,
			},
		}},
	}
	laterJob := &wire.GpuJob{
		PID:                 1,
		TID:                 2,
		TimelineKey:         0x42,
		IoctlTimeNs:         500,
		SchedRunTimeNs:      550,
		HwStartTimeNs:       600,
		FenceSignaledTimeNs: 700,
	}

	_, err = r.ProcessQueueSubmission(second)
	require.NoError(t, err)
	timers, err := r.ProcessJob(laterJob)
	require.NoError(t, err)

	// GPU begin 2000 anchors to hardware start 600, so the marker spanning
	// 1970-2040 lands at [570,640].
	markers := timersByType(timers, capture.TimerGpuDebugMarker)
	require.Len(t, markers, 1)
	assert.Equal(t, uint64(570), markers[0].Start)
	assert.Equal(t, uint64(640), markers[0].End)
	assert.Equal(t, uint64(0x88), markers[0].LabelKey)

	assert.Empty(t, r.pendingSubmissions,
		"both submissions released once the begin marker is consumed")
}

func TestReconstructor_MarkerTextUnresolvedFatal(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.CompletedMarkers = []wire.GpuDebugMarker{{
		TextKey:           0xdead,
		EndGpuTimestampNs: 1040,
		BeginMarker:       &wire.GpuDebugMarkerBeginInfo{GpuTimestampNs: 1010},
	}}

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	_, err = r.ProcessJob(testJob())
	assert.Error(t, err)
}

func TestReconstructor_MissingMetaInfo(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	timers, err := r.ProcessQueueSubmission(&wire.GpuQueueSubmission{})
	assert.ErrorIs(t, err, ErrMissingMetaInfo)
	assert.Empty(t, timers)
}

func TestReconstructor_NoMatchAcrossThreads(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.MetaInfo.TID = 99

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)
	assert.Empty(t, timersByType(timers, capture.TimerGpuCommandBuffer))
}

func TestReconstructor_NoMatchOutsideCpuWindow(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.MetaInfo.PreSubmissionCpuTimestampNs = 500
	sub.MetaInfo.PostSubmissionCpuTimestampNs = 600

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)
	assert.Empty(t, timersByType(timers, capture.TimerGpuCommandBuffer),
		"submit ioctl outside the bracketing window")
}

func TestReconstructor_SubmissionWithoutCommandBuffers(t *testing.T) {
	strings := newFakeStrings()
	var watermark capture.TimeWatermark
	r := NewReconstructor(strings, &watermark)

	sub := testSubmission()
	sub.SubmitInfos = nil

	_, err := r.ProcessQueueSubmission(sub)
	require.NoError(t, err)
	timers, err := r.ProcessJob(testJob())
	require.NoError(t, err)
	assert.Len(t, timers, 3, "no anchor, only the phase intervals")
}
