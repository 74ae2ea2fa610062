package capture

// TimeWatermark tracks the minimum timestamp observed across all timestamped
// events of one capture. It seeds the capture time-range bookkeeping
// downstream and anchors derived GPU intervals whose begin was lost before
// the capture started.
type TimeWatermark struct {
	minNs uint64
	valid bool
}

// Observe folds one timestamp into the watermark.
func (w *TimeWatermark) Observe(timestampNs uint64) {
	if !w.valid || timestampNs < w.minNs {
		w.minNs = timestampNs
		w.valid = true
	}
}

// Min returns the smallest observed timestamp. ok is false when no timestamp
// has been observed yet.
func (w *TimeWatermark) Min() (minNs uint64, ok bool) {
	return w.minNs, w.valid
}
