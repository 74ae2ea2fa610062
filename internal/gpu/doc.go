// Package gpu reconstructs derived GPU timeline intervals from raw driver
// and Vulkan-layer records.
//
// Two paths feed it. A gpu-job record carries the four driver timestamps of
// one job and yields exactly three canonical intervals on the job's
// timeline: "sw queue" (ioctl to scheduler run), "hw queue" (scheduler run
// to hardware start) and "hw execution" (hardware start to fence signal).
// A gpu-queue-submission record carries command-buffer and debug-marker
// timestamps in the GPU clock domain; it is correlated with the matching
// gpu-job by thread id and the CPU timestamp window bracketing the submit
// call, in whichever order the two records arrive. Command-buffer GPU
// timestamps are translated to the CPU clock by anchoring the earliest
// command-buffer begin to the job's hardware start time.
//
// Submissions are retained until their job has matched and every begin
// marker they own has been consumed by a later completed marker, so markers
// spanning submissions on the same timeline resolve without crosstalk
// between timelines.
package gpu
