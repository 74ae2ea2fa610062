// Package timesync provides time conversion utilities for converting
// monotonic capture timestamps to wall-clock time.
//
// Capture events carry monotonic timestamps (nanoseconds since target boot).
// This package converts them to absolute wall-clock time, either by anchoring
// on an explicit reference point taken at capture start, or by reading the
// local boot time from /proc/stat when target and client share a machine.
package timesync
