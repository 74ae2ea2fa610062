package timesync

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Converter handles conversion from monotonic capture timestamps to
// wall-clock time.
type Converter struct {
	// Wall-clock time corresponding to monotonic timestamp zero.
	epoch time.Time
}

// NewConverter creates a converter anchored on an explicit reference point:
// wallClock is the wall-clock time at which the monotonic clock read
// monotonicNs. This is the right constructor when the capture producer
// reports its start timestamp.
func NewConverter(wallClock time.Time, monotonicNs uint64) *Converter {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return &Converter{epoch: wallClock.Add(-time.Duration(monotonicNs))}
}

// NewConverterFromBootTime creates a converter anchored on the local boot
// time from /proc/stat, for captures taken on this machine. If reading
// fails, it uses a conservative fallback estimate.
func NewConverterFromBootTime() *Converter {
	bootTime, err := getSystemBootTime()
	if err != nil {
		// Fallback: less accurate, but allows processing to continue.
		bootTime = time.Now().Add(-time.Hour)
	}
	return &Converter{epoch: bootTime}
}

// MonotonicToWallClock converts a monotonic timestamp (nanoseconds since the
// anchor's zero point) to wall-clock time. This is a pure function based on
// the anchor captured at initialization.
func (c *Converter) MonotonicToWallClock(monotonicNs uint64) time.Time {
	//nolint:gosec // uint64 to int64 conversion for time.Duration is safe for reasonable timestamps
	return c.epoch.Add(time.Duration(monotonicNs))
}

// Epoch returns the wall-clock time corresponding to monotonic zero.
func (c *Converter) Epoch() time.Time {
	return c.epoch
}

// getSystemBootTime reads the system boot time from /proc/stat.
// Returns the boot time as a time.Time value, or an error if reading fails.
func getSystemBootTime() (time.Time, error) {
	file, err := os.Open("/proc/stat")
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to open /proc/stat: %w", err)
	}
	defer func() {
		_ = file.Close() //nolint:errcheck // Read-only file, defer cleanup
	}()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "btime ") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				bootTimeSec, err := strconv.ParseInt(fields[1], 10, 64)
				if err != nil {
					return time.Time{}, fmt.Errorf("failed to parse btime: %w", err)
				}
				return time.Unix(bootTimeSec, 0), nil
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return time.Time{}, fmt.Errorf("error reading /proc/stat: %w", err)
	}

	return time.Time{}, fmt.Errorf("btime not found in /proc/stat")
}
