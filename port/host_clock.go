//go:build !tinygo

package port

import "golang.org/x/sys/unix"

// wallClockNanos reads CLOCK_MONOTONIC directly through golang.org/x/sys/unix
// rather than time.Now(). The scheduler's own notion of time is always the
// tick count from Now(), never this.
func wallClockNanos() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

// WallClockNanos exposes wallClockNanos for callers outside this package
// that want a host wall-clock reading independent of the tick count.
// Nothing in this module calls it.
func WallClockNanos() int64 {
	return wallClockNanos()
}
