package hardware

import "time"

// BusyWait spins until d has elapsed on the monotonic clock.
//
// Callers must hold their OS thread (runtime.LockOSThread) for the whole
// sequence; a sleep would hand the thread back to the scheduler and stretch
// the hold by the wakeup latency.
func BusyWait(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}

// Micros converts microseconds to a Duration.
func Micros(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}
