package clock

import "time"

// Minutes converts a whole-minute setting into a Duration.
func Minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// WholeMinutes truncates d to whole minutes.
func WholeMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// Seconds converts a stored second count into a Duration.
func Seconds(n int64) time.Duration {
	return time.Duration(n) * time.Second
}

// Until returns end-now, clamped at zero.
func Until(end, now time.Time) time.Duration {
	remaining := end.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CeilSeconds rounds d up to whole seconds so a freshly started phase reports its
// full length. Negative durations report zero.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// FloorSeconds truncates d to whole seconds. Negative durations report zero.
func FloorSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// Millis and FromMillis convert durations for integer storage columns.
func Millis(d time.Duration) int64 {
	return d.Milliseconds()
}

func FromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
