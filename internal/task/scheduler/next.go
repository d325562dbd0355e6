package scheduler

import (
	"math"
	"time"
)

// Day is DayMs as a time.Duration.
const Day = time.Duration(DayMs) * time.Millisecond

// NextRuntime returns the first instant strictly after nowMs on the grid
// midnight+offsetMs+k*intervalMs, where midnight is the UTC midnight at or
// before nowMs. A non-positive interval means daily. Instants past the
// int64 range saturate at math.MaxInt64.
//
// All values are milliseconds; nowMs and the result are unix milliseconds.
func NextRuntime(nowMs, offsetMs, intervalMs int64) int64 {
	if intervalMs <= 0 {
		intervalMs = DayMs
	}
	sinceMidnight := floorMod(nowMs, DayMs)
	if offsetMs > sinceMidnight {
		return addSat(nowMs-sinceMidnight, offsetMs)
	}
	// (now - (midnight+offset)) mod interval, computed from the residues
	// so a far-past anchor cannot overflow.
	behind := floorMod(floorMod(sinceMidnight, intervalMs)-floorMod(offsetMs, intervalMs), intervalMs)
	return addSat(nowMs, intervalMs-behind)
}

// addSat returns a+b for b >= 0, clamped to math.MaxInt64.
func addSat(a, b int64) int64 {
	if a > 0 && b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}

// NextAfter is NextRuntime for time values.
func NextAfter(now time.Time, at, repeat time.Duration) time.Time {
	ms := NextRuntime(now.UnixMilli(), at.Milliseconds(), repeat.Milliseconds())
	return time.UnixMilli(ms).UTC()
}

// SinceMidnight returns the milliseconds elapsed since the UTC midnight
// at or before nowMs.
func SinceMidnight(nowMs int64) int64 { return floorMod(nowMs, DayMs) }

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
