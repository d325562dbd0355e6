package scheduler

import "time"

// Timer is an armed single-shot alarm.
type Timer interface {
	// Stop cancels the alarm. It reports false if the alarm already fired
	// or was stopped.
	Stop() bool
}

// Clock supplies the current instant and single-shot alarms.
//
// The default clock uses time.Now and time.AfterFunc. Tests substitute a
// manual clock to control firing.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SystemClock returns the wall-clock implementation of Clock.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}
