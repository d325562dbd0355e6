// Package scheduler invokes registered callbacks at a time-of-day offset
// (milliseconds since UTC midnight), once or repeatedly at a fixed interval.
//
// The scheduler is responsible for:
//   - parsing human-legible durations ("1d 2h 3m4s5")
//   - computing the next firing instant on the midnight+offset grid
//   - arming one single-shot timer per job and re-arming after each firing
//   - pause/resume/cancel of individual jobs
//
// Callbacks run on the timer goroutine. A job's next firing is armed only
// after its previous callback returned, so firings of one job never overlap.
package scheduler
