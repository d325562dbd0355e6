package scheduler

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	logx "offsetcron/pkg/logx"
)

// offsetSchedule is the midnight+at+k*repeat grid as a cron.Schedule.
type offsetSchedule struct {
	at     int64
	repeat int64
}

func (o offsetSchedule) Next(t time.Time) time.Time {
	return time.UnixMilli(NextRuntime(t.UnixMilli(), o.at, o.repeat)).UTC()
}

// NewSchedule resolves at and repeat into a cron.Schedule that yields the
// same instants a job scheduled with them would fire at.
func NewSchedule(at, repeat When) (cron.Schedule, error) {
	a, ok, err := at.Ms()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, invalidArg("at not a number")
	}
	r, _, err := repeat.Ms()
	if err != nil {
		return nil, err
	}
	return offsetSchedule{at: a, repeat: max(r, 0)}, nil
}

// Schedule returns the job's firing grid.
func (j *Job) Schedule() cron.Schedule {
	return offsetSchedule{at: j.at, repeat: j.repeat}
}

// Preview returns up to n consecutive instants of sched after from.
func Preview(sched cron.Schedule, from time.Time, n int) []time.Time {
	out := make([]time.Time, 0, max(n, 0))
	t := from
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}

// previewLine formats the upcoming firings of j for the debug log.
func (s *Service) previewLine(j *Job, now time.Time) string {
	n := s.config().PreviewRuns
	if n <= 0 || !s.log.Enabled(logx.LevelDebug) {
		return ""
	}
	if j.repeat == 0 {
		n = 1
	}
	var b strings.Builder
	for i, t := range Preview(j.Schedule(), now, n) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(t.Format("2006-01-02 15:04:05.000"))
	}
	return b.String()
}
