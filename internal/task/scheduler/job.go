package scheduler

import (
	"time"

	logx "offsetcron/pkg/logx"
)

// Job is one scheduled unit of work. Jobs are created by Service and
// mutated only by their owning Service and by Pause/Resume.
type Job struct {
	owner *Service

	id     string
	name   string
	cb     *Callback
	args   []any
	self   any
	at     int64
	repeat int64

	// Guarded by owner.mu.
	next     int64
	timer    Timer // nil when not armed
	gen      uint64
	running  bool
	removed  bool
	fires    uint64
	lastFire int64
}

func (j *Job) ID() string          { return j.id }
func (j *Job) Name() string        { return j.name }
func (j *Job) Callback() *Callback { return j.cb }
func (j *Job) Args() []any         { return j.args }
func (j *Job) Self() any           { return j.self }

// At is the target offset from UTC midnight in milliseconds.
func (j *Job) At() int64 { return j.at }

// Repeat is the repeat interval in milliseconds; 0 for one-shot jobs.
func (j *Job) Repeat() int64 { return j.repeat }

// Next returns the currently computed firing instant. It is kept while the
// job is paused.
func (j *Job) Next() time.Time {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	return time.UnixMilli(j.next).UTC()
}

// NextMs is Next as unix milliseconds.
func (j *Job) NextMs() int64 {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	return j.next
}

// Armed reports whether a timer is pending for the job. It is false while
// the callback runs; the next alarm is set once it returns.
func (j *Job) Armed() bool {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	return j.timer != nil && !j.running
}

func (j *Job) State() State {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	return j.stateLocked()
}

// Fires returns how many times the callback has been invoked.
func (j *Job) Fires() uint64 {
	j.owner.mu.Lock()
	defer j.owner.mu.Unlock()
	return j.fires
}

func (j *Job) stateLocked() State {
	switch {
	case j.removed:
		return StateCancelled
	case j.running:
		return StateRunning
	case j.timer != nil:
		return StateArmed
	default:
		return StatePaused
	}
}

// Pause disarms the job's timer. The computed next instant is kept.
// Pausing a paused job is a no-op. A callback already running is not
// interrupted; a job paused while its callback runs is not re-armed.
func (j *Job) Pause() {
	s := j.owner
	s.mu.Lock()
	if j.timer == nil {
		s.mu.Unlock()
		return
	}
	s.disarmLocked(j)
	ev := j.eventLocked()
	s.mu.Unlock()

	s.log.Debug("job paused", logx.String("job", j.label()))
	s.publish(EventPaused, ev)
}

// Resume re-arms a paused job, recomputing its next instant against the
// current time. Resuming an armed or cancelled job is a no-op.
func (j *Job) Resume() {
	s := j.owner
	s.mu.Lock()
	if j.timer != nil || j.removed {
		s.mu.Unlock()
		return
	}
	s.armLocked(j, s.clock.Now())
	ev := j.eventLocked()
	s.mu.Unlock()

	s.log.Debug("job resumed", logx.String("job", j.label()), logx.Time("next", ev.Scheduled))
	s.publish(EventArmed, ev)
}

func (j *Job) matches(other *Job) bool { return j == other }

func (j *Job) label() string {
	if j.name != "" {
		return j.name
	}
	return j.id
}

func (j *Job) eventLocked() JobEvent {
	return JobEvent{ID: j.id, Name: j.name, Scheduled: time.UnixMilli(j.next).UTC()}
}

func (j *Job) infoLocked() JobInfo {
	it := JobInfo{
		ID:     j.id,
		Name:   j.name,
		At:     time.Duration(j.at) * time.Millisecond,
		Repeat: time.Duration(j.repeat) * time.Millisecond,
		Next:   time.UnixMilli(j.next).UTC(),
		State:  j.stateLocked(),
		Fires:  j.fires,
	}
	if j.lastFire != 0 {
		it.LastFire = time.UnixMilli(j.lastFire).UTC()
	}
	return it
}

// deferredTimer marks a job re-armed while its callback is running. The
// real alarm is created once the callback returns.
type deferredTimer struct{}

func (deferredTimer) Stop() bool { return false }
