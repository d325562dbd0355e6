package scheduler

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"offsetcron/internal/eventbus"
	logx "offsetcron/pkg/logx"
)

// Selector picks jobs for Cancel: a *Callback, a *Job, or All.
type Selector interface {
	matches(j *Job) bool
}

type allJobs struct{}

func (allJobs) matches(*Job) bool { return true }

// All matches every job tracked by a Service.
var All Selector = allJobs{}

const defaultFailureWarnEvery = 5 * time.Second

// maxTimerDelay is the longest single alarm; about 292 years.
const maxTimerDelay = time.Duration(math.MaxInt64)

// Service owns a collection of live jobs and drives their timers.
// Create one with New; the zero value is not usable.
type Service struct {
	mu     sync.Mutex
	clock  Clock
	log    logx.Logger
	bus    eventbus.Bus
	cfg    Config
	jobs   []*Job
	closed bool

	inflight sync.WaitGroup

	// warnMu guards cfg and warn.
	warnMu sync.Mutex
	warn   map[string]*rate.Limiter
}

func New(cfg Config, clock Clock, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.FailureWarnEvery <= 0 {
		cfg.FailureWarnEvery = defaultFailureWarnEvery
	}
	return &Service{
		cfg:   cfg,
		clock: clock,
		log:   log,
		bus:   bus,
		warn:  map[string]*rate.Limiter{},
	}
}

// Schedule registers cb to fire at the given offset from UTC midnight,
// repeating every repeat when repeat resolves to a positive amount.
func (s *Service) Schedule(cb *Callback, at, repeat When) (*Job, error) {
	return s.schedule(Call{Func: cb, At: at, Repeat: repeat}, false)
}

// ScheduleCall is Schedule in descriptor form.
func (s *Service) ScheduleCall(c Call) (*Job, error) {
	return s.schedule(c, false)
}

// SetTimeout schedules cb delay after the current instant. The delay is
// converted to a time-of-day offset, so a repeating job stays on the grid
// anchored at the first firing.
func (s *Service) SetTimeout(cb *Callback, delay, repeat When) (*Job, error) {
	return s.schedule(Call{Func: cb, At: delay, Repeat: repeat}, true)
}

// SetTimeoutCall is SetTimeout in descriptor form; c.At is the delay.
func (s *Service) SetTimeoutCall(c Call) (*Job, error) {
	return s.schedule(c, true)
}

func (s *Service) schedule(c Call, relative bool) (*Job, error) {
	now := s.clock.Now()
	var shift int64
	if relative {
		shift = SinceMidnight(now.UnixMilli())
	}
	req, err := c.normalize(shift)
	if err != nil {
		return nil, err
	}

	j := &Job{
		owner:  s,
		id:     uuid.NewString(),
		name:   req.name,
		cb:     req.cb,
		args:   req.args,
		self:   req.self,
		at:     req.at,
		repeat: req.repeat,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.armLocked(j, now)
	s.jobs = append(s.jobs, j)
	ev := j.eventLocked()
	n := len(s.jobs)
	s.mu.Unlock()

	fields := []logx.Field{
		logx.String("job", j.label()),
		logx.Int64("at_ms", j.at),
		logx.Int64("repeat_ms", j.repeat),
		logx.Time("next", ev.Scheduled),
		logx.Int("jobs", n),
	}
	if preview := s.previewLine(j, now); preview != "" {
		fields = append(fields, logx.String("upcoming", preview))
	}
	s.log.Debug("job scheduled", fields...)
	s.publish(EventArmed, ev)
	return j, nil
}

// Cancel disarms and removes every job matched by sel and returns them.
// The result is empty, not nil, when nothing matched. A callback already
// running is not interrupted.
func (s *Service) Cancel(sel Selector) []*Job {
	removed := []*Job{}
	if sel == nil {
		return removed
	}
	s.mu.Lock()
	kept := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if sel.matches(j) {
			s.disarmLocked(j)
			j.removed = true
			removed = append(removed, j)
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept
	events := make([]JobEvent, 0, len(removed))
	for _, j := range removed {
		events = append(events, j.eventLocked())
	}
	s.mu.Unlock()

	for i, ev := range events {
		s.log.Debug("job cancelled", logx.String("job", removed[i].label()))
		s.publish(EventCancelled, ev)
		s.forgetFailures(ev.ID)
	}
	return removed
}

// Jobs returns the live jobs in insertion order.
func (s *Service) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Len returns the number of live jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Stop cancels every job, rejects further schedule calls, and waits for
// running callbacks until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	removed := s.Cancel(All)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("stop timed out waiting for running callbacks", logx.Err(ctx.Err()))
		return ctx.Err()
	}
	s.log.Info("scheduler stopped", logx.Int("cancelled", len(removed)), logx.Duration("took", time.Since(start)))
	return nil
}

// armLocked computes the job's next instant from now and starts its timer.
// Call with s.mu held.
func (s *Service) armLocked(j *Job, now time.Time) {
	if j.timer != nil {
		j.timer.Stop()
	}
	j.gen++
	nowMs := now.UnixMilli()
	j.next = NextRuntime(nowMs, j.at, j.repeat)
	if j.running {
		j.timer = deferredTimer{}
		return
	}
	s.startTimerLocked(j, nowMs)
}

// startTimerLocked sets an alarm for j.next. Gaps longer than a
// time.Duration can hold wake early; fire then re-arms without running.
func (s *Service) startTimerLocked(j *Job, nowMs int64) {
	delay := maxTimerDelay
	if gap := j.next - nowMs; gap < int64(maxTimerDelay/time.Millisecond) {
		delay = time.Duration(gap) * time.Millisecond
	}
	gen := j.gen
	j.timer = s.clock.AfterFunc(delay, func() { s.fire(j, gen) })
}

// disarmLocked stops the job's timer. Call with s.mu held.
func (s *Service) disarmLocked(j *Job) {
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	j.gen++
}

// removeLocked drops a finished job from the collection. Call with s.mu held.
func (s *Service) removeLocked(j *Job) {
	s.disarmLocked(j)
	j.removed = true
	for i, cur := range s.jobs {
		if cur == j {
			s.jobs = append(s.jobs[:i:i], s.jobs[i+1:]...)
			return
		}
	}
}

func (s *Service) fire(j *Job, gen uint64) {
	s.mu.Lock()
	if s.closed || j.gen != gen || j.timer == nil || j.removed {
		s.mu.Unlock()
		return
	}
	if nowMs := s.clock.Now().UnixMilli(); nowMs < j.next {
		j.gen++
		s.startTimerLocked(j, nowMs)
		s.mu.Unlock()
		return
	}
	j.running = true
	j.fires++
	fired := s.clock.Now()
	j.lastFire = fired.UnixMilli()
	ev := j.eventLocked()
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	err := s.invoke(j)
	took := s.clock.Now().Sub(fired)

	s.mu.Lock()
	j.running = false
	cancelled := j.removed
	rearm := j.repeat > 0 && j.timer != nil && !cancelled
	if rearm {
		s.armLocked(j, s.clock.Now())
	} else {
		s.removeLocked(j)
	}
	next := time.UnixMilli(j.next).UTC()
	s.mu.Unlock()

	ev.Fired = fired
	ev.Took = took
	if rearm {
		ev.Next = next
	}
	if err != nil {
		ev.Error = err.Error()
		s.reportFailure(j, &CallbackError{JobID: j.id, Err: err})
		s.publish(EventFailed, ev)
	} else {
		s.log.Debug("job fired", logx.String("job", j.label()), logx.Duration("took", took), logx.Bool("rearmed", rearm))
		s.publish(EventFired, ev)
	}
	// A job cancelled mid-run already published job.cancelled.
	if !rearm && !cancelled {
		s.publish(EventCompleted, ev)
		s.forgetFailures(j.id)
	}
}

func (s *Service) invoke(j *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.log.Error("job panicked", logx.String("job", j.label()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return j.cb.Call(j.self, j.args)
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: ev})
}
