package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"offsetcron/internal/eventbus"
	logx "offsetcron/pkg/logx"
)

var testNow = time.Date(2026, 10, 19, 13, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *manualClock) {
	t.Helper()
	clk := newManualClock(testNow)
	return New(Config{PreviewRuns: 3}, clk, logx.Nop(), nil), clk
}

// recorder is a callback that remembers when and with what it was called.
type recorder struct {
	mu    sync.Mutex
	clk   Clock
	at    []time.Time
	args  [][]any
	selfs []any
	err   error
}

func (r *recorder) callback() *Callback {
	return NewCallback(func(self any, args []any) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.at = append(r.at, r.clk.Now())
		r.args = append(r.args, args)
		r.selfs = append(r.selfs, self)
		return r.err
	})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.at)
}

func todMs() int64 { return SinceMidnight(testNow.UnixMilli()) }

func TestOneShotFiresOnceAndIsRemoved(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}

	job, err := s.Schedule(rec.callback(), Millis(todMs()+1000), When{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if got := job.State(); got != StateArmed {
		t.Fatalf("State = %s, want armed", got)
	}

	clk.Advance(999 * time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("fired early")
	}
	clk.Advance(time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0 after one-shot", s.Len())
	}
	if got := job.State(); got != StateCancelled {
		t.Fatalf("State = %s, want cancelled", got)
	}

	clk.Advance(3 * Day)
	if rec.count() != 1 {
		t.Fatalf("one-shot fired %d times", rec.count())
	}
	if clk.Pending() != 0 {
		t.Fatalf("pending timers = %d, want 0", clk.Pending())
	}
}

func TestRepeatingJobStaysOnGrid(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}

	const interval = int64(1000)
	at := todMs() + 500
	job, err := s.Schedule(rec.callback(), Millis(at), Millis(interval))
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	clk.Advance(3500 * time.Millisecond)
	if rec.count() != 4 {
		t.Fatalf("fires = %d, want 4", rec.count())
	}
	anchor := testNow.UnixMilli() - todMs() + at
	var prev int64
	for i, ts := range rec.at {
		ms := ts.UnixMilli()
		if (ms-anchor)%interval != 0 {
			t.Fatalf("firing %d at %d is off the grid", i, ms)
		}
		if i > 0 && ms <= prev {
			t.Fatalf("firing %d at %d not after previous %d", i, ms, prev)
		}
		prev = ms
	}
	if !job.Armed() || s.Len() != 1 {
		t.Fatal("repeating job should stay armed and tracked")
	}
	if job.Fires() != 4 {
		t.Fatalf("Fires = %d, want 4", job.Fires())
	}
}

func TestCallbackReceivesArgsAndSelf(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}
	self := &struct{ name string }{name: "ctx"}

	_, err := s.ScheduleCall(Call{
		Func: rec.callback(),
		Args: []any{"a", 2},
		At:   Millis(todMs() + 10),
		Self: self,
		Name: "with-args",
	})
	if err != nil {
		t.Fatalf("ScheduleCall error: %v", err)
	}
	clk.Advance(10 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
	if len(rec.args[0]) != 2 || rec.args[0][0] != "a" || rec.args[0][1] != 2 {
		t.Fatalf("args = %v", rec.args[0])
	}
	if rec.selfs[0] != self {
		t.Fatal("self not passed through")
	}
}

func TestScheduleValidation(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	cb := (&recorder{clk: clk}).callback()

	tests := []struct {
		name    string
		call    Call
		is      error
		wantMsg string
	}{
		{name: "nil func", call: Call{At: Millis(0)}, is: ErrInvalidArgument, wantMsg: "func not a function"},
		{name: "missing at", call: Call{Func: cb}, is: ErrInvalidArgument, wantMsg: "at not a number"},
		{name: "bad at string", call: Call{Func: cb, At: Text("soon")}, is: ErrFormat},
		{name: "bad repeat string", call: Call{Func: cb, At: Millis(0), Repeat: Text("2x")}, is: ErrFormat},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			for _, schedule := range []func(Call) (*Job, error){s.ScheduleCall, s.SetTimeoutCall} {
				_, err := schedule(tt.call)
				if !errors.Is(err, tt.is) {
					t.Fatalf("error = %v, want %v", err, tt.is)
				}
				if tt.wantMsg != "" && err.Error() != tt.wantMsg {
					t.Fatalf("message = %q, want %q", err.Error(), tt.wantMsg)
				}
			}
		})
	}
	if s.Len() != 0 {
		t.Fatalf("rejected requests left %d jobs", s.Len())
	}
}

func TestRepeatFromString(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	job, err := s.Schedule((&recorder{clk: clk}).callback(), Text("1h"), Text("2h"))
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if job.Repeat() != 7200000 {
		t.Fatalf("Repeat = %d, want 7200000", job.Repeat())
	}
	if job.At() != 3600000 {
		t.Fatalf("At = %d, want 3600000", job.At())
	}
}

func TestOffsetJustPassedFiresTomorrow(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	offset := todMs() - 10
	job, err := s.Schedule((&recorder{clk: clk}).callback(), Millis(offset), When{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	midnight := testNow.UnixMilli() - todMs()
	want := midnight + DayMs + offset
	if d := job.NextMs() - want; d < 0 || d > 20 {
		t.Fatalf("next = %d, want within 20ms of %d", job.NextMs(), want)
	}
}

func TestCancelSelectors(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	shared := (&recorder{clk: clk}).callback()
	other := (&recorder{clk: clk}).callback()

	j1, _ := s.Schedule(shared, Millis(todMs()+100), When{})
	j2, _ := s.Schedule(shared, Millis(todMs()+200), Millis(1000))
	j3, _ := s.Schedule(other, Millis(todMs()+300), When{})

	if got := s.Cancel(NewCallback(func(any, []any) error { return nil })); len(got) != 0 || got == nil {
		t.Fatalf("unmatched Cancel = %v, want empty slice", got)
	}
	for _, j := range []*Job{j1, j2, j3} {
		if !j.Armed() {
			t.Fatalf("job %s disarmed by unmatched cancel", j.ID())
		}
	}

	got := s.Cancel(shared)
	if len(got) != 2 || got[0] != j1 || got[1] != j2 {
		t.Fatalf("Cancel(callback) = %v, want [j1 j2]", got)
	}
	if j1.Armed() || j2.Armed() || !j3.Armed() {
		t.Fatal("unexpected armed state after Cancel(callback)")
	}

	got = s.Cancel(j3)
	if len(got) != 1 || got[0] != j3 {
		t.Fatalf("Cancel(job) = %v, want [j3]", got)
	}
	if s.Len() != 0 || clk.Pending() != 0 {
		t.Fatalf("Len = %d, pending = %d, want 0/0", s.Len(), clk.Pending())
	}
}

func TestCancelAll(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}
	for i := 0; i < 5; i++ {
		if _, err := s.Schedule(rec.callback(), Millis(todMs()+int64(i+1)*100), Millis(500)); err != nil {
			t.Fatalf("Schedule error: %v", err)
		}
	}
	got := s.Cancel(All)
	if len(got) != 5 {
		t.Fatalf("Cancel(All) removed %d, want 5", len(got))
	}
	if s.Len() != 0 || clk.Pending() != 0 {
		t.Fatalf("Len = %d, pending = %d, want 0/0", s.Len(), clk.Pending())
	}
	clk.Advance(time.Hour)
	if rec.count() != 0 {
		t.Fatalf("cancelled jobs fired %d times", rec.count())
	}
}

func TestPauseResumeIdempotent(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}
	job, err := s.Schedule(rec.callback(), Millis(todMs()+60_000), When{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	next := job.NextMs()

	job.Pause()
	if job.Armed() || job.State() != StatePaused {
		t.Fatalf("State = %s after Pause", job.State())
	}
	if job.NextMs() != next {
		t.Fatal("Pause changed next instant")
	}
	job.Pause()
	if job.Armed() {
		t.Fatal("second Pause re-armed")
	}

	job.Resume()
	if job.NextMs() != next {
		t.Fatalf("Resume moved next from %d to %d", next, job.NextMs())
	}
	armed := clk.Armed()
	job.Resume()
	if clk.Armed() != armed {
		t.Fatal("second Resume allocated a new timer")
	}
	if clk.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", clk.Pending())
	}

	clk.Advance(time.Minute)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
}

func TestPausedJobDoesNotFire(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}
	job, _ := s.Schedule(rec.callback(), Millis(todMs()+100), Millis(100))
	job.Pause()
	clk.Advance(time.Second)
	if rec.count() != 0 {
		t.Fatalf("paused job fired %d times", rec.count())
	}
	if s.Len() != 1 {
		t.Fatal("paused job should stay tracked")
	}

	job.Resume()
	// Resumed after the target elapsed: rolls forward on the grid.
	if want := testNow.UnixMilli() + 1100; job.NextMs() != want {
		t.Fatalf("next = %d, want %d", job.NextMs(), want)
	}
	clk.Advance(100 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
}

func TestPauseDuringCallbackStopsRepeat(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	var job *Job
	calls := 0
	cb := NewCallback(func(any, []any) error {
		calls++
		job.Pause()
		return nil
	})
	job, _ = s.Schedule(cb, Millis(todMs()+100), Millis(100))
	clk.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if s.Len() != 0 {
		t.Fatal("job paused during its callback should be removed")
	}
	if job.State() != StateCancelled {
		t.Fatalf("State = %s, want cancelled", job.State())
	}
}

func TestResumeDuringCallbackDoesNotOverlap(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	var job *Job
	running := false
	calls := 0
	cb := NewCallback(func(any, []any) error {
		if running {
			t.Error("callback overlapped")
		}
		running = true
		defer func() { running = false }()
		calls++
		if calls == 1 {
			job.Pause()
			job.Resume()
			if job.State() != StateRunning {
				t.Errorf("State = %s inside callback, want running", job.State())
			}
		}
		return nil
	})
	job, _ = s.Schedule(cb, Millis(todMs()+100), Millis(100))
	clk.Advance(350 * time.Millisecond)
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if clk.Pending() != 1 {
		t.Fatalf("pending = %d, want exactly one armed timer", clk.Pending())
	}
}

func TestFailingCallbackStillRearms(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk, err: errors.New("boom")}
	_, _ = s.Schedule(rec.callback(), Millis(todMs()+100), Millis(100))

	panics := 0
	_, _ = s.Schedule(NewCallback(func(any, []any) error {
		panics++
		panic("kaboom")
	}), Millis(todMs()+100), Millis(100))

	clk.Advance(300 * time.Millisecond)
	if rec.count() != 3 {
		t.Fatalf("failing job fired %d times, want 3", rec.count())
	}
	if panics != 3 {
		t.Fatalf("panicking job fired %d times, want 3", panics)
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}

func TestSetTimeoutIsRelative(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}
	job, err := s.SetTimeout(rec.callback(), Text("1.5s"), When{})
	if err != nil {
		t.Fatalf("SetTimeout error: %v", err)
	}
	if want := testNow.UnixMilli() + 1500; job.NextMs() != want {
		t.Fatalf("next = %d, want %d", job.NextMs(), want)
	}
	if job.At() != todMs()+1500 {
		t.Fatalf("At = %d, want %d", job.At(), todMs()+1500)
	}
	clk.Advance(1500 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	cb := (&recorder{clk: clk}).callback()
	_, _ = s.Schedule(cb, Millis(todMs()+100), Millis(100))

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop error: %v", err)
	}
	if s.Len() != 0 || clk.Pending() != 0 {
		t.Fatal("Stop left jobs armed")
	}
	if _, err := s.Schedule(cb, Millis(0), When{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("error = %v, want ErrClosed", err)
	}
	if !s.Snapshot().Closed {
		t.Fatal("snapshot should report closed")
	}
}

func TestEventsPublished(t *testing.T) {
	t.Parallel()
	clk := newManualClock(testNow)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16, "job.")
	defer unsub()
	s := New(Config{}, clk, logx.Nop(), bus)

	_, err := s.ScheduleCall(Call{
		Func: NewCallback(func(any, []any) error { return nil }),
		At:   Millis(todMs() + 5),
		Name: "evt",
	})
	if err != nil {
		t.Fatalf("ScheduleCall error: %v", err)
	}
	clk.Advance(5 * time.Millisecond)

	var types []string
	for len(ch) > 0 {
		e := <-ch
		types = append(types, e.Type)
		if ev, ok := e.Data.(JobEvent); !ok || ev.Name != "evt" {
			t.Fatalf("unexpected payload %#v", e.Data)
		}
	}
	want := []string{EventArmed, EventFired, EventCompleted}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	cb := (&recorder{clk: clk}).callback()
	j, _ := s.ScheduleCall(Call{Func: cb, At: Text("14h"), Repeat: Text("30m"), Name: "snap"})
	j.Pause()

	snap := s.Snapshot()
	if len(snap.Jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(snap.Jobs))
	}
	it := snap.Jobs[0]
	if it.Name != "snap" || it.State != StatePaused || it.Repeat != 30*time.Minute || it.At != 14*time.Hour {
		t.Fatalf("unexpected info %+v", it)
	}
	if want := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC); !it.Next.Equal(want) {
		t.Fatalf("Next = %v, want %v", it.Next, want)
	}
}

func TestDecodeBoundary(t *testing.T) {
	t.Parallel()
	if _, err := ArgsFrom("not a list"); !errors.Is(err, ErrInvalidArgument) || err.Error() != "args not an array" {
		t.Fatalf("ArgsFrom error = %v", err)
	}
	args, err := ArgsFrom([]any{"x", 1.0})
	if err != nil || len(args) != 2 {
		t.Fatalf("ArgsFrom = %v, %v", args, err)
	}
	if _, err := WhenFrom(map[string]any{}); !errors.Is(err, ErrInvalidArgument) || err.Error() != "at not a number" {
		t.Fatalf("WhenFrom error = %v", err)
	}
	w, err := WhenFrom(1500.0)
	if err != nil {
		t.Fatalf("WhenFrom error: %v", err)
	}
	if ms, ok, _ := w.Ms(); !ok || ms != 1500 {
		t.Fatalf("WhenFrom(1500) = %d, %v", ms, ok)
	}
	w, _ = WhenFrom("2h")
	if ms, _, _ := w.Ms(); ms != 7200000 {
		t.Fatalf("WhenFrom(2h) = %d", ms)
	}
	if w, _ := WhenFrom(nil); w.IsSet() {
		t.Fatal("WhenFrom(nil) should be unset")
	}
}

func TestFarFutureOffsetWaitsPastTimerRange(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	rec := &recorder{clk: clk}

	job, err := s.Schedule(rec.callback(), Millis(todMs()+300*365*DayMs), When{})
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	next := job.NextMs()
	if want := testNow.UnixMilli() + 300*365*DayMs; next != want {
		t.Fatalf("next = %d, want %d", next, want)
	}

	clk.Advance(time.Millisecond)
	if rec.count() != 0 {
		t.Fatal("far-future job fired immediately")
	}

	// The first alarm is capped; waking from it must only re-arm.
	clk.Advance(maxTimerDelay)
	if rec.count() != 0 {
		t.Fatal("job fired when the capped alarm woke")
	}
	if job.NextMs() != next || !job.Armed() || clk.Pending() != 1 {
		t.Fatalf("after early wake: next=%d armed=%v pending=%d", job.NextMs(), job.Armed(), clk.Pending())
	}

	clk.Advance(time.UnixMilli(next).Sub(clk.Now()) + time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("fires = %d, want 1", rec.count())
	}
	if got := rec.at[0].UnixMilli(); got < next {
		t.Fatalf("fired at %d, before next %d", got, next)
	}
}

func TestArmedFalseWhileRunning(t *testing.T) {
	t.Parallel()
	s, clk := newTestService(t)
	var job *Job
	var armedInside bool
	cb := NewCallback(func(any, []any) error {
		armedInside = job.Armed()
		return nil
	})
	job, _ = s.Schedule(cb, Millis(todMs()+100), Millis(100))

	clk.Advance(100 * time.Millisecond)
	if armedInside {
		t.Fatal("Armed reported true while the callback was running")
	}
	if !job.Armed() {
		t.Fatal("repeating job should be armed again after its callback")
	}
}

func TestCancelDuringCallbackPublishesOneTerminalEvent(t *testing.T) {
	t.Parallel()
	clk := newManualClock(testNow)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16, "job.")
	defer unsub()
	s := New(Config{}, clk, logx.Nop(), bus)

	var job *Job
	job, err := s.Schedule(NewCallback(func(any, []any) error {
		s.Cancel(job)
		return nil
	}), Millis(todMs()+10), Millis(10))
	if err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	clk.Advance(50 * time.Millisecond)

	var types []string
	for len(ch) > 0 {
		types = append(types, (<-ch).Type)
	}
	want := []string{EventArmed, EventCancelled, EventFired}
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("events = %v, want %v", types, want)
		}
	}
	if job.State() != StateCancelled || clk.Pending() != 0 {
		t.Fatalf("state = %s pending = %d", job.State(), clk.Pending())
	}
}
