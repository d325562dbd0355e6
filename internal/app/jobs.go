package app

import (
	"context"
	"fmt"
	"strings"

	"offsetcron/internal/actions"
	"offsetcron/internal/config"
	"offsetcron/internal/task/scheduler"
	logx "offsetcron/pkg/logx"
)

// jobPlan is a validated job definition ready to hand to the scheduler.
type jobPlan struct {
	name     string
	call     scheduler.Call
	relative bool
	paused   bool
	fp       string
}

// liveJob is what a name in the config currently maps to. A finished
// one-shot job stays here so an unchanged reload does not run it again.
type liveJob struct {
	job *scheduler.Job
	fp  string
}

// planJob turns a job definition into a scheduler call. ctx bounds exec
// actions and should live as long as the app.
func planJob(ctx context.Context, jc config.JobConfig, units actions.UnitRunner, log logx.Logger) (jobPlan, error) {
	name := strings.TrimSpace(jc.Name)
	at, err := scheduler.WhenFrom(jc.At)
	if err != nil {
		return jobPlan{}, fmt.Errorf("job %q: at: %w", name, err)
	}
	repeat, err := scheduler.WhenFrom(jc.Repeat)
	if err != nil {
		return jobPlan{}, fmt.Errorf("job %q: repeat: %w", name, err)
	}
	// Resolve both amounts now so a bad duration string is rejected before
	// anything is scheduled.
	if _, err := scheduler.NewSchedule(at, repeat); err != nil {
		return jobPlan{}, fmt.Errorf("job %q: %w", name, err)
	}
	args, err := scheduler.ArgsFrom(jc.Args)
	if err != nil {
		return jobPlan{}, fmt.Errorf("job %q: %w", name, err)
	}
	timeout, err := config.ParseDurationField("job "+name+".timeout", jc.Timeout)
	if err != nil {
		return jobPlan{}, err
	}
	cb, err := actions.New(ctx, actions.Spec{
		Job:     name,
		Action:  jc.Action,
		Message: jc.Message,
		Command: jc.Command,
		Unit:    jc.Unit,
		Op:      jc.Op,
		Units:   units,
		Timeout: timeout,
	}, log)
	if err != nil {
		return jobPlan{}, fmt.Errorf("job %q: %w", name, err)
	}
	return jobPlan{
		name: name,
		call: scheduler.Call{
			Func:   cb,
			Args:   args,
			At:     at,
			Repeat: repeat,
			Self:   name,
			Name:   name,
		},
		relative: jc.Relative,
		paused:   jc.Paused,
		fp:       jc.Fingerprint(),
	}, nil
}

func planJobs(ctx context.Context, jobs []config.JobConfig, units actions.UnitRunner, log logx.Logger) ([]jobPlan, error) {
	plans := make([]jobPlan, 0, len(jobs))
	for _, jc := range jobs {
		p, err := planJob(ctx, jc, units, log)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, nil
}

// applyJobs reconciles the scheduler with jobs by name: removed and changed
// definitions are cancelled, new and changed ones are scheduled, unchanged
// ones keep their timers.
func (a *App) applyJobs(ctx context.Context, jobs []config.JobConfig) error {
	plans, err := planJobs(ctx, jobs, a.units, a.jobLog)
	if err != nil {
		return err
	}
	want := make(map[string]jobPlan, len(plans))
	for _, p := range plans {
		want[p.name] = p
	}

	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()

	var cancelled, added int
	for name, lj := range a.live {
		if p, ok := want[name]; ok && p.fp == lj.fp {
			continue
		}
		cancelled += len(a.sched.Cancel(lj.job))
		delete(a.live, name)
	}
	for _, p := range plans {
		if _, ok := a.live[p.name]; ok {
			continue
		}
		var j *scheduler.Job
		if p.relative {
			j, err = a.sched.SetTimeoutCall(p.call)
		} else {
			j, err = a.sched.ScheduleCall(p.call)
		}
		if err != nil {
			return fmt.Errorf("job %q: %w", p.name, err)
		}
		if p.paused {
			j.Pause()
		}
		a.live[p.name] = liveJob{job: j, fp: p.fp}
		added++
		a.log.Info("job scheduled",
			logx.String("job", p.name),
			logx.Time("next", j.Next()),
			logx.Bool("paused", p.paused),
		)
	}
	if cancelled > 0 || added > 0 {
		a.log.Debug("jobs reconciled", logx.Int("scheduled", added), logx.Int("cancelled", cancelled), logx.Int("total", len(a.live)))
	}
	return nil
}

// Job returns the live job scheduled for name.
func (a *App) Job(name string) (*scheduler.Job, bool) {
	a.jobsMu.Lock()
	defer a.jobsMu.Unlock()
	lj, ok := a.live[name]
	if !ok {
		return nil, false
	}
	return lj.job, true
}
