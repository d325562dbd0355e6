package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"offsetcron/internal/config"
	"offsetcron/internal/eventbus"
	"offsetcron/internal/observability/status"
	"offsetcron/internal/runtime/supervisor"
	"offsetcron/internal/storage"
	"offsetcron/internal/task/scheduler"
	logx "offsetcron/pkg/logx"
	"offsetcron/pkg/systemdmanager"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log    logx.Logger
	jobLog logx.Logger
	logs   *logx.Service
	bus    eventbus.Bus
	store  storage.Store

	sched  *scheduler.Service
	status *status.Service
	units  *systemdmanager.Manager

	stopTimeout atomic.Int64 // time.Duration
	stopRecord  func()

	jobsMu sync.Mutex
	live   map[string]liveJob
}

type Option func(*options)

type options struct {
	clock scheduler.Clock
}

// WithClock drives the scheduler from clock instead of the system clock.
func WithClock(clock scheduler.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New loads the config at cfgPath and wires every service. Nothing runs
// until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	appLog := log.With(logx.String("comp", "app"))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := mapStatusConfig(cfg); err != nil {
		return nil, err
	}

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()
	sched := scheduler.New(schedCfg, o.clock, log.With(logx.String("comp", "scheduler")), bus)

	a := &App{
		cfgm:   cfgm,
		log:    appLog,
		jobLog: log.With(logx.String("comp", "job")),
		logs:   logSvc,
		bus:    bus,
		store:  store,
		sched:  sched,
		units:  systemdmanager.New(),
		live:   map[string]liveJob{},
	}
	a.stopTimeout.Store(int64(mapStopTimeout(cfg)))
	a.status = status.New(log, sched, a, a.health)
	return a, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// StatusAddr is the bound status server address, or "" when it is off.
func (a *App) StatusAddr() string { return a.status.Addr() }

// StopTimeout is the configured upper bound for Stop.
func (a *App) StopTimeout() time.Duration { return time.Duration(a.stopTimeout.Load()) }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) health() ([]supervisor.Stats, error) {
	if a.sup == nil {
		return nil, nil
	}
	return a.sup.Snapshot(), a.sup.Err()
}

// validate rejects a reloaded config that could not be applied.
func (a *App) validate(ctx context.Context, cfg *config.Config) error {
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStatusConfig(cfg); err != nil {
		return err
	}
	if _, _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, err := planJobs(ctx, cfg.Jobs, a.units, logx.Nop())
	return err
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(a.validate)

	// Subscribe before any job is armed so no firing is missed.
	if a.store != nil {
		events, unsub := a.bus.Subscribe(256, scheduler.EventFired, scheduler.EventFailed)
		a.stopRecord = unsub
		a.sup.Go("history.record", func(context.Context) error {
			a.recordFirings(events)
			return nil
		})
	}
	if a.log.Enabled(logx.LevelDebug) {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go("eventbus.log", func(c context.Context) error {
			defer unsub()
			a.logEvents(c, events)
			return nil
		})
	}

	cfg := a.cfgm.Get()
	if err := a.applyJobs(runCtx, cfg.Jobs); err != nil {
		return err
	}
	if sc, err := mapStatusConfig(cfg); err == nil {
		a.status.Reconfigure(runCtx, sc)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)

	a.log.Info("app started", logx.Int("jobs", len(cfg.Jobs)))
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			next = c
		}
		// Coalesce bursts: only the newest config matters.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}
		a.applyConfig(ctx, last, next)
		last = next
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, jobs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	for _, s := range sections {
		switch s {
		case "logging":
			if err := a.logs.Apply(mapLoggingConfig(next)); err != nil {
				a.log.Warn("log file disabled", logx.Err(err))
			}
		case "scheduler":
			if sc, err := mapSchedulerConfig(next); err == nil {
				a.sched.Apply(sc)
			}
			a.stopTimeout.Store(int64(mapStopTimeout(next)))
		case "storage":
			a.log.Warn("storage config changed; restart required for changes to take effect")
		case "status":
			if sc, err := mapStatusConfig(next); err == nil {
				a.status.Reconfigure(ctx, sc)
			}
		case "jobs":
			if err := a.applyJobs(ctx, next.Jobs); err != nil {
				a.log.Warn("job reload failed", logx.Err(err))
			}
			a.log.Debug("job changes",
				logx.Any("added", jobs.Added),
				logx.Any("removed", jobs.Removed),
				logx.Any("changed", jobs.Changed),
			)
		}
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// Stop shuts down in dependency order. Each step is bounded so one slow
// component cannot stall the rest; ctx caps the whole sequence.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("status", time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	// Waits for running callbacks; exec actions were already signalled by Cancel.
	step("scheduler", a.StopTimeout(), a.sched.Stop)
	if a.stopRecord != nil {
		a.stopRecord()
	}
	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("units", time.Second, func(context.Context) error { return a.units.Close() })
	step("storage", time.Second, func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}
