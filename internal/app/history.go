package app

import (
	"context"
	"time"

	"offsetcron/internal/config"
	"offsetcron/internal/eventbus"
	"offsetcron/internal/storage"
	"offsetcron/internal/task/scheduler"
	logx "offsetcron/pkg/logx"
)

const recordTimeout = 2 * time.Second

// recordFirings writes every fired/failed event to the store until events
// is closed. It drains the channel so firings during shutdown are kept.
func (a *App) recordFirings(events <-chan eventbus.Event) {
	for e := range events {
		ev, ok := e.Data.(scheduler.JobEvent)
		if !ok {
			continue
		}
		f := storage.Firing{
			JobID:     ev.ID,
			Name:      ev.Name,
			Scheduled: ev.Scheduled,
			Fired:     ev.Fired,
			TookMS:    ev.Took.Milliseconds(),
			OK:        e.Type == scheduler.EventFired,
			Error:     ev.Error,
			Next:      ev.Next,
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		err := a.store.AppendFiring(ctx, f)
		cancel()
		if err != nil {
			a.log.Warn("record firing failed", logx.String("job", ev.Name), logx.Err(err))
		}
	}
}

// RecentFirings queries the history store.
func (a *App) RecentFirings(ctx context.Context, q storage.Query) ([]storage.Firing, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.RecentFirings(ctx, q)
}

// logEvents mirrors bus traffic to the debug log.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			fields := []logx.Field{logx.String("type", e.Type)}
			if ev, ok := e.Data.(scheduler.JobEvent); ok {
				fields = append(fields, logx.String("job", ev.Name), logx.Time("scheduled", ev.Scheduled))
			}
			a.log.Debug("event", fields...)
		}
	}
}

// OpenHistory opens the history store configured in the file at cfgPath
// without starting anything. It returns storage.ErrDisabled when the
// config has no store.
func OpenHistory(cfgPath string) (storage.Store, error) {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return nil, err
	}
	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, storage.ErrDisabled
	}
	return storage.Open(sc, logx.Nop())
}
