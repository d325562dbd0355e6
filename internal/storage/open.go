package storage

import (
	"context"
	"errors"
	"strings"

	logx "offsetcron/pkg/logx"
)

// Store is the persistence API used by the app.
type Store interface {
	AppendFiring(ctx context.Context, f Firing) error
	// RecentFirings returns matching firings, newest first.
	RecentFirings(ctx context.Context, q Query) ([]Firing, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Retain <= 0 {
		cfg.Retain = DefaultRetain
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
