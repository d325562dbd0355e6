//go:build linux

package systemdmanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Manager runs unit jobs on the system bus. The connection is opened on
// first use so hosts without systemd only fail when a unit job runs.
type Manager struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func New() *Manager { return &Manager{} }

func (m *Manager) connLocked(ctx context.Context) (*dbus.Conn, error) {
	if m.conn != nil && m.conn.Connected() {
		return m.conn, nil
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	m.conn = conn
	return conn, nil
}

// Do queues op for unit in "replace" mode and waits for the job result.
func (m *Manager) Do(ctx context.Context, op Op, unit string) error {
	unit = UnitName(unit)
	m.mu.Lock()
	conn, err := m.connLocked(ctx)
	m.mu.Unlock()
	if err != nil {
		return formatOperationError(op, unit, err)
	}

	done := make(chan string, 1)
	switch op {
	case OpStart:
		_, err = conn.StartUnitContext(ctx, unit, "replace", done)
	case OpStop:
		_, err = conn.StopUnitContext(ctx, unit, "replace", done)
	case OpRestart:
		_, err = conn.RestartUnitContext(ctx, unit, "replace", done)
	default:
		err = fmt.Errorf("unknown op %q", op)
	}
	if err != nil {
		return formatOperationError(op, unit, err)
	}

	select {
	case <-ctx.Done():
		return formatOperationError(op, unit, ctx.Err())
	case res := <-done:
		// done, canceled, timeout, failed, dependency, skipped
		if res != "done" {
			return formatOperationError(op, unit, errors.New("job "+res))
		}
		return nil
	}
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	return nil
}
