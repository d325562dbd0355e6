//go:build !linux

package systemdmanager

import "context"

type Manager struct{}

func New() *Manager { return &Manager{} }

func (m *Manager) Do(ctx context.Context, op Op, unit string) error {
	return formatOperationError(op, UnitName(unit), ErrUnsupported)
}

func (m *Manager) Close() error { return nil }
