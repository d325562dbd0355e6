// Package systemdmanager starts, stops and restarts systemd units over D-Bus.
package systemdmanager

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnsupported = errors.New("systemdmanager: unsupported OS (linux only)")

// Op is a unit operation.
type Op string

const (
	OpStart   Op = "start"
	OpStop    Op = "stop"
	OpRestart Op = "restart"
)

// ParseOp accepts start, stop or restart (any case). Empty means restart.
func ParseOp(s string) (Op, error) {
	switch op := Op(strings.ToLower(strings.TrimSpace(s))); op {
	case "":
		return OpRestart, nil
	case OpStart, OpStop, OpRestart:
		return op, nil
	default:
		return "", fmt.Errorf("unknown unit op %q (use start, stop or restart)", s)
	}
}

// UnitName appends ".service" to a bare name. Names that already carry a
// unit suffix (".timer", ".target", ...) are kept.
func UnitName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func formatOperationError(op Op, unit string, err error) error {
	return fmt.Errorf("%s %s: %w", op, unit, err)
}
