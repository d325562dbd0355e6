package config

import (
	"errors"
	"fmt"
	"strings"

	"offsetcron/pkg/logx"
)

// Actions understood by the job runner.
const (
	ActionLog  = "log"
	ActionExec = "exec"
	ActionUnit = "unit"
)

// Validate checks the structural parts of cfg: job names, actions and
// duration fields. Schedule values (at/repeat/args) are checked when the
// jobs are built.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if _, err := logx.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := ParseDurationField("scheduler.failure_warn_every", cfg.Scheduler.FailureWarnEvery); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.stop_timeout", cfg.Scheduler.StopTimeout); err != nil {
		return err
	}
	if cfg.Scheduler.PreviewRuns < 0 {
		return errors.New("scheduler.preview_runs: must be >= 0")
	}
	seen := make(map[string]int, len(cfg.Jobs))
	for i, j := range cfg.Jobs {
		path := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("%s.name: required", path)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("%s.name: %q already used by jobs[%d]", path, name, prev)
		}
		seen[name] = i
		if j.At == nil {
			return fmt.Errorf("%s.at: required", path)
		}
		switch strings.ToLower(strings.TrimSpace(j.Action)) {
		case ActionLog:
		case ActionExec:
			if strings.TrimSpace(j.Command) == "" {
				return fmt.Errorf("%s.command: required for exec action", path)
			}
		case ActionUnit:
			if strings.TrimSpace(j.Unit) == "" {
				return fmt.Errorf("%s.unit: required for unit action", path)
			}
		default:
			return fmt.Errorf("%s.action: unknown action %q (use log, exec or unit)", path, j.Action)
		}
		if _, err := ParseDurationField(path+".timeout", j.Timeout); err != nil {
			return err
		}
	}
	return nil
}
