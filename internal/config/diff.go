package config

import (
	"sort"
	"strings"

	logx "offsetcron/pkg/logx"
)

// JobChanges lists job names by what a reload does to them.
type JobChanges struct {
	Added   []string
	Removed []string
	Changed []string
}

func (c JobChanges) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// DiffJobs compares job definitions by name.
func DiffJobs(oldJobs, newJobs []JobConfig) JobChanges {
	prev := make(map[string]string, len(oldJobs))
	for _, j := range oldJobs {
		prev[strings.TrimSpace(j.Name)] = j.Fingerprint()
	}
	var out JobChanges
	next := make(map[string]struct{}, len(newJobs))
	for _, j := range newJobs {
		name := strings.TrimSpace(j.Name)
		next[name] = struct{}{}
		fp, ok := prev[name]
		switch {
		case !ok:
			out.Added = append(out.Added, name)
		case fp != j.Fingerprint():
			out.Changed = append(out.Changed, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			out.Removed = append(out.Removed, name)
		}
	}
	sort.Strings(out.Added)
	sort.Strings(out.Removed)
	sort.Strings(out.Changed)
	return out
}

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like tokens),
// and (3) the job-level changes.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, JobChanges) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.String("scheduler.failure_warn_every", newCfg.Scheduler.FailureWarnEvery),
			logx.Int("scheduler.preview_runs", newCfg.Scheduler.PreviewRuns),
		)
	}

	if derefStorage(oldCfg.Storage) != derefStorage(newCfg.Storage) {
		changed = append(changed, "storage")
		st := derefStorage(newCfg.Storage)
		attrs = append(attrs, logx.String("storage.driver", st.Driver))
	}

	// Status (never log token)
	os, ns := derefStatus(oldCfg.Status), derefStatus(newCfg.Status)
	if os.Enabled != ns.Enabled || os.Addr != ns.Addr || os.AllowInsecure != ns.AllowInsecure ||
		os.ReadTimeout != ns.ReadTimeout || os.IdleTimeout != ns.IdleTimeout ||
		(strings.TrimSpace(os.Token) != "") != (strings.TrimSpace(ns.Token) != "") || os.Token != ns.Token {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", ns.Enabled),
			logx.String("status.addr", strings.TrimSpace(ns.Addr)),
			logx.Bool("status.token_set", strings.TrimSpace(ns.Token) != ""),
		)
	}

	jobs := DiffJobs(oldCfg.Jobs, newCfg.Jobs)
	if !jobs.Empty() {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.added", len(jobs.Added)),
			logx.Int("jobs.removed", len(jobs.Removed)),
			logx.Int("jobs.changed", len(jobs.Changed)),
		)
	}

	return changed, attrs, jobs
}

func derefStorage(p *StorageConfig) StorageConfig {
	if p == nil {
		return StorageConfig{}
	}
	return *p
}

func derefStatus(p *StatusConfig) StatusConfig {
	if p == nil {
		return StatusConfig{}
	}
	return *p
}
