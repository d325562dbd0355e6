package config

import "encoding/json"

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage records job firings. Omitted or driver "none" disables it.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Status is the optional HTTP status/pprof server.
	Status *StatusConfig `json:"status,omitempty"`

	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig tunes the scheduler service.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - failure_warn_every: "5s"
//   - preview_runs: 0 (no preview in debug logs)
//   - stop_timeout: "10s"
type SchedulerConfig struct {
	FailureWarnEvery string `json:"failure_warn_every,omitempty"`
	PreviewRuns      int    `json:"preview_runs,omitempty"`
	StopTimeout      string `json:"stop_timeout,omitempty"`
}

// StorageConfig controls the firing history store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./offsetcron.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// StatusConfig controls the optional status HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6061").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6061"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

// JobConfig defines one scheduled job.
//
// At and Repeat accept either a number of milliseconds or a duration
// string like "2h30m" or "1d 4h". At is the offset from UTC midnight, or
// the delay from load time when Relative is set.
type JobConfig struct {
	Name     string `json:"name"`
	At       any    `json:"at"`
	Repeat   any    `json:"repeat,omitempty"`
	Relative bool   `json:"relative,omitempty"`
	Paused   bool   `json:"paused,omitempty"`

	// Action is "log", "exec" or "unit".
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Command string `json:"command,omitempty"`
	Args    any    `json:"args,omitempty"`
	// Unit and Op drive a systemd unit job (op: start, stop or restart).
	Unit string `json:"unit,omitempty"`
	Op   string `json:"op,omitempty"`
	// Timeout bounds exec and unit actions (Go duration string).
	Timeout string `json:"timeout,omitempty"`
}

// Fingerprint identifies a job definition's content. Two definitions with
// the same fingerprint schedule the same thing.
func (j JobConfig) Fingerprint() string {
	b, err := json.Marshal(j)
	if err != nil {
		return ""
	}
	return string(b)
}
