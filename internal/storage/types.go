package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	// Retain caps how many firings are kept. 0 means DefaultRetain.
	Retain int
}

const DefaultRetain = 10000

// Firing records one invocation of a job's callback.
// Keep it compact and schema-stable.
type Firing struct {
	JobID     string    `json:"job_id"`
	Name      string    `json:"name,omitempty"`
	Scheduled time.Time `json:"scheduled"`
	Fired     time.Time `json:"fired"`
	TookMS    int64     `json:"took_ms"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	// Next is zero when the job did not re-arm.
	Next time.Time `json:"next,omitempty"`
}

// Query narrows RecentFirings.
type Query struct {
	// Limit caps the result; <= 0 means 50.
	Limit int
	// Name keeps only firings of the named job when non-empty.
	Name string
	// FailedOnly keeps only failed firings.
	FailedOnly bool
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return 50
	}
	return q.Limit
}

func (q Query) match(f Firing) bool {
	if q.Name != "" && f.Name != q.Name {
		return false
	}
	if q.FailedOnly && f.OK {
		return false
	}
	return true
}
