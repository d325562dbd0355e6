package scheduler

import "time"

// Config controls the scheduler service.
type Config struct {
	// FailureWarnEvery bounds how often a failing job logs at warn level.
	// Failures in between are logged at debug. 0 means 5s.
	FailureWarnEvery time.Duration

	// PreviewRuns is how many upcoming firings the debug log shows when a
	// job is scheduled. 0 disables the preview.
	PreviewRuns int
}

// State is the derived lifecycle state of a job.
type State string

const (
	StateArmed     State = "armed"
	StateRunning   State = "running"
	StatePaused    State = "paused"
	StateCancelled State = "cancelled"
)

// Event types published on the bus.
const (
	EventArmed     = "job.armed"
	EventFired     = "job.fired"
	EventFailed    = "job.failed"
	EventPaused    = "job.paused"
	EventCancelled = "job.cancelled"
	EventCompleted = "job.completed"
)

// JobEvent is the payload of every job.* event.
type JobEvent struct {
	ID        string        `json:"id"`
	Name      string        `json:"name,omitempty"`
	Scheduled time.Time     `json:"scheduled"`
	Fired     time.Time     `json:"fired,omitempty"`
	Took      time.Duration `json:"took,omitempty"`
	Next      time.Time     `json:"next,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// JobInfo is a point-in-time view of one job.
type JobInfo struct {
	ID       string        `json:"id"`
	Name     string        `json:"name,omitempty"`
	At       time.Duration `json:"at"`
	Repeat   time.Duration `json:"repeat"`
	Next     time.Time     `json:"next"`
	State    State         `json:"state"`
	Fires    uint64        `json:"fires"`
	LastFire time.Time     `json:"last_fire,omitempty"`
}

// Snapshot is a point-in-time view of the service.
type Snapshot struct {
	Now    time.Time `json:"now"`
	Closed bool      `json:"closed"`
	Jobs   []JobInfo `json:"jobs"`
}
