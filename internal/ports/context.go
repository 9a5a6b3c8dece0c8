package ports

import "github.com/aegisedge/daqdriver/internal/telem"

// StateVariant is the lifecycle state reported for a task.
type StateVariant string

const (
	StateRunning StateVariant = "running"
	StateSuccess StateVariant = "success"
	StateError   StateVariant = "error"
	StateDeleted StateVariant = "deleted"
)

// StateRecord is one lifecycle transition report written to the sy_task_state
// channel (spec.md §6): configure ok/fail, start, stop, command ack, fatal
// error.
type StateRecord struct {
	Task    telem.TaskKey  `json:"task"`
	Key     string         `json:"key,omitempty"`
	Variant StateVariant   `json:"variant"`
	Details map[string]any `json:"details,omitempty"`
}

// Context is the process-wide handle exposed to every Task and factory: the
// cluster Client plus a sink for lifecycle telemetry (spec.md §2, component 3).
type Context interface {
	Client() Client
	SetState(rec StateRecord)
	Observability() Observability
}
