package task

import (
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Well-known control-plane channel names (spec.md §6). The Task Manager
// resolves these to keys via ports.ChannelRegistry.RetrieveByName once at
// startup.
const (
	ChannelTaskSet    = "sy_task_set"
	ChannelTaskDelete = "sy_task_delete"
	ChannelTaskCmd    = "sy_task_cmd"
	ChannelTaskState  = "sy_task_state"
)

// Command is the parsed form of one sy_task_cmd entry (spec.md §6).
type Command struct {
	Task telem.TaskKey  `json:"task"`
	Type string         `json:"type"`
	Key  string         `json:"key,omitempty"`
	Args map[string]any `json:"args,omitempty"`
}

// Standard command types every Task understands.
const (
	CommandStart = "start"
	CommandStop  = "stop"
)

// Task is a process-local object wrapping one pipeline pair (spec.md §4.7,
// §2 component 8). Implementations are built by a Factory and owned
// exclusively by the Manager's reconciliation loop.
type Task interface {
	Key() telem.TaskKey
	// Start begins producing/consuming Frames. Idempotent.
	Start() error
	// Stop quiesces the Task and releases its hardware handle. Calling Stop
	// twice returns nil the second time without touching hardware again
	// (spec.md §8, property 3).
	Stop() error
	// Exec dispatches a Command. "start"/"stop" map to Start/Stop;
	// Task-specific types (e.g. "scan") are handled by the concrete Task.
	Exec(cmd Command) error
}
