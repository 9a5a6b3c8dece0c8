// Package task defines the process-local Task abstraction (spec.md §4.7,
// §2 component 8): a declarative config turned into a running pipeline
// pair, plus the runtime Context every Task and pipeline is built against.
package task

import (
	"strconv"
	"sync"

	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Context is the default ports.Context: a cluster Client plus an
// Observability sink for lifecycle state, grounded on AegisFlow's app-layer
// wiring (internal/app/pipeline threads a similarly process-wide handle
// through each stage) but narrowed to exactly the two collaborators
// spec.md §2 component 3 names.
type Context struct {
	client ports.Client
	obs    ports.Observability

	mu     sync.Mutex
	onState func(ports.StateRecord)
}

// New builds a Context over client, logging every published StateRecord
// through obs in addition to handing it to onState (if non-nil), which the
// Task Manager uses to publish to sy_task_state.
func New(client ports.Client, obs ports.Observability, onState func(ports.StateRecord)) *Context {
	return &Context{client: client, obs: obs, onState: onState}
}

func (c *Context) Client() ports.Client             { return c.client }
func (c *Context) Observability() ports.Observability { return c.obs }

func (c *Context) SetState(rec ports.StateRecord) {
	c.obs.LogInfo("[task.manager] task state", ports.Field{Key: "task", Value: rec.Task}, ports.Field{Key: "variant", Value: rec.Variant})
	c.obs.IncCounter(observability.MetricStateTransitions, 1)
	c.mu.Lock()
	onState := c.onState
	c.mu.Unlock()
	if onState != nil {
		onState(rec)
	}
}

// ConfigError builds the error-detail map of a configuration-failure
// StateRecord. The map is keyed by position ("error_0", "error_1", ...),
// not by config path; each value is the full error text, which for
// config.Parser errors carries the field path as a "path: message" prefix.
func ConfigError(task telem.TaskKey, errs []error) ports.StateRecord {
	details := make(map[string]any, len(errs))
	for i, err := range errs {
		details["error_"+strconv.Itoa(i)] = err.Error()
	}
	return ports.StateRecord{Task: task, Variant: ports.StateError, Details: details}
}
