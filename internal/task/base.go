package task

import (
	"sync"
	"sync/atomic"

	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Runner is the subset of a pipeline's lifecycle a Base delegates to:
// either an Acquisition or a Control pipeline (internal/pipeline), kept as
// an interface here so this package doesn't import pipeline (which in turn
// depends on task.Context).
type Runner interface {
	Start() error
	Stop() error
}

// Base implements the idempotent Start/Stop/Exec machinery shared by every
// hardware-bound Task (spec.md §4.7: "exposes start, stop, exec"), so
// internal/factory only supplies the pipeline(s) and any domain commands.
type Base struct {
	key      telem.TaskKey
	ctx      ports.Context
	runners  []Runner
	domain   func(Command) error
	stopOnce sync.Once
	stopped  atomic.Bool
	stopErr  error
}

// NewBase builds a Base wrapping runners (one or two pipelines) and an
// optional domain handler for Task-specific command types. ctx may be nil
// in tests that don't care about lifecycle state records; every Factory
// call site passes the same Context the Task was configured against.
func NewBase(key telem.TaskKey, ctx ports.Context, domain func(Command) error, runners ...Runner) *Base {
	return &Base{key: key, ctx: ctx, runners: runners, domain: domain}
}

func (b *Base) Key() telem.TaskKey { return b.key }

// Start starts every runner and, once all have started, writes a
// variant=running state record (spec.md §6: "every lifecycle transition
// ... writes one state record"; ni/task.cpp emits the equivalent
// variant=success/{running:true} on start).
func (b *Base) Start() error {
	for _, r := range b.runners {
		if err := r.Start(); err != nil {
			return err
		}
	}
	b.setState(ports.StateRunning, map[string]any{"running": true})
	return nil
}

// Stop stops every runner exactly once, regardless of how many times Stop
// is called (spec.md §8, property 3), and writes a stop state record.
func (b *Base) Stop() error {
	b.stopOnce.Do(func() {
		b.stopped.Store(true)
		for _, r := range b.runners {
			if err := r.Stop(); err != nil && b.stopErr == nil {
				b.stopErr = err
			}
		}
		b.setState(ports.StateSuccess, map[string]any{"running": false})
	})
	return b.stopErr
}

// Exec dispatches "start"/"stop" to Start/Stop and anything else to the
// domain handler, acking the domain command with its own state record
// (spec.md §6: "command ack" is one of the lifecycle transitions that
// writes a state record).
func (b *Base) Exec(cmd Command) error {
	switch cmd.Type {
	case CommandStart:
		return b.Start()
	case CommandStop:
		return b.Stop()
	default:
		if b.domain == nil {
			return nil
		}
		err := b.domain(cmd)
		details := map[string]any{"command": cmd.Type, "ok": err == nil}
		variant := ports.StateSuccess
		if err != nil {
			variant = ports.StateError
			details["error"] = err.Error()
		}
		b.setState(variant, details)
		return err
	}
}

func (b *Base) setState(variant ports.StateVariant, details map[string]any) {
	if b.ctx == nil {
		return
	}
	b.ctx.SetState(ports.StateRecord{Task: b.key, Variant: variant, Details: details})
}
