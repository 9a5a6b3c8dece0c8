// Package manager implements the Task Manager reconciliation loop
// (spec.md §4.8, §2 component 10), grounded directly on
// original_source/driver/task/manager.cpp: the same
// startGuarded/run/runGuarded/processTaskSet/processTaskCmd/processTaskDelete
// shape, translated from one OS thread plus freighter::Error matching into
// one goroutine plus the errs package's kind taxonomy.
package manager

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/factory"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/scanner"
	"github.com/aegisedge/daqdriver/internal/task"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Manager reconciles the remote-declared task set against locally running
// Tasks (spec.md §4.8). It owns the task.Context every Task is built
// against, since spec.md §4.8's "State" section names the task-state
// Writer as Manager state, not a collaborator handed in from outside.
type Manager struct {
	rackKey uint32
	ctx     *task.Context
	enum    scanner.Enumerator
	brk     *breaker.Breaker

	taskSetChannel    ports.Channel
	taskDeleteChannel ports.Channel
	taskCmdChannel    ports.Channel
	taskStateChannel  ports.Channel

	stateMu     sync.Mutex
	stateWriter ports.Writer

	mu    sync.Mutex
	tasks map[telem.TaskKey]task.Task

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
}

// New builds a Manager for rackKey over client, publishing every
// lifecycle StateRecord via obs and, once the task-state channel is
// resolved, via the cluster's task-state Writer. enum backs the
// always-running device scanner Task (spec.md §4.8 step 3).
func New(client ports.Client, obs ports.Observability, rackKey uint32, enum scanner.Enumerator, brkCfg breaker.Config) *Manager {
	m := &Manager{
		rackKey: rackKey,
		enum:    enum,
		brk:     breaker.New(brkCfg),
		tasks:   make(map[telem.TaskKey]task.Task),
	}
	m.ctx = task.New(client, obs, m.publishState)
	return m
}

// Context returns the Manager's task.Context, for callers (tests,
// cmd/daqdriver) that need the same collaborator every Task is built
// against.
func (m *Manager) Context() ports.Context { return m.ctx }

// publishState is the task.Context onState callback: it encodes rec as
// JSON and writes it to the task-state channel, once that channel's
// Writer has been opened by startGuarded. Before that point (or if the
// write fails) the record still reached the log via task.Context.SetState
// itself, which calls obs.LogInfo before invoking this callback.
func (m *Manager) publishState(rec ports.StateRecord) {
	m.stateMu.Lock()
	writer := m.stateWriter
	key := m.taskStateChannel.Key
	m.stateMu.Unlock()
	if writer == nil {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	frame := telem.NewFrame(1)
	frame.Add(key, telem.NewStringSeries([]string{string(data)}))
	if err := writer.Write(frame); err != nil {
		m.ctx.Observability().LogError("[task.manager] failed to publish task state", err)
	}
}

// Start performs the one-time reconciliation setup (spec.md §4.8 steps
// 1-3) and, on success, launches the run loop goroutine (step 4-5).
// Mirrors manager.cpp's start()/startGuarded() split: a transport failure
// in setup is itself breaker-eligible before the loop is ever launched.
func (m *Manager) Start() error {
	if !m.running.CompareAndSwap(false, true) {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.brk.Start()

	for {
		if err := m.startGuarded(); err != nil {
			if errs.IsUnreachable(err) && m.brk.Wait(runCtx) {
				m.ctx.Observability().IncCounter(observability.MetricBreakerRetries, 1)
				continue
			}
			m.running.Store(false)
			return err
		}
		break
	}
	m.brk.Reset()

	m.wg.Add(1)
	go m.run(runCtx)
	return nil
}

// startGuarded resolves the rack, the four control-plane channel
// descriptors, and registers every existing declared task plus the
// initial (always-running) tasks. Grounded on manager.cpp's startGuarded.
func (m *Manager) startGuarded() error {
	rack, err := m.ctx.Client().Hardware().RetrieveRack(m.rackKey)
	if err != nil {
		return err
	}

	taskSet, err := m.ctx.Client().Channels().RetrieveByName(task.ChannelTaskSet)
	if err != nil {
		return err
	}
	taskDelete, err := m.ctx.Client().Channels().RetrieveByName(task.ChannelTaskDelete)
	if err != nil {
		return err
	}
	taskCmd, err := m.ctx.Client().Channels().RetrieveByName(task.ChannelTaskCmd)
	if err != nil {
		return err
	}
	taskState, err := m.ctx.Client().Channels().RetrieveByName(task.ChannelTaskState)
	if err != nil {
		return err
	}
	m.taskSetChannel, m.taskDeleteChannel, m.taskCmdChannel, m.taskStateChannel = taskSet, taskDelete, taskCmd, taskState

	stateWriter, err := m.ctx.Client().Telem().OpenWriter(ports.WriterConfig{
		Channels:         []telem.ChannelKey{taskState.Key},
		EnableAutoCommit: true,
	})
	if err != nil {
		return err
	}
	m.stateMu.Lock()
	m.stateWriter = stateWriter
	m.stateMu.Unlock()

	declared, err := m.ctx.Client().Hardware().ListTasks(rack.Key)
	if err != nil {
		return err
	}

	m.mu.Lock()
	for _, d := range declared {
		if built, ok := factory.ConfigureTask(m.ctx, d); ok && built != nil {
			m.tasks[d.Key] = built
		}
	}
	for _, initial := range factory.ConfigureInitial(m.ctx, m.enum) {
		m.tasks[initial.Key()] = initial
	}
	m.mu.Unlock()

	for _, t := range m.snapshotTasks() {
		if err := t.Start(); err != nil {
			m.ctx.Observability().LogError("[task.manager] failed to start task", err, ports.Field{Key: "task", Value: t.Key()})
		}
	}

	return nil
}

// Stop flips running false, closes the streamer's send half to unblock the
// run loop's Read, joins it, then stops every Task and clears the map
// (spec.md §4.8 "Shutdown").
func (m *Manager) Stop() error {
	if !m.running.CompareAndSwap(true, false) {
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	for _, t := range m.tasks {
		_ = t.Stop()
	}
	m.tasks = make(map[telem.TaskKey]task.Task)
	m.mu.Unlock()

	m.stateMu.Lock()
	if m.stateWriter != nil {
		_ = m.stateWriter.Close()
		m.stateWriter = nil
	}
	m.stateMu.Unlock()

	return m.runErr
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	for {
		err := m.runGuarded(ctx)
		if err == nil {
			return
		}
		if errs.IsUnreachable(err) && m.brk.Wait(ctx) {
			m.ctx.Observability().IncCounter(observability.MetricBreakerRetries, 1)
			continue
		}
		m.runErr = err
		return
	}
}

func (m *Manager) runGuarded(ctx context.Context) error {
	streamer, err := m.ctx.Client().Telem().OpenStreamer(ports.StreamerConfig{
		Channels: []telem.ChannelKey{m.taskSetChannel.Key, m.taskDeleteChannel.Key, m.taskCmdChannel.Key},
	})
	if err != nil {
		return err
	}
	m.brk.Reset()

	go func() {
		<-ctx.Done()
		_ = streamer.CloseSend()
	}()

	for {
		frame, err := streamer.Read()
		if err != nil {
			_ = streamer.Close()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		for i, key := range frame.Channels {
			series := frame.Series[i]
			switch key {
			case m.taskSetChannel.Key:
				m.processTaskSet(series)
			case m.taskDeleteChannel.Key:
				m.processTaskDelete(series)
			case m.taskCmdChannel.Key:
				m.processTaskCmd(series)
			}
		}
	}
}

// processTaskSet mirrors manager.cpp's processTaskSet: an existing Task
// with the same key is stopped and dropped before the Factory builds its
// replacement, so re-sending a key atomically replaces the runtime Task
// (spec.md §8 property 5) and the delete-then-reconfigure path always
// leaves an explicit variant=deleted state record behind first (spec.md
// §D's REDESIGN FLAG).
func (m *Manager) processTaskSet(series telem.Series) {
	for _, key := range series.Uint64s {
		taskKey := telem.TaskKey(key)
		m.dropExisting(taskKey)

		declared, err := m.ctx.Client().Hardware().RetrieveTask(m.rackKey, taskKey)
		if err != nil {
			m.ctx.Observability().LogError("[task.manager] failed to retrieve declared task", err, ports.Field{Key: "task", Value: taskKey})
			continue
		}

		built, ok := factory.ConfigureTask(m.ctx, declared)
		if !ok || built == nil {
			continue
		}
		if err := built.Start(); err != nil {
			m.ctx.Observability().LogError("[task.manager] failed to start configured task", err, ports.Field{Key: "task", Value: taskKey})
			continue
		}
		m.mu.Lock()
		m.tasks[taskKey] = built
		m.mu.Unlock()
	}
}

func (m *Manager) processTaskDelete(series telem.Series) {
	for _, key := range series.Uint64s {
		m.dropExisting(telem.TaskKey(key))
	}
}

// dropExisting stops and removes any runtime Task at key, publishing an
// explicit variant=deleted state record (the REDESIGN FLAG applied over
// manager.cpp, which left this gap for operators; spec.md §9).
func (m *Manager) dropExisting(key telem.TaskKey) {
	m.mu.Lock()
	existing, ok := m.tasks[key]
	if ok {
		delete(m.tasks, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	_ = existing.Stop()
	m.ctx.SetState(ports.StateRecord{Task: key, Variant: ports.StateDeleted})
}

func (m *Manager) processTaskCmd(series telem.Series) {
	for _, raw := range series.Strings {
		var cmd task.Command
		if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
			m.ctx.Observability().LogError("[task.manager] failed to parse command", err)
			continue
		}

		m.mu.Lock()
		t, ok := m.tasks[cmd.Task]
		m.mu.Unlock()
		if !ok {
			m.ctx.Observability().LogError("[task.manager] command refers to unknown task", errs.New(errs.Configuration, "task not found"), ports.Field{Key: "task", Value: cmd.Task})
			continue
		}
		if err := t.Exec(cmd); err != nil {
			m.ctx.Observability().LogError("[task.manager] command execution failed", err, ports.Field{Key: "task", Value: cmd.Task})
		}
	}
}

func (m *Manager) snapshotTasks() []task.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out
}
