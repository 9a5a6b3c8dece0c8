// Package scanner implements the periodic device-discovery Task (spec.md
// §4.9), grounded on original_source/driver/opc/scanner.cpp's
// scan()/exec() dispatch and driver/driver/ni/ni_scanner_test.cpp's
// getDevices() enumerator call, generalized from the source's
// OPC-UA-node-browse and NI-system-config enumerators (both out of scope
// per spec.md §1: "device discovery tools") to one Enumerator interface the
// Task drives regardless of what backs it.
package scanner

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisedge/daqdriver/internal/hw/vendor"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/task"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// ScanInterval is the periodic scan cadence (spec.md §4.9: "every 5 s").
const ScanInterval = 5 * time.Second

// CommandScan is the explicit-scan domain command type (spec.md §4.9: "on
// explicit scan command, it runs once synchronously").
const CommandScan = "scan"

// CommandTestConnection probes a single candidate location without adding it
// to the periodic scan set, matching scanner.cpp's testConnection (SPEC_FULL
// §C.1).
const CommandTestConnection = "test_connection"

// Enumerator is the out-of-scope vendor system-configuration enumerator
// (spec.md §1): concrete device-discovery tooling, given here as an
// interface so the Task never depends on a vendor SDK directly.
type Enumerator interface {
	Enumerate() ([]ports.Device, error)
}

// Task is the periodic device-discovery Task. Unlike the hardware-bound
// Tasks internal/factory builds, it owns no pipeline and is built directly rather
// than through task.Base, since its lifecycle is a single ticker goroutine
// rather than a pipeline pair.
type Task struct {
	key  telem.TaskKey
	ctx  ports.Context
	enum Enumerator

	mu      sync.Mutex
	running bool
	cancel  chan struct{}
	wg      sync.WaitGroup
}

// New builds a scanner Task bound to key, publishing discoveries through
// ctx and enumerating devices via enum.
func New(key telem.TaskKey, ctx ports.Context, enum Enumerator) *Task {
	return &Task{key: key, ctx: ctx, enum: enum}
}

func (t *Task) Key() telem.TaskKey { return t.key }

// Start launches the periodic scan loop. Idempotent.
func (t *Task) Start() error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	t.cancel = make(chan struct{})
	t.mu.Unlock()

	t.wg.Add(1)
	go t.loop()
	t.ctx.SetState(ports.StateRecord{Task: t.key, Variant: ports.StateRunning, Details: map[string]any{"running": true}})
	return nil
}

// Stop signals the loop to exit and waits for it to join, which happens
// within one scan interval (spec.md §4.9). Idempotent.
func (t *Task) Stop() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	close(t.cancel)
	t.mu.Unlock()

	t.wg.Wait()
	t.ctx.SetState(ports.StateRecord{Task: t.key, Variant: ports.StateSuccess, Details: map[string]any{"running": false}})
	return nil
}

// Exec dispatches start/stop to the Task's own lifecycle and "scan" to a
// synchronous, immediate scan (spec.md §4.9).
func (t *Task) Exec(cmd task.Command) error {
	switch cmd.Type {
	case task.CommandStart:
		return t.Start()
	case task.CommandStop:
		return t.Stop()
	case CommandScan:
		t.scan(cmd.Key)
		return nil
	case CommandTestConnection:
		t.testConnection(cmd)
		return nil
	default:
		return nil
	}
}

// testConnection probes the location named in cmd.Args without registering
// it among the Task's periodic scan results, mirroring scanner.cpp's
// testConnection: connect, report success or the connect error, and always
// disconnect afterward.
func (t *Task) testConnection(cmd task.Command) {
	location, _ := cmd.Args["location"].(string)
	if location == "" {
		t.ctx.SetState(ports.StateRecord{
			Task:    t.key,
			Key:     cmd.Key,
			Variant: ports.StateError,
			Details: map[string]any{"message": "missing location"},
		})
		return
	}

	dev, err := vendor.Open(vendor.DeviceConfig{Location: location, Timeout: 500 * time.Millisecond})
	if err != nil {
		t.ctx.SetState(ports.StateRecord{
			Task:    t.key,
			Key:     cmd.Key,
			Variant: ports.StateError,
			Details: map[string]any{"message": err.Error()},
		})
		return
	}
	_ = dev.Close()
	t.ctx.SetState(ports.StateRecord{
		Task:    t.key,
		Key:     cmd.Key,
		Variant: ports.StateSuccess,
		Details: map[string]any{"message": "connection successful"},
	})
}

func (t *Task) loop() {
	defer t.wg.Done()
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.cancel:
			return
		case <-ticker.C:
			t.scan(uuid.NewString())
		}
	}
}

// scan runs one enumeration pass and publishes its outcome tagged with
// cmdKey: the requester's key for an explicit "scan" command, or a
// generated scan-run identifier for a periodic tick (SPEC_FULL §B: unique
// scan-run identifiers via google/uuid), so operators can correlate a
// given scan's state record even when nothing asked for it by name.
func (t *Task) scan(cmdKey string) {
	devices, err := t.enum.Enumerate()
	if err != nil {
		t.ctx.SetState(ports.StateRecord{
			Task:    t.key,
			Key:     cmdKey,
			Variant: ports.StateError,
			Details: map[string]any{"error": err.Error()},
		})
		return
	}

	found := make(map[string]any, len(devices))
	for _, d := range devices {
		found[d.Key] = d.Location
	}
	t.ctx.SetState(ports.StateRecord{
		Task:    t.key,
		Key:     cmdKey,
		Variant: ports.StateSuccess,
		Details: map[string]any{"devices": found},
	})
}

var _ task.Task = (*Task)(nil)
