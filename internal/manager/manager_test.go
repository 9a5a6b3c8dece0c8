package manager

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/factory"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/scanner"
	"github.com/aegisedge/daqdriver/internal/task"
	"github.com/aegisedge/daqdriver/internal/telem"
)

type fakeWriter struct {
	mu      sync.Mutex
	written []telem.Frame
	closed  bool
}

func (w *fakeWriter) Write(f telem.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, f)
	return nil
}
func (w *fakeWriter) Commit() error { return nil }
func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() []telem.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]telem.Frame, len(w.written))
	copy(out, w.written)
	return out
}

type fakeStreamer struct {
	frames chan telem.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeStreamer() *fakeStreamer {
	return &fakeStreamer{frames: make(chan telem.Frame, 16), closed: make(chan struct{})}
}

func (s *fakeStreamer) push(f telem.Frame) { s.frames <- f }

func (s *fakeStreamer) Read() (telem.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.closed:
		return telem.Frame{}, errors.New("fake streamer closed")
	}
}

func (s *fakeStreamer) CloseSend() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStreamer) Close() error { return nil }

type fakeTelem struct {
	writer          *fakeWriter
	streamer        *fakeStreamer
	openWriterErr   error
	openStreamerErr error
}

func (t *fakeTelem) OpenWriter(ports.WriterConfig) (ports.Writer, error) {
	if t.openWriterErr != nil {
		return nil, t.openWriterErr
	}
	return t.writer, nil
}

func (t *fakeTelem) OpenStreamer(ports.StreamerConfig) (ports.Streamer, error) {
	if t.openStreamerErr != nil {
		return nil, t.openStreamerErr
	}
	return t.streamer, nil
}

type fakeChannelRegistry struct {
	byName map[string]ports.Channel
}

func (r *fakeChannelRegistry) Retrieve(key telem.ChannelKey) (ports.Channel, error) {
	for _, c := range r.byName {
		if c.Key == key {
			return c, nil
		}
	}
	return ports.Channel{}, fmt.Errorf("channel %d not found", key)
}

func (r *fakeChannelRegistry) RetrieveByName(name string) (ports.Channel, error) {
	c, ok := r.byName[name]
	if !ok {
		return ports.Channel{}, fmt.Errorf("channel %q not found", name)
	}
	return c, nil
}

type fakeHardwareRegistry struct {
	mu                sync.Mutex
	rack              ports.Rack
	retrieveRackErr   error
	failRackRetrieves int // number of RetrieveRack calls to fail with retrieveRackErr before succeeding
	declared          map[telem.TaskKey]ports.DeclaredTask
	listErr           error
	retrieveTaskCalls int
}

func (h *fakeHardwareRegistry) RetrieveRack(uint32) (ports.Rack, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failRackRetrieves > 0 {
		h.failRackRetrieves--
		return ports.Rack{}, h.retrieveRackErr
	}
	return h.rack, nil
}

func (h *fakeHardwareRegistry) ListTasks(uint32) ([]ports.DeclaredTask, error) {
	if h.listErr != nil {
		return nil, h.listErr
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]ports.DeclaredTask, 0, len(h.declared))
	for _, d := range h.declared {
		out = append(out, d)
	}
	return out, nil
}

func (h *fakeHardwareRegistry) RetrieveTask(_ uint32, key telem.TaskKey) (ports.DeclaredTask, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.retrieveTaskCalls++
	d, ok := h.declared[key]
	if !ok {
		return ports.DeclaredTask{}, fmt.Errorf("task %d not declared", key)
	}
	return d, nil
}

func (h *fakeHardwareRegistry) RetrieveDevice(key string) (ports.Device, error) {
	return ports.Device{}, fmt.Errorf("device %q not found", key)
}

type fakeClient struct {
	channels *fakeChannelRegistry
	hardware *fakeHardwareRegistry
	telem    *fakeTelem
}

func (c *fakeClient) Channels() ports.ChannelRegistry  { return c.channels }
func (c *fakeClient) Hardware() ports.HardwareRegistry { return c.hardware }
func (c *fakeClient) Telem() ports.TelemTransport      { return c.telem }

type fakeObs struct {
	mu     sync.Mutex
	errors []error
}

func (o *fakeObs) LogInfo(string, ...ports.Field) {}
func (o *fakeObs) LogError(_ string, err error, _ ...ports.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errors = append(o.errors, err)
}
func (o *fakeObs) LogCritical(string, error, ...ports.Field) {}
func (o *fakeObs) IncCounter(string, float64)                {}
func (o *fakeObs) ObserveLatency(string, float64)             {}
func (o *fakeObs) SetGauge(string, float64)                   {}

func (o *fakeObs) errCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.errors)
}

type fakeTask struct {
	key     telem.TaskKey
	mu      sync.Mutex
	stopped bool
	lastCmd task.Command
	execErr error
}

func (t *fakeTask) Key() telem.TaskKey { return t.key }
func (t *fakeTask) Start() error       { return nil }
func (t *fakeTask) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}
func (t *fakeTask) Exec(cmd task.Command) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastCmd = cmd
	return t.execErr
}

func (t *fakeTask) wasStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func controlChannels() *fakeChannelRegistry {
	return &fakeChannelRegistry{byName: map[string]ports.Channel{
		task.ChannelTaskSet:    {Key: 1, Name: task.ChannelTaskSet},
		task.ChannelTaskDelete: {Key: 2, Name: task.ChannelTaskDelete},
		task.ChannelTaskCmd:    {Key: 3, Name: task.ChannelTaskCmd},
		task.ChannelTaskState:  {Key: 4, Name: task.ChannelTaskState},
	}}
}

func newTestManager() (*Manager, *fakeHardwareRegistry, *fakeWriter, *fakeStreamer, *fakeObs) {
	hw := &fakeHardwareRegistry{rack: ports.Rack{Key: 1, Name: "rack-1"}, declared: map[telem.TaskKey]ports.DeclaredTask{}}
	writer := &fakeWriter{}
	streamer := newFakeStreamer()
	client := &fakeClient{
		channels: controlChannels(),
		hardware: hw,
		telem:    &fakeTelem{writer: writer, streamer: streamer},
	}
	obs := &fakeObs{}
	m := New(client, obs, 1, &scanner.ModbusEnumerator{}, breaker.Config{BaseInterval: time.Millisecond, MaxRetries: 3, Scale: 1})
	return m, hw, writer, streamer, obs
}

func TestStartRegistersInitialScannerTask(t *testing.T) {
	m, _, _, _, _ := newTestManager()

	assert.NoError(t, m.Start())
	defer m.Stop()

	m.mu.Lock()
	_, ok := m.tasks[factory.ScannerTaskKey]
	m.mu.Unlock()
	assert.True(t, ok)
}

func TestStartOpensTaskStateWriter(t *testing.T) {
	m, _, writer, _, _ := newTestManager()

	assert.NoError(t, m.Start())
	defer m.Stop()

	m.dropExisting(factory.ScannerTaskKey) // publishes a StateRecord, exercising the writer
	assert.Eventually(t, func() bool { return len(writer.snapshot()) > 0 }, time.Second, time.Millisecond)
}

func TestStopClosesStateWriterAndJoinsRunLoop(t *testing.T) {
	m, _, writer, _, _ := newTestManager()

	assert.NoError(t, m.Start())
	assert.NoError(t, m.Stop())
	assert.NoError(t, m.Stop()) // idempotent

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.True(t, writer.closed)
}

func TestProcessTaskSetDropsExistingBeforeReplacing(t *testing.T) {
	m, hw, _, _, _ := newTestManager()
	assert.NoError(t, m.Start())
	defer m.Stop()

	old := &fakeTask{key: telem.TaskKey(7)}
	m.mu.Lock()
	m.tasks[telem.TaskKey(7)] = old
	m.mu.Unlock()

	// No declared task registered for key 7, so RetrieveTask fails and no
	// replacement is installed -- this still exercises the atomic-drop half.
	hw.mu.Lock()
	delete(hw.declared, telem.TaskKey(7))
	hw.mu.Unlock()

	m.processTaskSet(telem.NewUint64Series([]uint64{7}))

	assert.True(t, old.wasStopped())
	m.mu.Lock()
	_, stillThere := m.tasks[telem.TaskKey(7)]
	m.mu.Unlock()
	assert.False(t, stillThere)
}

func TestProcessTaskDeletePublishesDeletedState(t *testing.T) {
	m, _, writer, _, _ := newTestManager()
	assert.NoError(t, m.Start())
	defer m.Stop()

	victim := &fakeTask{key: telem.TaskKey(9)}
	m.mu.Lock()
	m.tasks[telem.TaskKey(9)] = victim
	m.mu.Unlock()

	m.processTaskDelete(telem.NewUint64Series([]uint64{9}))

	assert.True(t, victim.wasStopped())
	assert.Eventually(t, func() bool { return len(writer.snapshot()) > 0 }, time.Second, time.Millisecond)
}

func TestProcessTaskCmdDispatchesToTargetTask(t *testing.T) {
	m, _, _, _, obs := newTestManager()
	assert.NoError(t, m.Start())
	defer m.Stop()

	target := &fakeTask{key: telem.TaskKey(5)}
	m.mu.Lock()
	m.tasks[telem.TaskKey(5)] = target
	m.mu.Unlock()

	cmd := `{"task":5,"type":"start","key":"req-1"}`
	m.processTaskCmd(telem.NewStringSeries([]string{cmd}))

	assert.Equal(t, telem.TaskKey(5), target.lastCmd.Task)
	assert.Equal(t, task.CommandStart, target.lastCmd.Type)
	assert.Equal(t, 0, obs.errCount())
}

func TestProcessTaskCmdLogsErrorForUnknownTask(t *testing.T) {
	m, _, _, _, obs := newTestManager()
	assert.NoError(t, m.Start())
	defer m.Stop()

	cmd := `{"task":999,"type":"start"}`
	m.processTaskCmd(telem.NewStringSeries([]string{cmd}))

	assert.Equal(t, 1, obs.errCount())
}

func TestRunGuardedReconciliationViaStreamer(t *testing.T) {
	m, hw, _, streamer, _ := newTestManager()
	hw.mu.Lock()
	hw.declared[telem.TaskKey(42)] = ports.DeclaredTask{Key: telem.TaskKey(42), Rack: 1, Type: "unsupported_type"}
	hw.mu.Unlock()

	assert.NoError(t, m.Start())
	defer m.Stop()

	setChannel, _ := m.ctx.Client().Channels().RetrieveByName(task.ChannelTaskSet)
	f := telem.NewFrame(1)
	f.Add(setChannel.Key, telem.NewUint64Series([]uint64{42}))
	streamer.push(f)

	assert.Eventually(t, func() bool {
		hw.mu.Lock()
		defer hw.mu.Unlock()
		return hw.retrieveTaskCalls > 0
	}, time.Second, time.Millisecond)

	// An unsupported type never builds a runtime Task, so it is dropped-only.
	m.mu.Lock()
	_, ok := m.tasks[telem.TaskKey(42)]
	m.mu.Unlock()
	assert.False(t, ok)
}

func TestStartRetriesSetupOnUnreachableError(t *testing.T) {
	m, hw, _, _, _ := newTestManager()
	hw.mu.Lock()
	hw.failRackRetrieves = 1
	hw.retrieveRackErr = errs.New(errs.Unreachable, "rack service unreachable")
	hw.mu.Unlock()

	assert.NoError(t, m.Start())
	defer m.Stop()
}

func TestStartFailsWithoutRetryOnConfigurationError(t *testing.T) {
	m, hw, _, _, _ := newTestManager()
	hw.mu.Lock()
	hw.failRackRetrieves = 1
	hw.retrieveRackErr = errs.New(errs.Configuration, "rack not found")
	hw.mu.Unlock()

	assert.Error(t, m.Start())
}
