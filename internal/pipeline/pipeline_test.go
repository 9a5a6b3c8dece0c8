package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

type fakeSource struct {
	mu      sync.Mutex
	frames  []telem.Frame
	started bool
	i       int
}

func (s *fakeSource) ChannelKeys() []telem.ChannelKey { return []telem.ChannelKey{1} }
func (s *fakeSource) Start() error                    { s.started = true; return nil }
func (s *fakeSource) Stop() error                     { s.started = false; return nil }
func (s *fakeSource) Read() (telem.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.frames) {
		time.Sleep(5 * time.Millisecond)
		return telem.Frame{}, errs.New(errs.TemporaryHardware, "no data")
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	written []telem.Frame
	commits int
}

func (w *fakeWriter) Write(f telem.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, f)
	return nil
}
func (w *fakeWriter) Commit() error { w.commits++; return nil }
func (w *fakeWriter) Close() error  { return nil }

type fakeTelem struct {
	writer *fakeWriter
}

func (t *fakeTelem) OpenWriter(ports.WriterConfig) (ports.Writer, error) { return t.writer, nil }
func (t *fakeTelem) OpenStreamer(ports.StreamerConfig) (ports.Streamer, error) {
	return nil, nil
}

type fakeClient struct{ telem *fakeTelem }

func (c *fakeClient) Channels() ports.ChannelRegistry   { return nil }
func (c *fakeClient) Hardware() ports.HardwareRegistry  { return nil }
func (c *fakeClient) Telem() ports.TelemTransport       { return c.telem }

type fakeContext struct {
	client ports.Client
	states []ports.StateRecord
	obs    ports.Observability
}

func (c *fakeContext) Client() ports.Client { return c.client }
func (c *fakeContext) SetState(rec ports.StateRecord) {
	c.states = append(c.states, rec)
}
func (c *fakeContext) Observability() ports.Observability {
	if c.obs == nil {
		c.obs = observability.NewPromObs()
	}
	return c.obs
}

func frame(n int) telem.Frame {
	f := telem.NewFrame(1)
	f.Add(telem.ChannelKey(1), telem.NewUint64Series([]uint64{uint64(n)}))
	return f
}

func TestAcquisitionWritesReadFrames(t *testing.T) {
	src := &fakeSource{frames: []telem.Frame{frame(1), frame(2)}}
	writer := &fakeWriter{}
	ctx := &fakeContext{client: &fakeClient{telem: &fakeTelem{writer: writer}}}

	a := NewAcquisition(ctx, ports.WriterConfig{Channels: []telem.ChannelKey{1}}, src, breaker.Config{BaseInterval: time.Millisecond, MaxRetries: 3, Scale: 1})
	assert.NoError(t, a.Start())
	time.Sleep(30 * time.Millisecond)
	assert.NoError(t, a.Stop())

	writer.mu.Lock()
	defer writer.mu.Unlock()
	assert.GreaterOrEqual(t, len(writer.written), 2)
	assert.True(t, src.started == false)
}
