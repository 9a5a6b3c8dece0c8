// Package analog implements the analog-read ports.Source (spec.md §4.3):
// an acquirer goroutine that repeatedly pulls N = sample_rate/stream_rate
// samples per channel from the vendor binding, back to back with no timer
// of its own (it is paced only by the vendor call and the bounded queue),
// turns each batch into a Frame with a linearly interpolated timestamp
// index, and hands it to the queue; Read dequeues those Frames. Grounded
// directly on
// original_source/driver/ni/analog_read.cpp's acquireData/read pair; the
// dozens of ai_* channel-type variants that file dispatches parseChannel
// over are out of scope (spec.md §1) and collapse here to one opaque Type
// string forwarded to the vendor binding unexamined.
package analog

import (
	"sync"
	"time"

	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/hw/vendor"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/queue"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// ChannelConfig is one configured analog-input channel.
type ChannelConfig struct {
	Port       uint16
	ChannelKey telem.ChannelKey
	Type       string // opaque vendor channel-type tag (ai_voltage, ai_rtd, ...)
	Enabled    bool
}

// Config is the parsed analog-read task config (spec.md §6).
type Config struct {
	SampleRate    uint64
	StreamRate    uint64
	Device        vendor.DeviceConfig
	IndexChannel  telem.ChannelKey
	Channels      []ChannelConfig
	QueueCapacity int
	Obs           ports.Observability
}

// batch is the acquirer's unit of work, mirroring analog_read.cpp's
// DataPacket: a flat vendor payload plus the wall-clock bracket around the
// blocking vendor read.
type batch struct {
	data []uint16
	t0   telem.TimeStamp
	tf   telem.TimeStamp
	n    int
}

// Source is the analog-read ports.Source.
type Source struct {
	cfg Config
	dev *vendor.Device
	q   *queue.BatchQueue

	n int // samples per channel per read, floor(sample_rate/stream_rate)

	mu      sync.Mutex
	running bool
	cancel  chan struct{}
	wg      sync.WaitGroup

	notOk   bool
	lastErr error
}

// New builds a Source from cfg; it does not open the vendor device until
// Start.
func New(cfg Config) *Source {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 16
	}
	return &Source{cfg: cfg, q: queue.NewBatchQueue(cfg.QueueCapacity), n: int(cfg.SampleRate / cfg.StreamRate)}
}

func (s *Source) ChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, 0, len(s.cfg.Channels)+1)
	keys = append(keys, s.cfg.IndexChannel)
	for _, ch := range s.cfg.Channels {
		if ch.Enabled {
			keys = append(keys, ch.ChannelKey)
		}
	}
	return keys
}

func (s *Source) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	dev, err := vendor.Open(s.cfg.Device)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.q = queue.NewBatchQueue(s.cfg.QueueCapacity)
	s.dev = dev
	s.running = true
	s.cancel = make(chan struct{})
	s.notOk = false
	s.lastErr = nil
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acquire()
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.cancel)
	dev := s.dev
	s.dev = nil
	s.mu.Unlock()

	s.q.Close()
	s.wg.Wait()
	if dev != nil {
		return dev.Close()
	}
	return nil
}

// acquire is the acquirer goroutine (analog_read.cpp's acquireData): it
// requests exactly n samples per enabled channel from the vendor binding,
// brackets the call with t0/tf, and enqueues the batch. Hardware pacing
// couples to downstream capacity because Enqueue blocks once the queue is
// full (spec.md §4.5). When every enabled channel errors on the same read
// (the device is gone, not just one noisy channel), the acquirer logs it,
// marks the Source not-ok, and stops: Read will surface it as a critical
// error instead of spinning on a vendor fault that cannot self-heal
// (spec.md §4.3, §7).
func (s *Source) acquire() {
	defer s.wg.Done()
	enabled := s.enabledChannels()

	for {
		select {
		case <-s.cancel:
			return
		default:
		}

		t0 := telem.Now()
		data := make([]uint16, 0, len(enabled)*s.n)
		var lastErr error
		failures := 0
		for _, ch := range enabled {
			vals, err := s.dev.ReadAnalogInputs(ch.Port, uint16(s.n))
			if err != nil {
				lastErr = err
				failures++
				continue
			}
			data = append(data, vals...)
		}
		tf := telem.Now()

		if len(enabled) > 0 && failures == len(enabled) {
			s.markNotOk(lastErr)
			return
		}

		frame, err := s.frameFromBatch(batch{data: data, t0: t0, tf: tf, n: s.n}, enabled)
		if err != nil {
			continue
		}
		s.q.Enqueue(frame)
		if s.cfg.Obs != nil {
			s.cfg.Obs.SetGauge(observability.MetricQueueLength, float64(s.q.Len()))
		}
	}
}

// markNotOk records a permanent vendor read fault so Read reports it as
// errs.CriticalHardware once the queue drains, instead of an indefinite
// TemporaryHardware stall.
func (s *Source) markNotOk(err error) {
	s.mu.Lock()
	s.notOk = true
	s.lastErr = err
	s.mu.Unlock()
	if s.cfg.Obs != nil {
		s.cfg.Obs.LogError("[ni.reader] analog source vendor read failing on every channel, marking not-ok", err)
	}
}

func (s *Source) enabledChannels() []ChannelConfig {
	var out []ChannelConfig
	for _, ch := range s.cfg.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// Read dequeues one Frame that the acquirer already built with
// frameFromBatch (spec.md §4.3), including its interpolated index Series.
// On a dequeue timeout it returns a TemporaryHardware error, or a
// CriticalHardware error once the acquirer has marked the Source not-ok.
func (s *Source) Read() (telem.Frame, error) {
	raw, ok := s.q.Dequeue()
	if ok {
		return raw, nil
	}

	s.mu.Lock()
	notOk, lastErr := s.notOk, s.lastErr
	s.mu.Unlock()
	if notOk {
		return telem.Frame{}, errs.Wrap(errs.CriticalHardware, lastErr, "analog source vendor read failing on every channel")
	}
	return telem.Frame{}, errs.New(errs.TemporaryHardware, "analog source dequeue timed out")
}

// frameFromBatch synthesises the index Series by linear interpolation
// between t0 and tf: ts[i] = t0 + i*((tf-t0)/n); when tf == t0 every
// timestamp equals t0. It is called from the acquirer goroutine (unlike
// analog_read.cpp, which interpolates inside read() after dequeuing; this
// repo does it before enqueuing, since the Go queue moves Frames, not raw
// vendor buffers, to keep the queue's element type uniform across Sources).
func (s *Source) frameFromBatch(b batch, enabled []ChannelConfig) (telem.Frame, error) {
	n := b.n
	if n <= 0 {
		return telem.Frame{}, errs.New(errs.TemporaryHardware, "zero samples per channel")
	}

	ts := make([]telem.TimeStamp, n)
	var incr time.Duration
	if b.tf > b.t0 {
		incr = b.t0.Span(b.tf) / time.Duration(n)
	}
	for i := 0; i < n; i++ {
		ts[i] = telem.TimeStamp(int64(b.t0) + int64(incr)*int64(i))
	}

	f := telem.NewFrame(len(enabled) + 1)
	f.Add(s.cfg.IndexChannel, telem.NewTimestampSeries(ts))

	for i, ch := range enabled {
		lane := make([]float32, n)
		for j := 0; j < n; j++ {
			idx := i*n + j
			if idx < len(b.data) {
				lane[j] = float32(b.data[idx])
			}
		}
		f.Add(ch.ChannelKey, telem.NewFloat32Series(lane))
	}
	return f, nil
}

var _ ports.Source = (*Source)(nil)
