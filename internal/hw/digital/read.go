// Package digital implements the digital-read ports.Source and the
// digital-write ports.Sink plus its state-mirror ports.Source (spec.md
// §4.3, §4.4), grounded on original_source/driver/ni/digital_read.cpp and
// digital_write.cpp. Digital reads differ from analog only in sample width
// (one coil bit per sample, UINT8-packed); both read
// floor(sample_rate/stream_rate) samples per channel per vendor call.
package digital

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

// LineConfig is one configured digital-input line.
type LineConfig struct {
	Port       uint16
	Line       uint16
	ChannelKey telem.ChannelKey
}

func (l LineConfig) address() uint16 { return l.Port*100 + l.Line }

// ReadConfig is the parsed digital-read task config.
type ReadConfig struct {
	SampleRate    uint64
	StreamRate    uint64
	Device        vendor.DeviceConfig
	IndexChannel  telem.ChannelKey
	Lines         []LineConfig
	QueueCapacity int
	Obs           ports.Observability
}

type readBatch struct {
	data []bool
	t0   telem.TimeStamp
	tf   telem.TimeStamp
	n    int
}

// ReadSource is the digital-read ports.Source.
type ReadSource struct {
	cfg ReadConfig
	dev *vendor.Device
	q   *queue.BatchQueue
	n   int

	mu      sync.Mutex
	running bool
	cancel  chan struct{}
	wg      sync.WaitGroup

	notOk   bool
	lastErr error
}

// NewRead builds a digital-read Source reading n = floor(SampleRate /
// StreamRate) samples per line per vendor call. n falls back to 1 when
// StreamRate is zero or exceeds SampleRate.
func NewRead(cfg ReadConfig) *ReadSource {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 16
	}
	n := 1
	if cfg.StreamRate > 0 {
		if v := int(cfg.SampleRate / cfg.StreamRate); v > 0 {
			n = v
		}
	}
	return &ReadSource{cfg: cfg, q: queue.NewBatchQueue(cfg.QueueCapacity), n: n}
}

func (s *ReadSource) ChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, 0, len(s.cfg.Lines)+1)
	keys = append(keys, s.cfg.IndexChannel)
	for _, l := range s.cfg.Lines {
		keys = append(keys, l.ChannelKey)
	}
	return keys
}

func (s *ReadSource) Start() error {
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
	s.dev, s.running, s.cancel = dev, true, make(chan struct{})
	s.notOk, s.lastErr = false, nil
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acquire()
	return nil
}

func (s *ReadSource) Stop() error {
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

// acquire mirrors analog.Source.acquire: when every configured line
// errors on the same read, it logs, marks the Source not-ok, and stops
// instead of spinning on a permanent vendor fault (spec.md §4.3, §7).
func (s *ReadSource) acquire() {
	defer s.wg.Done()
	for {
		select {
		case <-s.cancel:
			return
		default:
		}

		t0 := telem.Now()
		data := make([]bool, 0, len(s.cfg.Lines)*s.n)
		var lastErr error
		failures := 0
		for _, line := range s.cfg.Lines {
			vals, err := s.dev.ReadDigitalInputs(line.address(), uint16(s.n))
			if err != nil {
				lastErr = err
				failures++
				continue
			}
			data = append(data, vals...)
		}
		tf := telem.Now()

		if len(s.cfg.Lines) > 0 && failures == len(s.cfg.Lines) {
			s.markNotOk(lastErr)
			return
		}

		frame, err := s.frameFromBatch(readBatch{data: data, t0: t0, tf: tf, n: s.n})
		if err != nil {
			continue
		}
		s.q.Enqueue(frame)
		if s.cfg.Obs != nil {
			s.cfg.Obs.SetGauge(observability.MetricQueueLength, float64(s.q.Len()))
		}
	}
}

func (s *ReadSource) markNotOk(err error) {
	s.mu.Lock()
	s.notOk = true
	s.lastErr = err
	s.mu.Unlock()
	if s.cfg.Obs != nil {
		s.cfg.Obs.LogError("[ni.reader] digital source vendor read failing on every line, marking not-ok", err)
	}
}

func (s *ReadSource) Read() (telem.Frame, error) {
	frame, ok := s.q.Dequeue()
	if ok {
		return frame, nil
	}

	s.mu.Lock()
	notOk, lastErr := s.notOk, s.lastErr
	s.mu.Unlock()
	if notOk {
		return telem.Frame{}, errs.Wrap(errs.CriticalHardware, lastErr, "digital source vendor read failing on every line")
	}
	return telem.Frame{}, errs.New(errs.TemporaryHardware, "digital source dequeue timed out")
}

func (s *ReadSource) frameFromBatch(b readBatch) (telem.Frame, error) {
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

	f := telem.NewFrame(len(s.cfg.Lines) + 1)
	f.Add(s.cfg.IndexChannel, telem.NewTimestampSeries(ts))
	for i, line := range s.cfg.Lines {
		lane := make([]uint8, n)
		for j := 0; j < n; j++ {
			idx := i*n + j
			if idx < len(b.data) && b.data[idx] {
				lane[j] = 1
			}
		}
		f.Add(line.ChannelKey, telem.NewUint8Series(lane))
	}
	return f, nil
}

var _ ports.Source = (*ReadSource)(nil)
