package digital

import (
	"sync"
	"time"

	"github.com/aegisedge/daqdriver/internal/hw/vendor"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// CmdLineConfig binds one command channel to the output line it drives and
// the state channel its commanded value mirrors back to (spec.md §6:
// cmd_channel / state_channel per line).
type CmdLineConfig struct {
	Port            uint16
	Line            uint16
	CmdChannelKey   telem.ChannelKey
	StateChannelKey telem.ChannelKey
}

func (l CmdLineConfig) address() uint16 { return l.Port*100 + l.Line }

// WriteConfig is the parsed digital-write task config.
type WriteConfig struct {
	StateRate       uint64
	Device          vendor.DeviceConfig
	StateIndexKey   telem.ChannelKey
	Lines           []CmdLineConfig
}

// WriteSink is the digital-write ports.Sink, grounded on
// DigitalWriteSink::write/formatData: it resolves each incoming command
// column to its pre-configured line position, writes the coil, and queues
// the (stateChannelKey, value) pair for the StateMirror.
type WriteSink struct {
	cfg   WriteConfig
	dev   *vendor.Device
	state *StateMirror

	cmdIndex map[telem.ChannelKey]int // cmd channel key -> position in cfg.Lines
}

// NewWrite builds a WriteSink and its paired StateMirror Source. Callers
// register the StateMirror as the Acquisition pipeline's Source for this
// task (spec.md §9: "state-mirror as a Source").
func NewWrite(cfg WriteConfig) (*WriteSink, *StateMirror) {
	idx := make(map[telem.ChannelKey]int, len(cfg.Lines))
	for i, l := range cfg.Lines {
		idx[l.CmdChannelKey] = i
	}
	mirror := NewStateMirror(cfg.StateRate, cfg.StateIndexKey, cfg.Lines)
	return &WriteSink{cfg: cfg, cmdIndex: idx, state: mirror}, mirror
}

func (s *WriteSink) CommandChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, len(s.cfg.Lines))
	for i, l := range s.cfg.Lines {
		keys[i] = l.CmdChannelKey
	}
	return keys
}

func (s *WriteSink) StateChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, 0, len(s.cfg.Lines)+1)
	for _, l := range s.cfg.Lines {
		keys = append(keys, l.StateChannelKey)
	}
	return append(keys, s.cfg.StateIndexKey)
}

func (s *WriteSink) Start() error {
	dev, err := vendor.Open(s.cfg.Device)
	if err != nil {
		return err
	}
	s.dev = dev
	return nil
}

func (s *WriteSink) Stop() error {
	if s.dev == nil {
		return nil
	}
	dev := s.dev
	s.dev = nil
	return dev.Close()
}

// Write applies one command Frame as a single atomic batch (spec.md §4.6):
// for each column that names a configured command channel, it writes the
// coil and records the (stateChannelKey, value) pair, then signals the
// StateMirror once every line in the Frame has been applied.
func (s *WriteSink) Write(frame telem.Frame) error {
	type update struct {
		key   telem.ChannelKey
		value uint8
	}
	var updates []update

	for i, key := range frame.Channels {
		pos, ok := s.cmdIndex[key]
		if !ok {
			continue
		}
		series := frame.Series[i]
		if series.Len() == 0 {
			continue
		}
		v := series.Uint8s[0]
		line := s.cfg.Lines[pos]
		if err := s.dev.WriteDigitalOutput(line.address(), v != 0); err != nil {
			return err
		}
		updates = append(updates, update{key: line.StateChannelKey, value: v})
	}

	if len(updates) == 0 {
		return nil
	}
	m := s.state
	m.mu.Lock()
	for _, u := range updates {
		m.state[u.key] = u.value
	}
	m.woken = true
	m.cond.Broadcast()
	m.mu.Unlock()
	return nil
}

// StateMirror is the ports.Source that shadows a WriteSink's commanded
// output values (spec.md §4.3 "state-mirror Source"). Its condition
// variable is signalled both by the periodic ticker and by every
// WriteSink.Write call, so a state sample follows a command promptly
// instead of waiting for the next tick.
type StateMirror struct {
	period time.Duration
	index  telem.ChannelKey
	order  []telem.ChannelKey // state channel keys, in configured line order

	mu    sync.Mutex
	cond  *sync.Cond
	state map[telem.ChannelKey]uint8
	woken bool
}

// NewStateMirror builds a StateMirror over lines, every state value
// starting at logic-low (spec.md: "initialize all states to 0"). order
// keeps ChannelKeys and snapshot in the lines' configured order instead of
// Go's randomized map iteration order, matching the deterministic
// index-then-channels column order the analog/digital read Sources use.
func NewStateMirror(stateRate uint64, indexKey telem.ChannelKey, lines []CmdLineConfig) *StateMirror {
	order := make([]telem.ChannelKey, len(lines))
	for i, l := range lines {
		order[i] = l.StateChannelKey
	}
	m := &StateMirror{period: ratePeriod(stateRate), index: indexKey, order: order, state: make(map[telem.ChannelKey]uint8, len(lines))}
	m.cond = sync.NewCond(&m.mu)
	for _, l := range lines {
		m.state[l.StateChannelKey] = 0
	}
	return m
}

func ratePeriod(rate uint64) time.Duration {
	if rate == 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / float64(rate))
}

func (m *StateMirror) ChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, 0, len(m.order)+1)
	keys = append(keys, m.index)
	keys = append(keys, m.order...)
	return keys
}

func (m *StateMirror) Start() error { return nil }
func (m *StateMirror) Stop() error  { return nil }

// Read waits on the condition variable with a timeout of one state period,
// then snapshots the state map into a one-sample Frame (spec.md §4.3).
func (m *StateMirror) Read() (telem.Frame, error) {
	m.mu.Lock()
	if !m.woken {
		timer := time.AfterFunc(m.period, func() {
			m.mu.Lock()
			m.woken = true
			m.cond.Broadcast()
			m.mu.Unlock()
		})
		m.cond.Wait()
		timer.Stop()
	}
	m.woken = false
	frame := m.snapshot()
	m.mu.Unlock()
	return frame, nil
}

func (m *StateMirror) snapshot() telem.Frame {
	f := telem.NewFrame(len(m.order) + 1)
	f.Add(m.index, telem.NewTimestampSeries([]telem.TimeStamp{telem.Now()}))
	for _, k := range m.order {
		f.Add(k, telem.NewUint8Series([]uint8{m.state[k]}))
	}
	return f
}

// updateState installs one (channelKey, value) pair and wakes any pending
// Read.
func (m *StateMirror) updateState(key telem.ChannelKey, value uint8) {
	m.mu.Lock()
	m.state[key] = value
	m.woken = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

var (
	_ ports.Sink   = (*WriteSink)(nil)
	_ ports.Source = (*StateMirror)(nil)
)
