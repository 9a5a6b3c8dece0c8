package analog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/telem"
)

func TestFrameFromBatchInterpolatesTimestamps(t *testing.T) {
	s := &Source{cfg: Config{IndexChannel: 99}}
	b := batch{
		data: []uint16{10, 20, 30, 40},
		t0:   telem.TimeStamp(1000),
		tf:   telem.TimeStamp(1000 + 4000),
		n:    4,
	}
	enabled := []ChannelConfig{{ChannelKey: 1, Enabled: true}}

	f, err := s.frameFromBatch(b, enabled)
	assert.NoError(t, err)
	assert.NoError(t, f.Validate())

	idx, ok := f.Get(99)
	assert.True(t, ok)
	assert.Equal(t, []telem.TimeStamp{1000, 2000, 3000, 4000}, idx.Timestamps)

	data, ok := f.Get(1)
	assert.True(t, ok)
	assert.Equal(t, []float32{10, 20, 30, 40}, data.Float32s)
}

func TestFrameFromBatchTieBreakWhenTfEqualsT0(t *testing.T) {
	s := &Source{cfg: Config{IndexChannel: 99}}
	b := batch{data: []uint16{1, 2}, t0: telem.TimeStamp(500), tf: telem.TimeStamp(500), n: 2}

	f, err := s.frameFromBatch(b, []ChannelConfig{{ChannelKey: 1, Enabled: true}})
	assert.NoError(t, err)

	idx, _ := f.Get(99)
	assert.Equal(t, []telem.TimeStamp{500, 500}, idx.Timestamps)
}

func TestChannelKeysIncludesOnlyEnabledAndIndex(t *testing.T) {
	s := New(Config{
		SampleRate:   1000,
		StreamRate:   100,
		IndexChannel: 1,
		Channels: []ChannelConfig{
			{ChannelKey: 2, Enabled: true},
			{ChannelKey: 3, Enabled: false},
		},
	})
	assert.Equal(t, []telem.ChannelKey{1, 2}, s.ChannelKeys())
}
