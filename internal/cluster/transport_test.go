package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/telem"
)

func TestEncodeDecodeFrameRoundTrips(t *testing.T) {
	f := telem.NewFrame(2)
	f.Add(telem.ChannelKey(1), telem.NewFloat64Series([]float64{1.5, 2.5}))
	f.Add(telem.ChannelKey(2), telem.NewUint64Series([]uint64{10, 20}))

	data, err := encodeFrame(f)
	assert.NoError(t, err)

	got, err := decodeFrame(data)
	assert.NoError(t, err)
	assert.Equal(t, 2, got.Len())

	s, ok := got.Get(telem.ChannelKey(1))
	assert.True(t, ok)
	assert.Equal(t, []float64{1.5, 2.5}, s.Float64s)
}

func TestChannelSubjects(t *testing.T) {
	subs := channelSubjects(3, []telem.ChannelKey{1, 2})
	assert.Equal(t, []string{"daq.3.ch.1", "daq.3.ch.2"}, subs)
}
