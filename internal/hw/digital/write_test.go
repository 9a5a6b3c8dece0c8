package digital

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aegisedge/daqdriver/internal/telem"
)

func lines() []CmdLineConfig {
	return []CmdLineConfig{
		{Port: 0, Line: 0, CmdChannelKey: 10, StateChannelKey: 20},
		{Port: 0, Line: 1, CmdChannelKey: 11, StateChannelKey: 21},
	}
}

func TestNewWriteChannelKeys(t *testing.T) {
	sink, mirror := NewWrite(WriteConfig{StateRate: 100, StateIndexKey: 99, Lines: lines()})

	assert.ElementsMatch(t, []telem.ChannelKey{10, 11}, sink.CommandChannelKeys())
	assert.ElementsMatch(t, []telem.ChannelKey{20, 21, 99}, sink.StateChannelKeys())
	assert.ElementsMatch(t, []telem.ChannelKey{99, 20, 21}, mirror.ChannelKeys())
}

func TestStateMirrorInitializesToZero(t *testing.T) {
	mirror := NewStateMirror(100, 99, lines())
	mirror.updateState(20, 0) // no-op, just to exercise the path before Read
	f := mirror.snapshot()

	s, ok := f.Get(20)
	assert.True(t, ok)
	assert.Equal(t, []uint8{0}, s.Uint8s)
	s, ok = f.Get(21)
	assert.True(t, ok)
	assert.Equal(t, []uint8{0}, s.Uint8s)
}

func TestUpdateStateWakesPendingRead(t *testing.T) {
	mirror := NewStateMirror(1, 99, lines()) // 1 Hz period, long enough that the test would time out waiting on it

	resultCh := make(chan telem.Frame, 1)
	go func() {
		f, err := mirror.Read()
		assert.NoError(t, err)
		resultCh <- f
	}()

	time.Sleep(20 * time.Millisecond) // let the goroutine block in cond.Wait
	mirror.updateState(20, 1)

	select {
	case f := <-resultCh:
		s, ok := f.Get(20)
		assert.True(t, ok)
		assert.Equal(t, []uint8{1}, s.Uint8s)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Read did not wake on updateState")
	}
}

func TestWriteSinkBuildsCmdIndexByLinePosition(t *testing.T) {
	sink, _ := NewWrite(WriteConfig{StateRate: 100, StateIndexKey: 99, Lines: lines()})
	assert.Equal(t, map[telem.ChannelKey]int{10: 0, 11: 1}, sink.cmdIndex)

	// A channel key not in cfg.Lines must not resolve to any position.
	_, ok := sink.cmdIndex[123]
	assert.False(t, ok)
}
