package telem

import "fmt"

// Frame is an ordered pair of parallel vectors: channel keys and the Series
// carrying their samples. Column order matches the Source's channelKeys()
// (or, for a Sink, the order channels were configured). A Frame's ownership
// transfers to whoever receives it from read() or write(); callers must not
// retain a reference to a Frame's Series slices after handing the Frame off.
type Frame struct {
	Channels []ChannelKey
	Series   []Series
}

// NewFrame preallocates a Frame with room for n columns.
func NewFrame(n int) Frame {
	return Frame{
		Channels: make([]ChannelKey, 0, n),
		Series:   make([]Series, 0, n),
	}
}

// Add appends a (channel, series) column to the Frame.
func (f *Frame) Add(key ChannelKey, s Series) {
	f.Channels = append(f.Channels, key)
	f.Series = append(f.Series, s)
}

// Len returns the number of columns in the Frame.
func (f Frame) Len() int { return len(f.Channels) }

// Get returns the Series for the given channel key and whether it was found.
func (f Frame) Get(key ChannelKey) (Series, bool) {
	for i, k := range f.Channels {
		if k == key {
			return f.Series[i], true
		}
	}
	return Series{}, false
}

// Validate enforces invariant (i) from spec.md §3: every Series in the Frame
// must have the same sample count, and the claimed key set must be non-empty
// when the Frame itself is non-empty.
func (f Frame) Validate() error {
	if len(f.Channels) != len(f.Series) {
		return fmt.Errorf("telem: frame has %d channel keys but %d series", len(f.Channels), len(f.Series))
	}
	if len(f.Series) == 0 {
		return nil
	}
	want := f.Series[0].Len()
	for i, s := range f.Series {
		if s.Len() != want {
			return fmt.Errorf("telem: frame series length mismatch: column %d has %d samples, column 0 has %d", i, s.Len(), want)
		}
	}
	return nil
}

// SampleCount returns the shared sample count across all of the Frame's
// series, or 0 for an empty Frame. Callers should call Validate first if they
// need the guarantee that all series agree.
func (f Frame) SampleCount() int {
	if len(f.Series) == 0 {
		return 0
	}
	return f.Series[0].Len()
}
