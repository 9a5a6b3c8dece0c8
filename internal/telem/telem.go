// Package telem holds the value types exchanged at the boundary between the
// task runtime and the cluster: channels, series, frames, and timestamps.
package telem

import "time"

// ChannelKey uniquely identifies a channel on the cluster.
type ChannelKey uint32

// TaskKey uniquely identifies a declarative task.
type TaskKey uint64

// TimeStamp is a nanosecond-precision Unix timestamp.
type TimeStamp int64

// Now returns the current time as a TimeStamp.
func Now() TimeStamp { return TimeStamp(time.Now().UnixNano()) }

// Span returns the duration between two TimeStamps.
func (t TimeStamp) Span(other TimeStamp) time.Duration {
	return time.Duration(other - t)
}

// DataType tags the underlying Go type held by a Series.
type DataType uint8

const (
	// Unknown is the zero value; a Series should never carry it.
	Unknown DataType = iota
	// Timestamp marks an index Series of nanosecond timestamps.
	Timestamp
	// Float32 marks a Series of float32 samples (e.g. scaled analog input).
	Float32
	// Float64 marks a Series of float64 samples.
	Float64
	// Uint8 marks a Series of single-byte samples (e.g. digital line state).
	Uint8
	// Uint64 marks a Series of uint64 samples (e.g. task keys on sy_task_set).
	Uint64
	// String marks a Series of string-encoded JSON samples (e.g. sy_task_cmd,
	// sy_task_state; spec.md §6).
	String
)

// String returns a human-readable name for the data type.
func (d DataType) String() string {
	switch d {
	case Timestamp:
		return "timestamp"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Uint8:
		return "uint8"
	case Uint64:
		return "uint64"
	case String:
		return "string"
	default:
		return "unknown"
	}
}
