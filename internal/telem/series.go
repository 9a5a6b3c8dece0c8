package telem

import "fmt"

// Series is a typed, fixed-capacity column of samples. Exactly one of the
// typed slices is populated, selected by DataType. A Series is moved, not
// copied, as it travels from a Source's read() into a Frame and on to a
// cluster Writer.
type Series struct {
	DataType   DataType
	Timestamps []TimeStamp
	Float32s   []float32
	Float64s   []float64
	Uint8s     []uint8
	Uint64s    []uint64
	Strings    []string
}

// NewTimestampSeries builds an index Series from a slice of timestamps.
func NewTimestampSeries(ts []TimeStamp) Series {
	return Series{DataType: Timestamp, Timestamps: ts}
}

// NewFloat32Series builds a data Series of float32 samples.
func NewFloat32Series(v []float32) Series {
	return Series{DataType: Float32, Float32s: v}
}

// NewFloat64Series builds a data Series of float64 samples.
func NewFloat64Series(v []float64) Series {
	return Series{DataType: Float64, Float64s: v}
}

// NewUint8Series builds a data Series of single-byte samples.
func NewUint8Series(v []uint8) Series {
	return Series{DataType: Uint8, Uint8s: v}
}

// NewUint64Series builds a data Series of uint64 samples.
func NewUint64Series(v []uint64) Series {
	return Series{DataType: Uint64, Uint64s: v}
}

// NewStringSeries builds a data Series of string-encoded JSON samples
// (sy_task_cmd, sy_task_state).
func NewStringSeries(v []string) Series {
	return Series{DataType: String, Strings: v}
}

// Len returns the number of samples held by the Series, regardless of type.
func (s Series) Len() int {
	switch s.DataType {
	case Timestamp:
		return len(s.Timestamps)
	case Float32:
		return len(s.Float32s)
	case Float64:
		return len(s.Float64s)
	case Uint8:
		return len(s.Uint8s)
	case Uint64:
		return len(s.Uint64s)
	case String:
		return len(s.Strings)
	default:
		return 0
	}
}

// Validate returns an error if the Series' DataType tag does not match the
// slice it actually populated (this should never happen from code in this
// module, but callers constructing Series from vendor payloads benefit from
// the check).
func (s Series) Validate() error {
	n := 0
	if len(s.Timestamps) > 0 {
		n++
	}
	if len(s.Float32s) > 0 {
		n++
	}
	if len(s.Float64s) > 0 {
		n++
	}
	if len(s.Uint8s) > 0 {
		n++
	}
	if len(s.Uint64s) > 0 {
		n++
	}
	if len(s.Strings) > 0 {
		n++
	}
	if n > 1 {
		return fmt.Errorf("telem: series populated more than one typed slice")
	}
	return nil
}
