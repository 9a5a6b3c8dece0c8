// Package ports holds the narrow capability interfaces the task runtime is
// built against: Source and Sink at the hardware boundary, and Client,
// Writer, and Streamer at the cluster boundary. Concrete implementations
// (internal/hw/..., internal/cluster) satisfy these but the runtime
// (internal/pipeline, internal/task, internal/manager) never imports them
// directly.
package ports

import (
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Source is the pipeline input capability: a hardware-bound reader (analog,
// digital) or a state-mirror. See spec.md §4.3.
type Source interface {
	// ChannelKeys returns the full set of channels this Source produces,
	// index channels included, in Frame column order.
	ChannelKeys() []telem.ChannelKey
	// Start begins production. Idempotent.
	Start() error
	// Stop quiesces the Source and releases its hardware handle. Idempotent;
	// calling Stop twice must return nil the second time without touching
	// hardware again (spec.md §8, property 3).
	Stop() error
	// Read returns the next Frame. It may block until samples are available
	// or until Stop is requested. It never returns a partial Frame: either
	// every Series has the same length, or an error.
	Read() (telem.Frame, error)
}

// Sink is the pipeline output capability: a hardware-bound writer (digital
// output). See spec.md §4.4.
type Sink interface {
	Write(frame telem.Frame) error
	Start() error
	Stop() error
	// CommandChannelKeys returns the channels this Sink accepts commands on,
	// in the order used to build its vendor write buffer.
	CommandChannelKeys() []telem.ChannelKey
	// StateChannelKeys returns the channels whose commanded state this Sink
	// mirrors back, index channel included.
	StateChannelKeys() []telem.ChannelKey
}
