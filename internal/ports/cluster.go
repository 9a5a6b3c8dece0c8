package ports

import (
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Rack is a logical grouping of tasks managed by one driver process
// (spec.md §3, GLOSSARY).
type Rack struct {
	Key  uint32
	Name string
}

// Channel describes one cluster channel as resolved on demand by a task
// (spec.md §3).
type Channel struct {
	Key      telem.ChannelKey
	Name     string
	DataType telem.DataType
	IsIndex  bool
	IndexKey telem.ChannelKey // the index channel carrying this channel's timestamps, if any
}

// Device describes a piece of hardware resolved via the cluster's device
// registry (the opaque "device" key in a task config blob resolves to one).
type Device struct {
	Key      string
	Location string // vendor-specific address (IP, serial path, bus id, ...)
}

// DeclaredTask is the remotely authored, declarative form of a task
// (spec.md §3): a key, a name, a type tag, and an opaque config blob.
type DeclaredTask struct {
	Key    telem.TaskKey
	Rack   uint32
	Name   string
	Type   string
	Config []byte
}

// WriterConfig configures a cluster data-plane Writer opened by an
// Acquisition pipeline (spec.md §4.5).
type WriterConfig struct {
	Channels        []telem.ChannelKey
	EnableAutoCommit bool
	AutoCommitEvery  int // number of writes between automatic commits, if auto-commit is enabled
}

// StreamerConfig configures a cluster data-plane or control-plane Streamer
// (spec.md §4.6, §4.8).
type StreamerConfig struct {
	Channels []telem.ChannelKey
}

// Writer is the cluster data-plane sink a task's Acquisition pipeline writes
// Frames into (spec.md §4.5). Concrete implementations live in
// internal/cluster; the pipeline only depends on this interface.
type Writer interface {
	Write(frame telem.Frame) error
	Commit() error
	Close() error
}

// Streamer is the cluster-hosted read side consumed by a Control pipeline
// (command channels) or the Task Manager (the three control-plane channels).
type Streamer interface {
	Read() (telem.Frame, error)
	// CloseSend closes the send half of the underlying stream, unblocking a
	// concurrent Read with an error (used to cancel the Task Manager's loop;
	// spec.md §5).
	CloseSend() error
	Close() error
}

// ChannelRegistry resolves channel metadata by key, used by task factories to
// validate config blobs and discover index-channel relationships.
type ChannelRegistry interface {
	Retrieve(key telem.ChannelKey) (Channel, error)
	RetrieveByName(name string) (Channel, error)
}

// HardwareRegistry resolves racks, tasks, and devices declared on the
// cluster.
type HardwareRegistry interface {
	RetrieveRack(key uint32) (Rack, error)
	ListTasks(rack uint32) ([]DeclaredTask, error)
	RetrieveTask(rack uint32, key telem.TaskKey) (DeclaredTask, error)
	RetrieveDevice(key string) (Device, error)
}

// TelemTransport opens the streaming primitives the task runtime runs on top
// of.
type TelemTransport interface {
	OpenWriter(cfg WriterConfig) (Writer, error)
	OpenStreamer(cfg StreamerConfig) (Streamer, error)
}

// Client is the cluster's process-wide handle: the external collaborator
// spec.md §1 places out of scope, given here as an interface so the rest of
// the runtime never depends on a concrete transport.
type Client interface {
	Channels() ChannelRegistry
	Hardware() HardwareRegistry
	Telem() TelemTransport
}
