// Package factory implements the Task Factory (spec.md §4.7,
// §2 component 9): configureTask parses a declared task's config blob,
// resolves channel keys against the cluster, opens the hardware handle,
// and constructs the right Source/Sink pair, grounded on
// original_source/driver/task/manager.cpp's factory->configureTask call
// sites and the per-task-type config parsing in
// original_source/driver/ni/{analog_read,digital_read,digital_write}.cpp.
package factory

import (
	"fmt"
	"time"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/config"
	"github.com/aegisedge/daqdriver/internal/hw/analog"
	"github.com/aegisedge/daqdriver/internal/hw/digital"
	"github.com/aegisedge/daqdriver/internal/hw/opcua"
	"github.com/aegisedge/daqdriver/internal/hw/vendor"
	"github.com/aegisedge/daqdriver/internal/pipeline"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/scanner"
	"github.com/aegisedge/daqdriver/internal/task"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Task-type tags recognized by ConfigureTask (spec.md §4.7's "task-type
// tags"; the NI source dispatches the equivalent decision on a task's
// `type` field read before any type-specific parsing).
const (
	TypeAnalogRead   = "analog_read"
	TypeDigitalRead  = "digital_read"
	TypeDigitalWrite = "digital_write"
	TypeOPCUARead    = "opcua_read"
)

// ScannerTaskKey is the fixed key of the always-running device-discovery
// Task (spec.md §4.8 step 3: "initial tasks the driver always runs"). It is
// chosen far outside the range of remotely declared task keys (which start
// at 1) so it can never collide with one.
const ScannerTaskKey telem.TaskKey = telem.TaskKey(^uint64(0))

// DefaultBreakerConfig is the backoff every factory-built pipeline retries
// its outer loop with. Each pipeline gets its own *breaker.Breaker
// instance (spec.md §9: "one per long-lived loop ... not a process-wide
// singleton"); only this Config is shared.
var DefaultBreakerConfig = breaker.Config{
	Name:         "pipeline",
	BaseInterval: 500 * time.Millisecond,
	MaxRetries:   10,
	Scale:        2,
}

// ConfigureTask parses declared's config blob, resolves its channels and
// device against the cluster, and builds the matching Task. On any failure
// it emits a configuration-error StateRecord via ctx.SetState and returns
// (nil, false), matching the Factory contract (spec.md §4.7).
func ConfigureTask(ctx ports.Context, declared ports.DeclaredTask) (task.Task, bool) {
	switch declared.Type {
	case TypeAnalogRead:
		return configureAnalogRead(ctx, declared)
	case TypeDigitalRead:
		return configureDigitalRead(ctx, declared)
	case TypeDigitalWrite:
		return configureDigitalWrite(ctx, declared)
	case TypeOPCUARead:
		return configureOPCUARead(ctx, declared)
	default:
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("type: unknown task type %q", declared.Type)}))
		return nil, false
	}
}

// ConfigureInitial builds the Tasks this driver always runs, independent
// of remote declaration (spec.md §4.8 step 3): currently just the device
// scanner (spec.md §4.9).
func ConfigureInitial(ctx ports.Context, enum scanner.Enumerator) []task.Task {
	return []task.Task{scanner.New(ScannerTaskKey, ctx, enum)}
}

func configureAnalogRead(ctx ports.Context, declared ports.DeclaredTask) (task.Task, bool) {
	p := config.NewParser(declared.Config)
	sampleRate := config.Required[uint64](p, "sample_rate")
	streamRate := config.Required[uint64](p, "stream_rate")
	deviceKey := config.Required[string](p, "device")
	_ = config.Optional[string](p, "timing_source", "none") // software-paced only; no vendor clock source to bind to (Modbus)

	var indexKey telem.ChannelKey
	var channels []analog.ChannelConfig
	config.Iter(p, "channels", func(_ int, child *config.Parser) {
		port := config.Required[uint16](child, "port")
		chKey := config.Required[telem.ChannelKey](child, "channel")
		typ := config.Optional[string](child, "type", "")
		enabled := config.Optional[bool](child, "enabled", true)
		channels = append(channels, analog.ChannelConfig{Port: port, ChannelKey: chKey, Type: typ, Enabled: enabled})

		if enabled && indexKey == 0 {
			if ch, err := ctx.Client().Channels().Retrieve(chKey); err == nil {
				indexKey = ch.IndexKey
			}
		}
	})

	if !p.Ok() {
		ctx.SetState(task.ConfigError(declared.Key, p.Errors()))
		return nil, false
	}
	if err := validateRates(sampleRate, streamRate); err != nil {
		ctx.SetState(task.ConfigError(declared.Key, []error{err}))
		return nil, false
	}

	dev, err := ctx.Client().Hardware().RetrieveDevice(deviceKey)
	if err != nil {
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("device: %w", err)}))
		return nil, false
	}

	src := analog.New(analog.Config{
		SampleRate:   sampleRate,
		StreamRate:   streamRate,
		Device:       vendor.DeviceConfig{Location: dev.Location},
		IndexChannel: indexKey,
		Channels:     channels,
		Obs:          ctx.Observability(),
	})

	acq := pipeline.NewAcquisition(ctx, ports.WriterConfig{Channels: src.ChannelKeys(), EnableAutoCommit: true}, src, DefaultBreakerConfig)
	built := task.NewBase(declared.Key, ctx, nil, acq)
	ctx.SetState(ports.StateRecord{Task: declared.Key, Variant: ports.StateSuccess})
	return built, true
}

func configureDigitalRead(ctx ports.Context, declared ports.DeclaredTask) (task.Task, bool) {
	p := config.NewParser(declared.Config)
	sampleRate := config.Required[uint64](p, "sample_rate")
	streamRate := config.Required[uint64](p, "stream_rate")
	deviceKey := config.Required[string](p, "device")

	var indexKey telem.ChannelKey
	var lines []digital.LineConfig
	config.Iter(p, "channels", func(_ int, child *config.Parser) {
		port := config.Required[uint16](child, "port")
		line := config.Required[uint16](child, "line")
		chKey := config.Required[telem.ChannelKey](child, "channel")
		lines = append(lines, digital.LineConfig{Port: port, Line: line, ChannelKey: chKey})

		if indexKey == 0 {
			if ch, err := ctx.Client().Channels().Retrieve(chKey); err == nil {
				indexKey = ch.IndexKey
			}
		}
	})

	if !p.Ok() {
		ctx.SetState(task.ConfigError(declared.Key, p.Errors()))
		return nil, false
	}

	dev, err := ctx.Client().Hardware().RetrieveDevice(deviceKey)
	if err != nil {
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("device: %w", err)}))
		return nil, false
	}

	src := digital.NewRead(digital.ReadConfig{
		SampleRate:   sampleRate,
		StreamRate:   streamRate,
		Device:       vendor.DeviceConfig{Location: dev.Location},
		IndexChannel: indexKey,
		Lines:        lines,
		Obs:          ctx.Observability(),
	})

	acq := pipeline.NewAcquisition(ctx, ports.WriterConfig{Channels: src.ChannelKeys(), EnableAutoCommit: true}, src, DefaultBreakerConfig)
	built := task.NewBase(declared.Key, ctx, nil, acq)
	ctx.SetState(ports.StateRecord{Task: declared.Key, Variant: ports.StateSuccess})
	return built, true
}

// configureDigitalWrite wires both directions spec.md §9 describes for an
// output task: a Control pipeline applying commands through the Sink, and
// an Acquisition pipeline publishing the paired state-mirror Source's
// samples, so write acknowledgement and periodic liveness sampling share
// one uniform pipeline shape.
func configureDigitalWrite(ctx ports.Context, declared ports.DeclaredTask) (task.Task, bool) {
	p := config.NewParser(declared.Config)
	stateRate := config.Required[uint64](p, "state_rate")
	deviceKey := config.Required[string](p, "device")

	var lines []digital.CmdLineConfig
	config.Iter(p, "channels", func(_ int, child *config.Parser) {
		port := config.Required[uint16](child, "port")
		line := config.Required[uint16](child, "line")
		cmdCh := config.Required[telem.ChannelKey](child, "cmd_channel")
		stateCh := config.Required[telem.ChannelKey](child, "state_channel")
		lines = append(lines, digital.CmdLineConfig{Port: port, Line: line, CmdChannelKey: cmdCh, StateChannelKey: stateCh})
	})

	if !p.Ok() {
		ctx.SetState(task.ConfigError(declared.Key, p.Errors()))
		return nil, false
	}
	if len(lines) == 0 {
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("channels: at least one line required")}))
		return nil, false
	}

	// digital_write.cpp's getIndexKeys resolves drive_state_index_key from
	// the first state channel's own index relation, not a separate config
	// field.
	firstState, err := ctx.Client().Channels().Retrieve(lines[0].StateChannelKey)
	if err != nil {
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("channels[0].state_channel: %w", err)}))
		return nil, false
	}

	dev, err := ctx.Client().Hardware().RetrieveDevice(deviceKey)
	if err != nil {
		ctx.SetState(task.ConfigError(declared.Key, []error{fmt.Errorf("device: %w", err)}))
		return nil, false
	}

	sink, mirror := digital.NewWrite(digital.WriteConfig{
		StateRate:     stateRate,
		Device:        vendor.DeviceConfig{Location: dev.Location},
		StateIndexKey: firstState.IndexKey,
		Lines:         lines,
	})

	ctrl := pipeline.NewControl(ctx, ports.StreamerConfig{Channels: sink.CommandChannelKeys()}, sink, DefaultBreakerConfig)
	acq := pipeline.NewAcquisition(ctx, ports.WriterConfig{Channels: mirror.ChannelKeys(), EnableAutoCommit: true}, mirror, DefaultBreakerConfig)

	built := task.NewBase(declared.Key, ctx, nil, ctrl, acq)
	ctx.SetState(ports.StateRecord{Task: declared.Key, Variant: ports.StateSuccess})
	return built, true
}

func configureOPCUARead(ctx ports.Context, declared ports.DeclaredTask) (task.Task, bool) {
	p := config.NewParser(declared.Config)
	endpoint := config.Required[string](p, "endpoint")
	username := config.Optional[string](p, "username", "")
	password := config.Optional[string](p, "password", "")
	securityMode := config.Optional[string](p, "security_mode", "")
	securityPolicy := config.Optional[string](p, "security_policy", "")
	publishMs := config.Optional[uint64](p, "publish_interval_ms", 0)

	var nodes []opcua.NodeConfig
	config.Iter(p, "nodes", func(_ int, child *config.Parser) {
		nodeID := config.Required[string](child, "node_id")
		chKey := config.Required[telem.ChannelKey](child, "channel")
		idxKey := config.Required[telem.ChannelKey](child, "index_channel")
		nodes = append(nodes, opcua.NodeConfig{NodeID: nodeID, ChannelKey: chKey, IndexChannel: idxKey})
	})

	if !p.Ok() {
		ctx.SetState(task.ConfigError(declared.Key, p.Errors()))
		return nil, false
	}

	src := opcua.New(opcua.Config{
		Endpoint:        endpoint,
		Username:        username,
		Password:        password,
		SecurityMode:    securityMode,
		SecurityPolicy:  securityPolicy,
		PublishInterval: time.Duration(publishMs) * time.Millisecond,
		Nodes:           nodes,
	})

	acq := pipeline.NewAcquisition(ctx, ports.WriterConfig{Channels: src.ChannelKeys(), EnableAutoCommit: true}, src, DefaultBreakerConfig)
	built := task.NewBase(declared.Key, ctx, nil, acq)
	ctx.SetState(ports.StateRecord{Task: declared.Key, Variant: ports.StateSuccess})
	return built, true
}

// validateRates enforces spec.md §6's "stream_rate ... must divide
// sample_rate" rule (and, implicitly, stream_rate <= sample_rate; spec.md
// §8 scenario S6 names this exact violation).
func validateRates(sampleRate, streamRate uint64) error {
	if streamRate == 0 {
		return fmt.Errorf("stream_rate: must be greater than zero")
	}
	if streamRate > sampleRate {
		return fmt.Errorf("stream_rate: must not exceed sample_rate")
	}
	if sampleRate%streamRate != 0 {
		return fmt.Errorf("stream_rate: must evenly divide sample_rate")
	}
	return nil
}
