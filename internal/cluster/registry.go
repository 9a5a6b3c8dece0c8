package cluster

import (
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// channelRegistry resolves channel metadata from a JetStream KV bucket
// named "daq-channels", keyed by channel key. Grounded on natsclient's
// GetKeyValueBucket/CreateKeyValueBucket pair: get-or-create, never assume
// the bucket pre-exists.
type channelRegistry struct{ c *Client }

func (r *channelRegistry) bucket() (jetstream.KeyValue, error) {
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	kv, err := r.c.js.KeyValue(ctx, "daq-channels")
	if err == nil {
		return kv, nil
	}
	kv, err = r.c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: "daq-channels"})
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "open daq-channels bucket")
	}
	return kv, nil
}

func (r *channelRegistry) Retrieve(key telem.ChannelKey) (ports.Channel, error) {
	kv, err := r.bucket()
	if err != nil {
		return ports.Channel{}, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	entry, err := kv.Get(ctx, strconv.FormatUint(uint64(key), 10))
	if err != nil {
		return ports.Channel{}, errs.Wrap(errs.Configuration, err, "retrieve channel")
	}
	var ch ports.Channel
	if err := json.Unmarshal(entry.Value(), &ch); err != nil {
		return ports.Channel{}, errs.Wrap(errs.Configuration, err, "decode channel")
	}
	return ch, nil
}

func (r *channelRegistry) RetrieveByName(name string) (ports.Channel, error) {
	kv, err := r.bucket()
	if err != nil {
		return ports.Channel{}, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	keys, err := kv.Keys(ctx)
	if err != nil {
		return ports.Channel{}, errs.Wrap(errs.Unreachable, err, "list channels")
	}
	for _, k := range keys {
		entry, err := kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var ch ports.Channel
		if err := json.Unmarshal(entry.Value(), &ch); err != nil {
			continue
		}
		if ch.Name == name {
			return ch, nil
		}
	}
	return ports.Channel{}, errs.New(errs.Configuration, "channel not found: "+name)
}

// hardwareRegistry resolves racks, tasks, and devices from JetStream KV
// buckets "daq-racks", "daq-tasks", and "daq-devices".
type hardwareRegistry struct{ c *Client }

func (r *hardwareRegistry) bucket(name string) (jetstream.KeyValue, error) {
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	kv, err := r.c.js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	kv, err = r.c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: name})
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "open "+name+" bucket")
	}
	return kv, nil
}

func (r *hardwareRegistry) RetrieveRack(key uint32) (ports.Rack, error) {
	kv, err := r.bucket("daq-racks")
	if err != nil {
		return ports.Rack{}, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	entry, err := kv.Get(ctx, strconv.FormatUint(uint64(key), 10))
	if err != nil {
		return ports.Rack{}, errs.Wrap(errs.Unreachable, err, "retrieve rack")
	}
	var rack ports.Rack
	if err := json.Unmarshal(entry.Value(), &rack); err != nil {
		return ports.Rack{}, errs.Wrap(errs.Configuration, err, "decode rack")
	}
	return rack, nil
}

func (r *hardwareRegistry) ListTasks(rack uint32) ([]ports.DeclaredTask, error) {
	kv, err := r.bucket("daq-tasks")
	if err != nil {
		return nil, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	keys, err := kv.Keys(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "list tasks")
	}
	var tasks []ports.DeclaredTask
	for _, k := range keys {
		entry, err := kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var task ports.DeclaredTask
		if err := json.Unmarshal(entry.Value(), &task); err != nil {
			continue
		}
		if task.Rack == rack {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (r *hardwareRegistry) RetrieveTask(rack uint32, key telem.TaskKey) (ports.DeclaredTask, error) {
	kv, err := r.bucket("daq-tasks")
	if err != nil {
		return ports.DeclaredTask{}, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	entry, err := kv.Get(ctx, strconv.FormatUint(uint64(key), 10))
	if err != nil {
		return ports.DeclaredTask{}, errs.Wrap(errs.Unreachable, err, "retrieve task")
	}
	var task ports.DeclaredTask
	if err := json.Unmarshal(entry.Value(), &task); err != nil {
		return ports.DeclaredTask{}, errs.Wrap(errs.Configuration, err, "decode task")
	}
	return task, nil
}

func (r *hardwareRegistry) RetrieveDevice(key string) (ports.Device, error) {
	kv, err := r.bucket("daq-devices")
	if err != nil {
		return ports.Device{}, err
	}
	ctx, cancel := r.c.ctxWithTimeout()
	defer cancel()
	entry, err := kv.Get(ctx, key)
	if err != nil {
		return ports.Device{}, errs.Wrap(errs.Unreachable, err, "retrieve device")
	}
	var dev ports.Device
	if err := json.Unmarshal(entry.Value(), &dev); err != nil {
		return ports.Device{}, errs.Wrap(errs.Configuration, err, "decode device")
	}
	return dev, nil
}
