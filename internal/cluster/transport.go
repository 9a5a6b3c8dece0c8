package cluster

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/telem"
)

const streamName = "daq-telem"

// telemTransport opens Writers and Streamers against a single JetStream
// stream spanning every data and control-plane subject, grounded on
// natsclient's PublishToStream/ConsumeStream pair.
type telemTransport struct{ c *Client }

func (t *telemTransport) ensureStream() (jetstream.Stream, error) {
	ctx, cancel := t.c.ctxWithTimeout()
	defer cancel()
	stream, err := t.c.js.Stream(ctx, streamName)
	if err == nil {
		return stream, nil
	}
	stream, err = t.c.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"daq." + strconv.FormatUint(uint64(t.c.cfg.Rack), 10) + ".>"},
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "create telem stream")
	}
	return stream, nil
}

func (t *telemTransport) OpenWriter(cfg ports.WriterConfig) (ports.Writer, error) {
	if _, err := t.ensureStream(); err != nil {
		return nil, err
	}
	return &jsWriter{c: t.c, cfg: cfg}, nil
}

func (t *telemTransport) OpenStreamer(cfg ports.StreamerConfig) (ports.Streamer, error) {
	stream, err := t.ensureStream()
	if err != nil {
		return nil, err
	}
	ctx, cancel := t.c.ctxWithTimeout()
	defer cancel()
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubjects: channelSubjects(t.c.cfg.Rack, cfg.Channels),
	})
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "create streamer consumer")
	}
	msgs, err := consumer.Messages()
	if err != nil {
		return nil, errs.Wrap(errs.Unreachable, err, "open message iterator")
	}
	return &jsStreamer{msgs: msgs}, nil
}

func channelSubjects(rack uint32, channels []telem.ChannelKey) []string {
	subjects := make([]string, len(channels))
	for i, ch := range channels {
		subjects[i] = "daq." + strconv.FormatUint(uint64(rack), 10) + ".ch." + strconv.FormatUint(uint64(ch), 10)
	}
	return subjects
}

// frameWire is the on-the-wire JSON form of a telem.Frame (spec.md §6):
// a map from channel key to one typed series, rather than the two parallel
// slices telem.Frame uses in memory.
type frameWire struct {
	Channels map[string]telem.Series `json:"channels"`
}

func encodeFrame(f telem.Frame) ([]byte, error) {
	w := frameWire{Channels: make(map[string]telem.Series, f.Len())}
	for i := 0; i < f.Len(); i++ {
		w.Channels[strconv.FormatUint(uint64(f.Channels[i]), 10)] = f.Series[i]
	}
	return json.Marshal(w)
}

func decodeFrame(data []byte) (telem.Frame, error) {
	var w frameWire
	if err := json.Unmarshal(data, &w); err != nil {
		return telem.Frame{}, err
	}
	f := telem.NewFrame(len(w.Channels))
	for k, s := range w.Channels {
		var key uint64
		if _, err := fmt.Sscanf(k, "%d", &key); err != nil {
			return telem.Frame{}, err
		}
		f.Add(telem.ChannelKey(key), s)
	}
	return f, nil
}

type jsWriter struct {
	c   *Client
	cfg ports.WriterConfig
}

func (w *jsWriter) Write(frame telem.Frame) error {
	data, err := encodeFrame(frame)
	if err != nil {
		return errs.Wrap(errs.Configuration, err, "encode frame")
	}
	ctx, cancel := w.c.ctxWithTimeout()
	defer cancel()
	for i := 0; i < frame.Len(); i++ {
		subj := "daq." + strconv.FormatUint(uint64(w.c.cfg.Rack), 10) + ".ch." + strconv.FormatUint(uint64(frame.Channels[i]), 10)
		if _, err := w.c.js.Publish(ctx, subj, data); err != nil {
			return errs.Wrap(errs.Unreachable, err, "publish frame")
		}
	}
	return nil
}

func (w *jsWriter) Commit() error { return nil } // JetStream publish is already an ack'd append

func (w *jsWriter) Close() error { return nil }

type jsStreamer struct {
	msgs jetstream.MessagesContext
}

func (s *jsStreamer) Read() (telem.Frame, error) {
	msg, err := s.msgs.Next()
	if err != nil {
		return telem.Frame{}, errs.Wrap(errs.Unreachable, err, "read next message")
	}
	frame, err := decodeFrame(msg.Data())
	if err != nil {
		return telem.Frame{}, errs.Wrap(errs.Configuration, err, "decode frame")
	}
	if err := msg.Ack(); err != nil {
		return telem.Frame{}, errs.Wrap(errs.Unreachable, err, "ack message")
	}
	return frame, nil
}

func (s *jsStreamer) CloseSend() error {
	s.msgs.Stop()
	return nil
}

func (s *jsStreamer) Close() error {
	s.msgs.Stop()
	return nil
}
