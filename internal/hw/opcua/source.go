// Package opcua implements a ports.Source over an OPC UA subscription,
// grounded on internal/adapters/opcua/opcua_collector.go: the same
// gopcua/opcua client/subscription/monitored-item setup, but feeding
// telem.Frame values into a queue.BatchQueue instead of domain.Sample
// values into a channel, so it composes with the same Acquisition pipeline
// every other hardware Source runs under.
package opcua

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/ports"
	"github.com/aegisedge/daqdriver/internal/queue"
	"github.com/aegisedge/daqdriver/internal/telem"
)

// Config captures one OPC UA Source's connection and node set.
type Config struct {
	Endpoint         string
	Username         string
	Password         string
	SecurityMode     string
	SecurityPolicy   string
	ApplicationName  string
	PublishInterval  time.Duration
	SamplingInterval time.Duration
	Nodes            []NodeConfig
	QueueCapacity    int
}

// NodeConfig binds one monitored OPC UA node to a cluster channel pair: the
// data channel carrying its value, and the index channel carrying the
// timestamp the server reported for that value.
type NodeConfig struct {
	NodeID        string
	ChannelKey    telem.ChannelKey
	IndexChannel  telem.ChannelKey
}

func (c *Config) applyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "daqdriver"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = 250 * time.Millisecond
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 64
	}
}

// Source is the OPC UA-backed ports.Source.
type Source struct {
	cfg       Config
	client    *opcua.Client
	sub       *opcua.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	handleMap map[uint32]NodeConfig
	mu        sync.Mutex
	started   bool
	q         *queue.BatchQueue
}

// New builds a Source from cfg, applying the same connection defaults as
// the teacher's opcua.Config.ApplyDefaults.
func New(cfg Config) *Source {
	cfg.applyDefaults()
	return &Source{cfg: cfg, q: queue.NewBatchQueue(cfg.QueueCapacity)}
}

func (s *Source) ChannelKeys() []telem.ChannelKey {
	keys := make([]telem.ChannelKey, 0, len(s.cfg.Nodes)*2)
	for _, n := range s.cfg.Nodes {
		keys = append(keys, n.IndexChannel, n.ChannelKey)
	}
	return keys
}

func (s *Source) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	opts := s.buildClientOptions()

	client, err := opcua.NewClient(s.cfg.Endpoint, opts...)
	if err != nil {
		cancel()
		return errs.Wrap(errs.Unreachable, err, "opcua new client")
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return errs.Wrap(errs.Unreachable, err, "opcua connect")
	}

	notifyCh := make(chan *opcua.PublishNotificationData, len(s.cfg.Nodes)*4)
	sub, err := client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: s.cfg.PublishInterval}, notifyCh)
	if err != nil {
		cancel()
		_ = client.Close(ctx)
		return errs.Wrap(errs.Unreachable, err, "opcua subscribe")
	}

	handleMap := make(map[uint32]NodeConfig, len(s.cfg.Nodes))
	for i, node := range s.cfg.Nodes {
		nodeID, err := ua.ParseNodeID(node.NodeID)
		if err != nil {
			s.cleanup(ctx, cancel, sub, client)
			return errs.Wrap(errs.Configuration, err, fmt.Sprintf("parse node id %q", node.NodeID))
		}
		handle := uint32(i + 1)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(nodeID, ua.AttributeIDValue, handle)
		if s.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(s.cfg.SamplingInterval / time.Millisecond)
		}
		res, err := sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
		if err != nil || len(res.Results) == 0 || res.Results[0].StatusCode != ua.StatusOK {
			s.cleanup(ctx, cancel, sub, client)
			if err == nil {
				err = fmt.Errorf("monitored item not created")
			}
			return errs.Wrap(errs.Unreachable, err, fmt.Sprintf("monitor node %q", node.NodeID))
		}
		handleMap[handle] = node
	}

	s.mu.Lock()
	s.q = queue.NewBatchQueue(s.cfg.QueueCapacity)
	s.client, s.sub, s.cancel, s.handleMap, s.started = client, sub, cancel, handleMap, true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.consume(ctx, notifyCh)
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel, sub, client := s.cancel, s.sub, s.client
	s.started = false
	s.cancel, s.sub, s.client = nil, nil, nil
	s.mu.Unlock()

	cancel()
	ctx, ctxCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer ctxCancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
	s.q.Close()
	s.wg.Wait()
	return nil
}

func (s *Source) Read() (telem.Frame, error) {
	frame, ok := s.q.Dequeue()
	if !ok {
		return telem.Frame{}, errs.New(errs.TemporaryHardware, "opcua source dequeue timed out")
	}
	return frame, nil
}

func (s *Source) consume(ctx context.Context, ch <-chan *opcua.PublishNotificationData) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-ch:
			if notif == nil || notif.Error != nil {
				continue
			}
			s.processNotification(notif.Value)
		}
	}
}

func (s *Source) processNotification(val interface{}) {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return
	}
	for _, item := range data.MonitoredItems {
		node, ok := s.handleMap[item.ClientHandle]
		if !ok {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			continue
		}
		ts := item.Value.ServerTimestamp
		if ts.IsZero() {
			ts = item.Value.SourceTimestamp
		}
		if ts.IsZero() {
			ts = time.Now()
		}

		frame := telem.NewFrame(2)
		frame.Add(node.IndexChannel, telem.NewTimestampSeries([]telem.TimeStamp{telem.TimeStamp(ts.UnixNano())}))
		frame.Add(node.ChannelKey, telem.NewFloat64Series([]float64{fv}))
		s.q.Enqueue(frame)
	}
}

func (s *Source) buildClientOptions() []opcua.Option {
	opts := []opcua.Option{
		opcua.SecurityModeString(normalizeSecurityMode(s.cfg.SecurityMode)),
		opcua.SecurityPolicy(normalizeSecurityPolicy(s.cfg.SecurityPolicy)),
		opcua.ApplicationName(s.cfg.ApplicationName),
		opcua.AutoReconnect(true),
	}
	if s.cfg.Username != "" {
		opts = append(opts, opcua.AuthUsername(s.cfg.Username, s.cfg.Password))
	} else {
		opts = append(opts, opcua.AuthAnonymous())
	}
	return opts
}

func (s *Source) cleanup(ctx context.Context, cancel context.CancelFunc, sub *opcua.Subscription, client *opcua.Client) {
	cancel()
	if sub != nil {
		_ = sub.Cancel(ctx)
	}
	if client != nil {
		_ = client.Close(ctx)
	}
}

func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	switch val := v.Value().(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case int8:
		return float64(val), true
	case uint8:
		return float64(val), true
	case int16:
		return float64(val), true
	case uint16:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

func normalizeSecurityMode(mode string) string {
	switch strings.ToLower(mode) {
	case "sign":
		return "Sign"
	case "signandencrypt", "signencrypt", "sign_and_encrypt", "sign+encrypt":
		return "SignAndEncrypt"
	default:
		return "None"
	}
}

func normalizeSecurityPolicy(policy string) string {
	if policy == "" {
		return "None"
	}
	return policy
}

var _ ports.Source = (*Source)(nil)
