package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
)

// Control runs the receive-from-Streamer, apply-to-Sink loop (spec.md
// §4.6). Every Frame it receives is applied as one atomic command batch;
// there is no ordering guarantee across channels within a Frame beyond
// column order.
type Control struct {
	ctx  ports.Context
	cfg  ports.StreamerConfig
	sink ports.Sink
	brk  *breaker.Breaker

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
	mu      sync.Mutex
}

// NewControl builds a Control pipeline.
func NewControl(ctx ports.Context, cfg ports.StreamerConfig, sink ports.Sink, brkCfg breaker.Config) *Control {
	return &Control{ctx: ctx, cfg: cfg, sink: sink, brk: breaker.New(brkCfg)}
}

func (c *Control) Start() error {
	if !c.running.CompareAndSwap(false, true) {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.run(runCtx)
	return nil
}

func (c *Control) Stop() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runErr
}

func (c *Control) run(ctx context.Context) {
	defer c.wg.Done()
	c.brk.Start()

	for c.running.Load() {
		if err := c.sink.Start(); err != nil {
			c.setRunErr(err)
			return
		}

		streamer, err := c.ctx.Client().Telem().OpenStreamer(c.cfg)
		if err != nil {
			if errs.IsUnreachable(err) && c.brk.Wait(ctx) {
				c.ctx.Observability().IncCounter(observability.MetricBreakerRetries, 1)
				continue
			}
			c.setRunErr(err)
			return
		}
		c.brk.Reset()

		for c.running.Load() {
			frame, err := streamer.Read()
			if err != nil {
				break
			}
			if err := c.sink.Write(frame); err != nil {
				c.ctx.Observability().LogError("[ni.writer] command apply failed", err)
				continue
			}
			c.ctx.Observability().IncCounter(observability.MetricCommandsWritten, 1)
		}

		streamer.Close()
		c.sink.Stop()
		if !c.running.Load() {
			return
		}
	}
}

func (c *Control) setRunErr(err error) {
	c.mu.Lock()
	c.runErr = err
	c.mu.Unlock()
}
