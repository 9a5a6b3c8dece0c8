// Package pipeline implements the two worker-thread run loops every Task
// is built from (spec.md §4.5, §4.6): Acquisition pairs a hardware Source
// with a cluster Writer, Control pairs a cluster Streamer with a hardware
// Sink. Both are grounded on the same shape as AegisFlow's
// internal/app/pipeline run loops (a goroutine owning a breaker-gated outer
// loop around an inner read/write loop) generalized from AegisFlow's single
// ingest direction to the driver's two directions.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/errs"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/ports"
)

// AutoCommitEvery is the default number of writes between automatic
// commits when a WriterConfig enables auto-commit (spec.md §4.5).
const AutoCommitEvery = 50

// Acquisition runs the pull-from-Source, push-to-Writer loop (spec.md
// §4.5).
type Acquisition struct {
	ctx    ports.Context
	cfg    ports.WriterConfig
	source ports.Source
	brk    *breaker.Breaker

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runErr  error
	mu      sync.Mutex
}

// NewAcquisition builds an Acquisition pipeline. When cfg.EnableAutoCommit
// is true, the run loop calls writer.Commit after every
// cfg.AutoCommitEvery successful writes (AutoCommitEvery if unset); when
// it is false, the loop never commits.
func NewAcquisition(ctx ports.Context, cfg ports.WriterConfig, source ports.Source, brkCfg breaker.Config) *Acquisition {
	return &Acquisition{ctx: ctx, cfg: cfg, source: source, brk: breaker.New(brkCfg)}
}

// Start launches the worker goroutine. Idempotent.
func (a *Acquisition) Start() error {
	if !a.running.CompareAndSwap(false, true) {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go a.run(runCtx)
	return nil
}

// Stop signals the worker goroutine to exit and waits for it. Idempotent.
func (a *Acquisition) Stop() error {
	if !a.running.CompareAndSwap(true, false) {
		return nil
	}
	a.cancel()
	a.wg.Wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runErr
}

func (a *Acquisition) run(ctx context.Context) {
	defer a.wg.Done()
	a.brk.Start()

	for a.running.Load() {
		if err := a.source.Start(); err != nil {
			a.ctx.SetState(ports.StateRecord{Variant: ports.StateError, Details: map[string]any{"error": err.Error()}})
			if errs.IsUnreachable(err) && a.brk.Wait(ctx) {
				a.obs().IncCounter(observability.MetricBreakerRetries, 1)
				continue
			}
			a.setRunErr(err)
			return
		}

		writer, err := a.ctx.Client().Telem().OpenWriter(a.cfg)
		if err != nil {
			if errs.IsUnreachable(err) && a.brk.Wait(ctx) {
				a.obs().IncCounter(observability.MetricBreakerRetries, 1)
				continue
			}
			a.setRunErr(err)
			return
		}
		a.brk.Reset()

		writes := 0
		for a.running.Load() {
			frame, err := a.source.Read()
			if err != nil {
				if errs.IsTemporaryHardware(err) {
					continue
				}
				// A critical (or otherwise non-temporary) Source error
				// terminates this pipeline outright: spec.md §7 says the
				// Manager does not auto-restart on a critical hardware
				// error, so the outer loop must not be allowed to call
				// source.Start() again.
				a.ctx.SetState(ports.StateRecord{Variant: ports.StateError, Details: map[string]any{"error": err.Error()}})
				a.setRunErr(err)
				a.running.Store(false)
				break
			}
			a.obs().IncCounter(observability.MetricFramesAcquired, 1)
			writeStart := time.Now()
			err = writer.Write(frame)
			a.obs().ObserveLatency(observability.MetricWriteLatency, time.Since(writeStart).Seconds())
			if err != nil {
				if errs.IsUnreachable(err) {
					break
				}
				a.ctx.SetState(ports.StateRecord{Variant: ports.StateError, Details: map[string]any{"error": err.Error()}})
				a.setRunErr(err)
				a.running.Store(false)
				break
			}
			a.obs().IncCounter(observability.MetricFramesWritten, 1)
			writes++
			if a.cfg.EnableAutoCommit && writes%autoCommitEvery(a.cfg) == 0 {
				_ = writer.Commit()
			}
		}

		writer.Close()
		a.source.Stop()
		if !a.running.Load() {
			return
		}
	}
}

func autoCommitEvery(cfg ports.WriterConfig) int {
	if cfg.AutoCommitEvery > 0 {
		return cfg.AutoCommitEvery
	}
	return AutoCommitEvery
}

func (a *Acquisition) obs() ports.Observability { return a.ctx.Observability() }

func (a *Acquisition) setRunErr(err error) {
	a.mu.Lock()
	a.runErr = err
	a.mu.Unlock()
}
