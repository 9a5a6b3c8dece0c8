// Package observability implements ports.Observability against the
// standard logger and Prometheus, grounded on
// internal/adapters/observability/prom_metrics.go: a fixed metric registry
// looked up by name at call sites, plus plain log lines. Call sites prefix
// their message with "[component] " the way original_source/driver/task/
// manager.cpp and driver/ni/*.cpp tag their LOG(INFO)/LOG(ERROR) sites
// (e.g. "[task.manager] ...", "[ni.reader] ..."); Fields carry the
// structured values the C++ streamed inline after the tag.
package observability

import (
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aegisedge/daqdriver/internal/ports"
)

// Metric names used across the task runtime. Declared here so call sites
// and registration stay in lockstep.
const (
	MetricFramesAcquired   = "daq_frames_acquired_total"
	MetricFramesWritten    = "daq_frames_written_total"
	MetricCommandsWritten  = "daq_commands_written_total"
	MetricQueueLength      = "daq_queue_length"
	MetricBreakerRetries   = "daq_breaker_retries_total"
	MetricWriteLatency     = "daq_write_latency_seconds"
	MetricStateTransitions = "daq_task_state_transitions_total"
)

// PromObs is the default ports.Observability: a small set of named
// Prometheus collectors plus the standard logger.
type PromObs struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the fixed metric set with the default Prometheus
// registry and returns a PromObs ready to use.
func NewPromObs() *PromObs {
	framesAcquired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricFramesAcquired,
		Help: "Total frames read from a hardware Source.",
	})
	framesWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricFramesWritten,
		Help: "Total frames committed to the cluster by an Acquisition pipeline.",
	})
	commandsWritten := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricCommandsWritten,
		Help: "Total command frames applied by a Control pipeline's Sink.",
	})
	queueLength := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: MetricQueueLength,
		Help: "Current number of frames buffered in an Acquisition pipeline's BatchQueue.",
	})
	breakerRetries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricBreakerRetries,
		Help: "Total breaker-arbitrated retries across all loops.",
	})
	writeLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricWriteLatency,
		Help:    "Latency from BatchQueue dequeue to cluster Writer.Write returning.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	stateTransitions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricStateTransitions,
		Help: "Total StateRecords published to the cluster.",
	})

	prometheus.MustRegister(framesAcquired, framesWritten, commandsWritten, queueLength, breakerRetries, writeLatency, stateTransitions)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			MetricFramesAcquired:   framesAcquired,
			MetricFramesWritten:    framesWritten,
			MetricCommandsWritten:  commandsWritten,
			MetricBreakerRetries:   breakerRetries,
			MetricStateTransitions: stateTransitions,
		},
		gauges: map[string]prometheus.Gauge{
			MetricQueueLength: queueLength,
		},
		histos: map[string]prometheus.Observer{
			MetricWriteLatency: writeLatency,
		},
	}
}

func fieldString(fields []ports.Field) string {
	s := ""
	for _, f := range fields {
		s += fmt.Sprintf(" %s=%v", f.Key, f.Value)
	}
	return s
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	log.Printf("INFO: %s%s", msg, fieldString(fields))
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	log.Printf("ERROR: %s: %v%s", msg, err, fieldString(fields))
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	log.Printf("CRITICAL: %s: %v%s", msg, err, fieldString(fields))
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}
