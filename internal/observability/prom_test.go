package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromObsMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	obs := NewPromObs()

	obs.IncCounter(MetricFramesAcquired, 3)
	if got := testutil.ToFloat64(obs.counters[MetricFramesAcquired]); got != 3 {
		t.Fatalf("expected frames acquired counter 3, got %f", got)
	}

	obs.IncCounter(MetricBreakerRetries, 1)
	if got := testutil.ToFloat64(obs.counters[MetricBreakerRetries]); got != 1 {
		t.Fatalf("expected breaker retries counter 1, got %f", got)
	}

	obs.SetGauge(MetricQueueLength, 7)
	if got := testutil.ToFloat64(obs.gauges[MetricQueueLength]); got != 7 {
		t.Fatalf("expected queue length gauge 7, got %f", got)
	}

	obs.ObserveLatency(MetricWriteLatency, 0.25)
	hCollector := obs.histos[MetricWriteLatency].(prometheus.Collector)
	if samples := testutil.CollectAndCount(hCollector); samples != 1 {
		t.Fatalf("expected write latency histogram to record 1 sample, got %d", samples)
	}

	obs.IncCounter("unknown_metric", 1) // unregistered names are dropped, not panics
}
