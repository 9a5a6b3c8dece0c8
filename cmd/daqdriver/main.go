package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aegisedge/daqdriver/internal/cluster"
	"github.com/aegisedge/daqdriver/internal/manager"
	"github.com/aegisedge/daqdriver/internal/observability"
	"github.com/aegisedge/daqdriver/internal/scanner"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("daqdriver %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to driver bootstrap configuration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := cluster.Connect(cfg.Cluster)
	if err != nil {
		return fmt.Errorf("connect to cluster: %w", err)
	}
	defer client.Close()

	obs := observability.NewPromObs()
	stopMetrics := startMetrics(cfg.Metrics.Addr)
	defer stopMetrics()

	enum := &scanner.ModbusEnumerator{Candidates: cfg.scanCandidates(), Timeout: cfg.Scanner.Timeout}
	mgr := manager.New(client, obs, cfg.Cluster.Rack, enum, cfg.Breaker)

	if err := mgr.Start(); err != nil {
		return fmt.Errorf("start task manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	return mgr.Stop()
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := loadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		observability.MetricFramesAcquired:   0,
		observability.MetricFramesWritten:    0,
		observability.MetricCommandsWritten:  0,
		observability.MetricQueueLength:      0,
		observability.MetricBreakerRetries:   0,
		observability.MetricStateTransitions: 0,
	}

	s := bufio.NewScanner(resp.Body)
	for s.Scan() {
		line := s.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := s.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] acquired=%.0f written=%.0f commands=%.0f queue=%.0f breaker_retries=%.0f state_transitions=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets[observability.MetricFramesAcquired],
		targets[observability.MetricFramesWritten],
		targets[observability.MetricCommandsWritten],
		targets[observability.MetricQueueLength],
		targets[observability.MetricBreakerRetries],
		targets[observability.MetricStateTransitions],
	)
	return nil
}

// startMetrics serves /metrics and /healthz on addr, grounded on the
// teacher's EdgeRuntime.startMetrics. The returned func shuts the server
// down.
func startMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func printUsage() {
	fmt.Printf(`daqdriver: edge hardware DAQ task runtime

Usage:
  daqdriver <command> [flags]

Commands:
  run        Connect to the cluster and run the Task Manager reconciliation loop
  validate   Load and validate a bootstrap config file without connecting
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  daqdriver run -config ./config.yaml
  daqdriver validate -config ./config.yaml
  daqdriver stats -url http://localhost:9100/metrics -interval 1s
`)
}
