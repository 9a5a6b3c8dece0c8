package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aegisedge/daqdriver/internal/breaker"
	"github.com/aegisedge/daqdriver/internal/cluster"
	"github.com/aegisedge/daqdriver/internal/ports"
)

// config is the driver's bootstrap configuration: just enough to reach the
// cluster and identify this rack (SPEC_FULL §A.3). Per-task configuration
// is never read from disk -- it lives on the cluster and arrives over
// sy_task_set, exactly as spec.md §1 scopes out a general config system
// here.
type config struct {
	Cluster cluster.Config `yaml:"cluster"`
	Breaker breaker.Config `yaml:"breaker"`
	Metrics metricsConfig  `yaml:"metrics"`
	Scanner scannerConfig  `yaml:"scanner"`
}

type metricsConfig struct {
	Addr string `yaml:"addr"`
}

type scannerConfig struct {
	Candidates []deviceConfig `yaml:"candidates"`
	Timeout    time.Duration  `yaml:"timeout"`
}

type deviceConfig struct {
	Key      string `yaml:"key"`
	Location string `yaml:"location"`
}

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *config) applyDefaults() {
	if c.Cluster.ConnectName == "" {
		c.Cluster.ConnectName = "daqdriver"
	}
	if c.Cluster.MaxReconnects == 0 {
		c.Cluster.MaxReconnects = -1
	}
	if c.Cluster.ReconnectWait == 0 {
		c.Cluster.ReconnectWait = 2 * time.Second
	}
	if c.Cluster.ConnectTimeout == 0 {
		c.Cluster.ConnectTimeout = 5 * time.Second
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = "manager"
	}
	if c.Breaker.BaseInterval == 0 {
		c.Breaker.BaseInterval = 500 * time.Millisecond
	}
	if c.Breaker.MaxRetries == 0 {
		c.Breaker.MaxRetries = 10
	}
	if c.Breaker.Scale == 0 {
		c.Breaker.Scale = 2
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Scanner.Timeout == 0 {
		c.Scanner.Timeout = 500 * time.Millisecond
	}
}

func (c *config) validate() error {
	if c.Cluster.URL == "" {
		return fmt.Errorf("cluster.url is required")
	}
	if c.Cluster.Rack == 0 {
		return fmt.Errorf("cluster.rack is required")
	}
	return nil
}

func (c *config) scanCandidates() []ports.Device {
	out := make([]ports.Device, 0, len(c.Scanner.Candidates))
	for _, d := range c.Scanner.Candidates {
		out = append(out, ports.Device{Key: d.Key, Location: d.Location})
	}
	return out
}
