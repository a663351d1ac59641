// Package config loads the Console's YAML configuration file and applies
// defaults. Flags on the server command override file values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the Console's runtime configuration
type Config struct {
	// ListenAddr is the address the REST and WebSocket server binds to
	ListenAddr string `yaml:"listenAddr"`

	// DataDir holds the bbolt database
	DataDir string `yaml:"dataDir"`

	Log struct {
		// Level is one of trace, debug, info, warn, error
		Level string `yaml:"level"`
		// Format is "console" or "json"
		Format string `yaml:"format"`
	} `yaml:"log"`

	Ingest struct {
		// QueueSize bounds the per-instance ingest queue
		QueueSize int `yaml:"queueSize"`
		// HeartbeatPeriodSec is the expected agent heartbeat cadence
		HeartbeatPeriodSec int `yaml:"heartbeatPeriodSec"`
	} `yaml:"ingest"`

	Sessions struct {
		// ViewerBuffer bounds each viewer's fan-out buffer
		ViewerBuffer int `yaml:"viewerBuffer"`
	} `yaml:"sessions"`

	RateLimit struct {
		// WriteRPS and ReadRPS are the per-key token bucket rates
		WriteRPS int `yaml:"writeRps"`
		ReadRPS  int `yaml:"readRps"`
	} `yaml:"rateLimit"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	cfg := &Config{
		ListenAddr: ":8420",
		DataDir:    "/var/lib/roost",
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Ingest.QueueSize = 10000
	cfg.Ingest.HeartbeatPeriodSec = 30
	cfg.Sessions.ViewerBuffer = 1000
	cfg.RateLimit.WriteRPS = 60
	cfg.RateLimit.ReadRPS = 600
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("dataDir must not be empty")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Ingest.QueueSize <= 0 {
		return fmt.Errorf("ingest.queueSize must be positive")
	}
	if c.Ingest.HeartbeatPeriodSec <= 0 {
		return fmt.Errorf("ingest.heartbeatPeriodSec must be positive")
	}
	if c.Sessions.ViewerBuffer <= 0 {
		return fmt.Errorf("sessions.viewerBuffer must be positive")
	}
	if c.RateLimit.WriteRPS <= 0 || c.RateLimit.ReadRPS <= 0 {
		return fmt.Errorf("rateLimit rates must be positive")
	}
	return nil
}

// HeartbeatPeriod is the ingest heartbeat cadence as a duration
func (c *Config) HeartbeatPeriod() time.Duration {
	return time.Duration(c.Ingest.HeartbeatPeriodSec) * time.Second
}
