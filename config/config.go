// Package config loads the natives runner's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/Comcast/natives/executor"
	"github.com/Comcast/natives/server"
	"github.com/Comcast/natives/sio"
)

// Config is the runner's configuration.
type Config struct {
	// Executor sizes the background task pool.
	Executor executor.Config `yaml:"executor"`

	// Timeout bounds each script run.
	Timeout time.Duration `yaml:"timeout"`

	// LibDir is the directory for "file://" libraries.
	LibDir string `yaml:"libDir"`

	// Bolt is the BoltDB file for "bolt://" libraries.  Empty
	// disables the library store.
	Bolt string `yaml:"bolt"`

	// Testing exposes test-only script helpers.
	Testing bool `yaml:"testing"`

	Sink   Sink          `yaml:"sink"`
	Server server.Config `yaml:"server"`
}

// Sink selects where emitted messages go.
type Sink struct {
	// Kind is "stdio", "ws", "mqtt", or "none".
	Kind string `yaml:"kind"`

	// URL is the WebSocket URL for Kind "ws".
	URL string `yaml:"url"`

	MQTT sio.MQTTOptions `yaml:"mqtt"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		LibDir:  ".",
		Sink: Sink{
			Kind: "stdio",
		},
		Server: server.Config{
			Addr:     ":8080",
			MaxConns: 64,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(bs)
}

// Parse parses YAML over the defaults and validates the result.
func Parse(bs []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(bs, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks for settings that can't work.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, not %v", c.Timeout)
	}
	if c.Executor.Workers < 0 {
		return fmt.Errorf("executor.workers can't be negative")
	}
	if c.Executor.Queue < 0 {
		return fmt.Errorf("executor.queue can't be negative")
	}
	switch c.Sink.Kind {
	case "", "none", "stdio", "mqtt":
	case "ws":
		if c.Sink.URL == "" {
			return fmt.Errorf("sink kind 'ws' needs a url")
		}
	default:
		return fmt.Errorf("unknown sink kind '%s'", c.Sink.Kind)
	}
	if c.Server.MaxConns < 0 {
		return fmt.Errorf("server.maxConns can't be negative")
	}
	return nil
}
