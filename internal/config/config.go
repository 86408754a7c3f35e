package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SUT        SUTConfig        `yaml:"sut"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Hooks      HooksConfig      `yaml:"hooks"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SUTConfig describes how the server under test is launched and probed.
type SUTConfig struct {
	// Binary is the path of the server binary. It is invoked with a single
	// positional argument: the fixture path.
	Binary string `yaml:"binary"`
	Host   string `yaml:"host"`
	// BasePort is the first listen port handed out to generated fixtures.
	BasePort int `yaml:"base_port"`
	// WebRoot is the document root referenced by generated fixtures.
	WebRoot string `yaml:"web_root"`
	// Settle is the fixed interval an instance gets to come up before it is
	// considered READY. A process exiting within it is a startup failure.
	Settle       time.Duration `yaml:"settle"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// PortReleaseTimeout bounds the wait for a stopped instance's listen
	// ports to become bindable again.
	PortReleaseTimeout time.Duration `yaml:"port_release_timeout"`
	// MaxBodySize is the client_max_body_size written into fixtures and
	// asserted by the body-limit section.
	MaxBodySize int `yaml:"max_body_size"`
	// CGIMarkers are body substrings expected in CGI responses, keyed by
	// script route.
	CGIMarkers map[string]string `yaml:"cgi_markers"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// Path of the sqlite report database; empty means in-memory.
	Path string `yaml:"path"`
}

type ThresholdsConfig struct {
	// MemoryGrowthMax is the permitted RSS growth in bytes over a probe burst.
	MemoryGrowthMax uint64 `yaml:"memory_growth_max"`
	// MinAvailability is the minimum percentage of successful requests
	// required by the stress section.
	MinAvailability float64 `yaml:"min_availability"`
	// MaxEstablished is the maximum number of lingering established
	// connections tolerated after a load burst.
	MaxEstablished    int `yaml:"max_established"`
	StressRequests    int `yaml:"stress_requests"`
	StressConcurrency int `yaml:"stress_concurrency"`
}

type HooksConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Elastic ElasticConfig `yaml:"elastic"`
}

type SlackConfig struct {
	ChannelID string `yaml:"channel_id"`
	Token     string `yaml:"token"`
}

type ElasticConfig struct {
	Addresses []string `yaml:"addresses"`
	Index     string   `yaml:"index"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

func Defaults() *Config {
	return &Config{
		SUT: SUTConfig{
			Binary:             "./webserv",
			Host:               "127.0.0.1",
			BasePort:           8888,
			WebRoot:            "./www/",
			Settle:             2 * time.Second,
			StopTimeout:        5 * time.Second,
			ProbeTimeout:       5 * time.Second,
			PortReleaseTimeout: 3 * time.Second,
			MaxBodySize:        50000,
			CGIMarkers: map[string]string{
				"/cgi-bin/lotr":      "Archives",
				"/cgi-bin/star-wars": "Terminal",
			},
		},
		Server: ServerConfig{
			Port: 1337,
		},
		Thresholds: ThresholdsConfig{
			MemoryGrowthMax:   50 << 20, // 50 MiB
			MinAvailability:   99.5,
			MaxEstablished:    10,
			StressRequests:    200,
			StressConcurrency: 8,
		},
		Hooks: HooksConfig{
			Elastic: ElasticConfig{Index: "webserv-reports"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.validateSUT(); err != nil {
		return err
	}
	if err := c.validateThresholds(); err != nil {
		return err
	}
	return validateLogLevel(c.Logging.Level)
}

func (c *Config) validateSUT() error {
	if c.SUT.Binary == "" {
		return fmt.Errorf("sut.binary is required")
	}
	if c.SUT.Host == "" {
		return fmt.Errorf("sut.host is required")
	}
	if c.SUT.BasePort <= 0 || c.SUT.BasePort > 65535 {
		return fmt.Errorf("sut.base_port must be a valid port")
	}
	if c.SUT.Settle <= 0 {
		return fmt.Errorf("sut.settle must be positive")
	}
	if c.SUT.StopTimeout <= 0 {
		return fmt.Errorf("sut.stop_timeout must be positive")
	}
	if c.SUT.ProbeTimeout <= 0 {
		return fmt.Errorf("sut.probe_timeout must be positive")
	}
	if c.SUT.MaxBodySize <= 0 {
		return fmt.Errorf("sut.max_body_size must be positive")
	}
	return nil
}

func (c *Config) validateThresholds() error {
	if c.Thresholds.MinAvailability <= 0 || c.Thresholds.MinAvailability > 100 {
		return fmt.Errorf("thresholds.min_availability must be in (0,100]")
	}
	if c.Thresholds.StressRequests <= 0 {
		return fmt.Errorf("thresholds.stress_requests must be positive")
	}
	if c.Thresholds.StressConcurrency <= 0 {
		return fmt.Errorf("thresholds.stress_concurrency must be positive")
	}
	return nil
}

func validateLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
}
