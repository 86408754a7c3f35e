package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("WEBSERV_BIN", "/opt/webserv")

	path := filepath.Join(t.TempDir(), "tester.yaml")
	doc := `
sut:
  binary: ${WEBSERV_BIN}
  base_port: 9000
  settle: 1s
thresholds:
  stress_requests: 500
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/webserv", cfg.SUT.Binary)
	assert.Equal(t, 9000, cfg.SUT.BasePort)
	assert.Equal(t, time.Second, cfg.SUT.Settle)
	assert.Equal(t, 500, cfg.Thresholds.StressRequests)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched values keep their defaults
	assert.Equal(t, "127.0.0.1", cfg.SUT.Host)
	assert.Equal(t, 5*time.Second, cfg.SUT.StopTimeout)
	assert.Equal(t, uint64(50<<20), cfg.Thresholds.MemoryGrowthMax)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty binary", func(c *Config) { c.SUT.Binary = "" }},
		{"empty host", func(c *Config) { c.SUT.Host = "" }},
		{"bad port", func(c *Config) { c.SUT.BasePort = 70000 }},
		{"zero settle", func(c *Config) { c.SUT.Settle = 0 }},
		{"zero stop timeout", func(c *Config) { c.SUT.StopTimeout = 0 }},
		{"zero body size", func(c *Config) { c.SUT.MaxBodySize = 0 }},
		{"bad availability", func(c *Config) { c.Thresholds.MinAvailability = 101 }},
		{"zero stress requests", func(c *Config) { c.Thresholds.StressRequests = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			assert.Error(t, cfg.Validate())
		})
	}
}
