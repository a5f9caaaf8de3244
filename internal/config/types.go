package config

import (
	"runtime"
	"time"
)

// Config represents the complete nexus-cli configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Prover  ProverConfig  `yaml:"prover"`
	Engine  EngineConfig  `yaml:"engine"`
	State   StateConfig   `yaml:"state"`
	Reports ReportsConfig `yaml:"reports"`
	API     APIConfig     `yaml:"api,omitempty"`

	// SourcePath is the absolute path the config was loaded from.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ProverConfig identifies this client to the orchestrator and sizes the
// worker pool.
type ProverConfig struct {
	ClientID    string `yaml:"client_id"`
	Environment string `yaml:"environment"`
	Workers     int    `yaml:"workers"`
}

// Engine kinds.
const (
	EngineTrace = "trace"
	EngineExec  = "exec"
)

// EngineConfig selects and configures the proving engine.
type EngineConfig struct {
	Kind             string        `yaml:"kind"`
	Command          string        `yaml:"command,omitempty"`
	Args             []string      `yaml:"args,omitempty"`
	MaxIterations    uint32        `yaml:"max_iterations,omitempty"`
	TerminationGrace time.Duration `yaml:"termination_grace,omitempty"`
}

// StateConfig defines where the failure journal lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// ReportsConfig controls failure report sinks.
type ReportsConfig struct {
	// Journal defaults to true when unset.
	Journal     *bool `yaml:"journal,omitempty"`
	EventBuffer int   `yaml:"event_buffer"`
}

// JournalEnabled reports whether failures are persisted to state.path.
func (r ReportsConfig) JournalEnabled() bool {
	return r.Journal == nil || *r.Journal
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Listen          string `yaml:"listen"`
	APIKey          string `yaml:"api_key"`
	ResultCacheSize int    `yaml:"result_cache_size"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "nexus-cli",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Prover: ProverConfig{
			Environment: "production",
			Workers:     runtime.NumCPU(),
		},
		Engine: EngineConfig{
			Kind:             EngineTrace,
			MaxIterations:    1 << 20,
			TerminationGrace: 5 * time.Second,
		},
		State: StateConfig{
			Path: "./data/nexus.db",
		},
		Reports: ReportsConfig{
			EventBuffer: 256,
		},
		API: APIConfig{
			Enabled:         false,
			Listen:          "127.0.0.1:8080",
			ResultCacheSize: 128,
		},
	}
}
