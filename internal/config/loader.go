package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wolfishy/nexus-cli/internal/environment"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads, verifies and validates the configuration at configPath.
// A directory is taken to contain config.yaml. A .env file next to the config
// is loaded into the process environment (without overriding existing
// variables) before ${VAR} interpolation. When a .checksums manifest is
// present, every scope file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := resolvePath(configPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)

	if err := LoadEnvFile(filepath.Join(dir, ".env")); err != nil {
		return nil, err
	}

	if err := verifyChecksums(absPath); err != nil {
		return nil, err
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}
	cfg = applyConfigDefaults(cfg)
	cfg.SourcePath = absPath

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func resolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func verifyChecksums(absPath string) error {
	dir := filepath.Dir(absPath)
	manifest, err := LoadChecksums(dir)
	if errors.Is(err, ErrNoChecksums) {
		return nil
	}
	if err != nil {
		return err
	}
	return VerifyScopeFiles(dir, manifest, ScopeFiles(absPath))
}

func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	interpolated := interpolateEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(interpolated)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}

	if cfg.Prover.Environment == "" {
		cfg.Prover.Environment = defaults.Prover.Environment
	}
	if cfg.Prover.Workers == 0 {
		cfg.Prover.Workers = defaults.Prover.Workers
	}

	if cfg.Engine.Kind == "" {
		cfg.Engine.Kind = defaults.Engine.Kind
	}
	if cfg.Engine.MaxIterations == 0 {
		cfg.Engine.MaxIterations = defaults.Engine.MaxIterations
	}
	if cfg.Engine.TerminationGrace == 0 {
		cfg.Engine.TerminationGrace = defaults.Engine.TerminationGrace
	}

	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Reports.EventBuffer == 0 {
		cfg.Reports.EventBuffer = defaults.Reports.EventBuffer
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
	if cfg.API.ResultCacheSize == 0 {
		cfg.API.ResultCacheSize = defaults.API.ResultCacheSize
	}
	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is so validation can name them.
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

// UnresolvedVar returns the first ${VAR} left in s, or "".
func UnresolvedVar(s string) string {
	if m := envVarPattern.FindStringSubmatch(s); len(m) > 1 {
		return m[1]
	}
	return ""
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if f := cfg.Service.LogFormat; f != "json" && f != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", f)
	}

	if v := UnresolvedVar(cfg.Prover.ClientID); v != "" {
		return fmt.Errorf("prover.client_id: environment variable ${%s} is not set", v)
	}
	if _, err := environment.Parse(cfg.Prover.Environment); err != nil {
		return fmt.Errorf("prover.environment: %w", err)
	}
	if cfg.Prover.Workers < 1 {
		return fmt.Errorf("prover.workers must be at least 1 (got %d)", cfg.Prover.Workers)
	}

	switch cfg.Engine.Kind {
	case EngineTrace:
	case EngineExec:
		if cfg.Engine.Command == "" {
			return fmt.Errorf("engine.command is required when engine.kind is %q", EngineExec)
		}
	default:
		return fmt.Errorf("engine.kind must be %q or %q (got %q)", EngineTrace, EngineExec, cfg.Engine.Kind)
	}
	if cfg.Engine.TerminationGrace < 0 {
		return fmt.Errorf("engine.termination_grace must not be negative")
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.Reports.EventBuffer < 0 {
		return fmt.Errorf("reports.event_buffer must not be negative")
	}

	if cfg.API.Enabled {
		if v := UnresolvedVar(cfg.API.APIKey); v != "" {
			return fmt.Errorf("api.api_key: environment variable ${%s} is not set", v)
		}
		if cfg.API.ResultCacheSize < 1 {
			return fmt.Errorf("api.result_cache_size must be at least 1")
		}
	}
	return nil
}
