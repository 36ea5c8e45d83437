package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single YAML-backed configuration for the service and both
// shipped front-ends.
type Config struct {
	Listen   string `yaml:"listen"`
	StateDir string `yaml:"state_dir"`

	// Evaluation limits.
	EvalTimeoutMs     int `yaml:"eval_timeout_ms"`
	MaxCodeBytes      int `yaml:"max_code_bytes"`
	MaxRecursionDepth int `yaml:"max_recursion_depth"`

	// Memory budget in MB. Not enforced in-process: it is published for an
	// external process supervisor to apply to this service's worker unit.
	MemoryLimitMB int `yaml:"memory_limit_mb"`

	// Output pagination.
	PageLines        int `yaml:"page_lines"`
	MaxOutputLines   int `yaml:"max_output_lines"`
	PageIdleExpiryMs int `yaml:"page_idle_expiry_ms"`

	// Store maintenance.
	GCEveryCommits int `yaml:"gc_every_commits"`
	GCKeepCommits  int `yaml:"gc_keep_commits"`

	// Interpreter capability deny-list, applied at worker (re)start.
	DeniedCommands []string `yaml:"denied_commands"`

	// Front-end concerns.
	RollbackToken string `yaml:"rollback_token"`
}

func Defaults() Config {
	return Config{
		Listen:            ":8080",
		StateDir:          "./data/state",
		EvalTimeoutMs:     30000,
		MaxCodeBytes:      64 * 1024,
		MaxRecursionDepth: 1000,
		MemoryLimitMB:     256,
		PageLines:         8,
		MaxOutputLines:    2000,
		PageIdleExpiryMs:  5 * 60 * 1000,
		GCEveryCommits:    100,
		GCKeepCommits:     500,
		DeniedCommands: []string{
			"exec", "open", "file", "socket", "source", "load",
			"exit", "cd", "pwd", "glob", "interp", "trace", "vwait",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.EvalTimeoutMs <= 0 {
		return fmt.Errorf("config: eval_timeout_ms must be positive")
	}
	if c.PageLines <= 0 {
		return fmt.Errorf("config: page_lines must be positive")
	}
	if c.StateDir == "" {
		return fmt.Errorf("config: state_dir must be set")
	}
	return nil
}

func (c Config) EvalTimeout() time.Duration {
	return time.Duration(c.EvalTimeoutMs) * time.Millisecond
}

func (c Config) PageIdleExpiry() time.Duration {
	return time.Duration(c.PageIdleExpiryMs) * time.Millisecond
}
