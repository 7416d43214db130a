package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// envPrefix namespaces phasegate environment variables.
	envPrefix = "PHASEGATE_"
)

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (PHASEGATE_GIT_COMMIT_WINDOW, PHASEGATE_LOGGING_LEVEL, ...)
//  2. YAML config file (<workspace>/.phasegate/config.yaml by default)
//  3. Hardcoded defaults
//
// Environment variables use underscore separator and are uppercased after
// the prefix, mapping section_field to section.field:
//
//	PHASEGATE_GIT_COMMIT_WINDOW -> git.commit_window
//	PHASEGATE_LOGGING_LEVEL     -> logging.level
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = filepath.Join(".phasegate", "config.yaml")
	}

	if info, err := os.Stat(configPath); err == nil {
		if info.Size() > maxConfigFileSize {
			return nil, fmt.Errorf("config file %s exceeds %d bytes", configPath, maxConfigFileSize)
		}
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// PHASEGATE_GIT_COMMIT_WINDOW -> git.commit_window: split on the
		// first underscore after the prefix, keep underscores in the field.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills in zero values.
func applyDefaults(cfg *Config) {
	if cfg.WorkspaceRoot == "" {
		if wd, err := os.Getwd(); err == nil {
			cfg.WorkspaceRoot = wd
		} else {
			cfg.WorkspaceRoot = "."
		}
	}
	if cfg.PlanFile == "" {
		cfg.PlanFile = filepath.Join(".phasegate", "plan.yaml")
	}
	if cfg.StateFile == "" {
		cfg.StateFile = filepath.Join(".phasegate", "state", "branches.json")
	}
	if cfg.Git.CommitWindow == 0 {
		cfg.Git.CommitWindow = 50
	}
	if cfg.Git.ScanTimeout == 0 {
		cfg.Git.ScanTimeout = Duration(5 * time.Second)
	}
	if cfg.Engine.ImplementationPhase == "" {
		cfg.Engine.ImplementationPhase = "implementation"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// ResolvePath anchors a configured path at the workspace root unless it is
// already absolute.
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkspaceRoot, path)
}
