// Package config provides configuration loading for phasegate.
package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the root phasegate configuration.
type Config struct {
	// WorkspaceRoot is the repository root deliverable checks resolve
	// against. Defaults to the current working directory.
	WorkspaceRoot string `koanf:"workspace_root"`

	// PlanFile is the version-controlled plan document, relative to the
	// workspace root unless absolute.
	PlanFile string `koanf:"plan_file"`

	// StateFile is the local branch-state cache, relative to the workspace
	// root unless absolute. It must not be committed; it is disposable.
	StateFile string `koanf:"state_file"`

	Git     GitConfig     `koanf:"git"`
	Engine  EngineConfig  `koanf:"engine"`
	Logging LoggingConfig `koanf:"logging"`
}

// GitConfig bounds the commit-history scan used during reconstruction.
type GitConfig struct {
	// CommitWindow is how many recent commits the phase-label scan covers.
	CommitWindow int `koanf:"commit_window"`

	// ScanTimeout bounds one history scan; the scan fails closed on expiry.
	ScanTimeout Duration `koanf:"scan_timeout"`
}

// EngineConfig configures the transition engines.
type EngineConfig struct {
	// ImplementationPhase names the phase that hosts iteration cycles.
	ImplementationPhase string `koanf:"implementation_phase"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PlanFile == "" {
		return fmt.Errorf("plan_file must not be empty")
	}
	if c.StateFile == "" {
		return fmt.Errorf("state_file must not be empty")
	}
	if c.Git.CommitWindow <= 0 {
		return fmt.Errorf("git.commit_window must be > 0, got %d", c.Git.CommitWindow)
	}
	if c.Git.ScanTimeout.Duration() <= 0 {
		return fmt.Errorf("git.scan_timeout must be > 0")
	}
	if c.Engine.ImplementationPhase == "" {
		return fmt.Errorf("engine.implementation_phase must not be empty")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}
