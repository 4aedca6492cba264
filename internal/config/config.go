// Package config provides configuration for the session runtime.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/replaykit/replayd/internal/domain"
)

// Config holds the runtime configuration, loaded from the environment.
type Config struct {
	// Server settings
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:replayd.db?cache=shared&mode=rwc"`

	// Provider settings
	ProviderBaseURL string              `env:"PROVIDER_BASE_URL" envDefault:"http://localhost:4000"`
	ProviderAPIKey  string              `env:"PROVIDER_API_KEY"`
	ProviderModel   string              `env:"PROVIDER_MODEL" envDefault:"gpt-4o-mini"`
	ProviderTimeout time.Duration       `env:"PROVIDER_TIMEOUT" envDefault:"120s"`
	ProviderMode    domain.ProviderMode `env:"PROVIDER_MODE" envDefault:"live"`

	// Workflow settings
	WorkflowPhases []string `env:"WORKFLOW_PHASES" envSeparator:"," envDefault:"plan,execute,summarize"`

	// Replay settings
	StepDelay     time.Duration `env:"REPLAY_STEP_DELAY" envDefault:"0"`
	SnapshotEvery int           `env:"SNAPSHOT_EVERY" envDefault:"0"`

	// Policy
	PolicyPath string `env:"POLICY_PATH"`
}

// Load parses configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if !cfg.ProviderMode.IsValid() {
		return nil, fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q",
			domain.ProviderModeLive, domain.ProviderModePlayback, cfg.ProviderMode)
	}
	return cfg, nil
}
