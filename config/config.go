/*
Package config loads server configuration from an optional YAML file.

PURPOSE:
  Centralizes the tunable parameters of the engine: HTTP settings,
  database path, and the award amounts that operators adjust per
  campaign without redeploying.

PRECEDENCE:
  Defaults < YAML file < command-line flags (applied in main).

EXAMPLE FILE:
  server:
    port: 8080
    cors_origins:
      - "http://localhost:3000"
  database:
    path: "./data/points.db"
  awards:
    profile_completion_points: 5
    registration_points: 0
    survey_multiplier: "1.0"

AWARD AMOUNTS:
  survey_multiplier is a decimal string ("2.0" doubles every survey
  award during a promotion). Validation happens in Validate(), not at
  parse time, so a broken file reports every problem it can.

SEE ALSO:
  - cmd/server/main.go: flag handling and wiring
  - award/award.go: how the amounts are applied
*/
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Awards   AwardsConfig   `yaml:"awards"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type AwardsConfig struct {
	ProfileCompletionPoints int64  `yaml:"profile_completion_points"`
	RegistrationPoints      int64  `yaml:"registration_points"`
	SurveyMultiplier        string `yaml:"survey_multiplier"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path: "points.db",
		},
		Awards: AwardsConfig{
			ProfileCompletionPoints: 5,
			RegistrationPoints:      0,
			SurveyMultiplier:        "1.0",
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
// An empty path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and parseability of the award amounts.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.Awards.ProfileCompletionPoints < 0 {
		return fmt.Errorf("profile_completion_points must not be negative")
	}
	if c.Awards.RegistrationPoints < 0 {
		return fmt.Errorf("registration_points must not be negative")
	}
	if _, err := c.SurveyMultiplier(); err != nil {
		return err
	}
	return nil
}

// SurveyMultiplier parses the configured multiplier. A zero value
// (empty string) means no promotion.
func (c Config) SurveyMultiplier() (decimal.Decimal, error) {
	if c.Awards.SurveyMultiplier == "" {
		return decimal.Decimal{}, nil
	}
	m, err := decimal.NewFromString(c.Awards.SurveyMultiplier)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid survey_multiplier %q: %w", c.Awards.SurveyMultiplier, err)
	}
	if m.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("survey_multiplier must not be negative")
	}
	return m, nil
}
