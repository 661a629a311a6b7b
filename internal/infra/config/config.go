// Package config provides configuration loading from YAML files.
package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Player          PlayerConfig          `yaml:"player"`
	Queue           QueueConfig           `yaml:"queue"`
	Reporting       ReportingConfig       `yaml:"reporting"`
	Recommendations RecommendationsConfig `yaml:"recommendations"`
	State           StateConfig           `yaml:"state"`
	Spotify         SpotifyConfig         `yaml:"spotify"`
	Log             LogConfig             `yaml:"log"`
}

// PlayerConfig represents playback defaults.
type PlayerConfig struct {
	Volume int    `yaml:"volume" default:"70" validate:"gte=0,lte=100"`
	Repeat string `yaml:"repeat" default:"off" validate:"oneof=off all one"`
	Device string `yaml:"device"` // Preferred playback device name (optional)
}

// QueueConfig represents queue growth bounds.
type QueueConfig struct {
	MaxLength      int `yaml:"max_length" default:"1000" validate:"gte=1"`
	TrimKeepBefore int `yaml:"trim_keep_before" default:"5" validate:"gte=0"`
}

// ReportingConfig represents play-event reporting timing.
type ReportingConfig struct {
	ReportDelayMs       int `yaml:"report_delay_ms" default:"5000" validate:"gte=0,lte=60000"`
	PlayedNotifyDelayMs int `yaml:"played_notify_delay_ms" default:"4000" validate:"gte=0,lte=60000"`
}

// RecommendationsConfig represents the recommendation feed configuration.
type RecommendationsConfig struct {
	Enabled     bool             `yaml:"enabled"`
	LowWater    int              `yaml:"low_water" default:"2" validate:"gte=0"`
	RefillCount int              `yaml:"refill_count" default:"5" validate:"gte=1"`
	SeedCount   int              `yaml:"seed_count" default:"3" validate:"gte=1"`
	Providers   []ProviderConfig `yaml:"providers"`
	Filters     FiltersConfig    `yaml:"filters"`
}

// ProviderConfig represents a single recommendation provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FiltersConfig represents candidate filter settings.
type FiltersConfig struct {
	MaxDurationSec int  `yaml:"max_duration_sec" default:"600" validate:"gte=0"`
	AllowExplicit  bool `yaml:"allow_explicit" default:"true"`
}

// StateConfig represents snapshot persistence configuration.
type StateConfig struct {
	Path string `yaml:"path" default:"melodeck-state.yaml"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Recommendations.Providers {
			if c.Recommendations.Providers[i].Type == "lastfm" {
				if c.Recommendations.Providers[i].Settings == nil {
					c.Recommendations.Providers[i].Settings = map[string]any{}
				}
				c.Recommendations.Providers[i].Settings["api_key"] = v
			}
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Recommendations.Enabled && len(c.Recommendations.Providers) == 0 {
		return errors.New("recommendations enabled but no providers configured")
	}
	return nil
}
