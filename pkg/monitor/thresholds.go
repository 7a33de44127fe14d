package monitor

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Thresholds configure the rolling window and the state machine of one
// integration. Zero fields fall back to the defaults.
type Thresholds struct {
	WindowSize          int     `yaml:"window_size"          json:"window_size"          validate:"gte=0,lte=10000"`
	MinSamples          int     `yaml:"min_samples"          json:"min_samples"          validate:"gte=0"`
	WarningErrorRate    float64 `yaml:"warning_error_rate"   json:"warning_error_rate"   validate:"gte=0,lte=1"`
	ErrorErrorRate      float64 `yaml:"error_error_rate"     json:"error_error_rate"     validate:"gte=0,lte=1"`
	WarningLatencyMs    int64   `yaml:"warning_latency_ms"   json:"warning_latency_ms"   validate:"gte=0"`
	ErrorLatencyMs      int64   `yaml:"error_latency_ms"     json:"error_latency_ms"     validate:"gte=0"`
	ConsecutiveFailures int     `yaml:"consecutive_failures" json:"consecutive_failures" validate:"gte=0"`
	RecoverySamples     int     `yaml:"recovery_samples"     json:"recovery_samples"     validate:"gte=0"`
}

// DefaultThresholds are used for every integration without overrides.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WindowSize:          50,
		MinSamples:          5,
		WarningErrorRate:    0.10,
		ErrorErrorRate:      0.25,
		WarningLatencyMs:    1000,
		ErrorLatencyMs:      3000,
		ConsecutiveFailures: 5,
		RecoverySamples:     5,
	}
}

func (t Thresholds) merge(fallback Thresholds) Thresholds {
	if t.WindowSize == 0 {
		t.WindowSize = fallback.WindowSize
	}

	if t.MinSamples == 0 {
		t.MinSamples = fallback.MinSamples
	}

	if t.WarningErrorRate == 0 {
		t.WarningErrorRate = fallback.WarningErrorRate
	}

	if t.ErrorErrorRate == 0 {
		t.ErrorErrorRate = fallback.ErrorErrorRate
	}

	if t.WarningLatencyMs == 0 {
		t.WarningLatencyMs = fallback.WarningLatencyMs
	}

	if t.ErrorLatencyMs == 0 {
		t.ErrorLatencyMs = fallback.ErrorLatencyMs
	}

	if t.ConsecutiveFailures == 0 {
		t.ConsecutiveFailures = fallback.ConsecutiveFailures
	}

	if t.RecoverySamples == 0 {
		t.RecoverySamples = fallback.RecoverySamples
	}

	return t
}

func (t Thresholds) validate() error {
	if t.WarningErrorRate > t.ErrorErrorRate {
		return fmt.Errorf("warning_error_rate %.2f is above error_error_rate %.2f", t.WarningErrorRate, t.ErrorErrorRate)
	}

	if t.WarningLatencyMs > t.ErrorLatencyMs {
		return fmt.Errorf("warning_latency_ms %d is above error_latency_ms %d", t.WarningLatencyMs, t.ErrorLatencyMs)
	}

	return nil
}

// Config holds the default thresholds and per-integration overrides.
type Config struct {
	Defaults     Thresholds            `yaml:"defaults"     json:"defaults"`
	Integrations map[string]Thresholds `yaml:"integrations" json:"integrations,omitempty" validate:"dive"`
}

// DefaultConfig returns a config without overrides.
func DefaultConfig() Config {
	return Config{Defaults: DefaultThresholds()}
}

// For returns the effective thresholds of an integration.
func (c Config) For(integrationID string) Thresholds {
	defaults := c.Defaults.merge(DefaultThresholds())

	if override, ok := c.Integrations[integrationID]; ok {
		return override.merge(defaults)
	}

	return defaults
}

// Validate checks ranges and that every soft threshold is below its hard one.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]

			return fmt.Errorf("invalid monitor config: %s fails %s", first.Namespace(), first.Tag())
		}

		return fmt.Errorf("invalid monitor config: %w", err)
	}

	err = c.For("").validate()
	if err != nil {
		return fmt.Errorf("invalid defaults: %w", err)
	}

	for id := range c.Integrations {
		err = c.For(id).validate()
		if err != nil {
			return fmt.Errorf("invalid thresholds for %s: %w", id, err)
		}
	}

	return nil
}

// LoadConfig reads a YAML config file. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read monitor config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes a YAML config document.
func ParseConfig(data []byte) (Config, error) {
	config := DefaultConfig()

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse monitor config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return Config{}, err
	}

	return config, nil
}
