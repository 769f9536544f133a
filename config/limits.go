package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shubh-37/social-autoreply/internal/ratelimit"
)

// limitOverride is one entry of the rate limits file. Omitted fields keep the
// default for that key.
type limitOverride struct {
	Reservoir       *int           `yaml:"reservoir"`
	RefreshAmount   *int           `yaml:"refresh_amount"`
	RefreshInterval *time.Duration `yaml:"refresh_interval"`
	MaxConcurrent   *int           `yaml:"max_concurrent"`
	MinSpacing      *time.Duration `yaml:"min_spacing"`
}

type limitsFile struct {
	Limits map[string]limitOverride `yaml:"limits"`
}

// LoadRateLimits returns the default limiter configs with the overrides from
// path applied. An empty path yields the defaults.
//
//	limits:
//	  twitter:
//	    reservoir: 50
//	    refresh_interval: 15m
func LoadRateLimits(path string) (map[string]ratelimit.Config, error) {
	configs := ratelimit.DefaultConfigs()
	if path == "" {
		return configs, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limits file: %w", err)
	}
	return applyRateLimits(configs, data)
}

func applyRateLimits(configs map[string]ratelimit.Config, data []byte) (map[string]ratelimit.Config, error) {
	var file limitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rate limits file: %w", err)
	}

	for key, o := range file.Limits {
		cfg, ok := configs[key]
		if !ok {
			cfg = ratelimit.FallbackConfig
		}
		if o.Reservoir != nil {
			cfg.Reservoir = *o.Reservoir
		}
		if o.RefreshAmount != nil {
			cfg.RefreshAmount = *o.RefreshAmount
		}
		if o.RefreshInterval != nil {
			cfg.RefreshInterval = *o.RefreshInterval
		}
		if o.MaxConcurrent != nil {
			cfg.MaxConcurrent = *o.MaxConcurrent
		}
		if o.MinSpacing != nil {
			cfg.MinSpacing = *o.MinSpacing
		}
		if cfg.Reservoir < 0 || cfg.RefreshAmount < 0 || cfg.MaxConcurrent < 0 {
			return nil, fmt.Errorf("rate limit %q: counts must not be negative", key)
		}
		if cfg.Reservoir > 0 && cfg.RefreshInterval <= 0 {
			return nil, fmt.Errorf("rate limit %q: refresh_interval is required with a reservoir", key)
		}
		configs[key] = cfg
	}
	return configs, nil
}
