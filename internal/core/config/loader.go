package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Portal.CallTimeout == 0 {
		cfg.Portal.CallTimeout = Duration(30 * time.Second)
	}
	if cfg.Client.MaxAttempts == 0 {
		cfg.Client.MaxAttempts = 3
	}
	if cfg.Client.RetryDelay == 0 {
		cfg.Client.RetryDelay = Duration(2 * time.Second)
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = Duration(time.Minute)
	}

	if cfg.Portal.Endpoint == "" {
		return nil, fmt.Errorf("portal.endpoint is required")
	}

	return &cfg, nil
}
