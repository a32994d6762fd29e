// Package config loads mailhook's configuration from the process environment.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Load reads AppConfig from environment variables using envconfig.
// The result is not validated; call Validate once CLI overrides are applied.
func Load() (*AppConfig, error) {
	var c AppConfig
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &c, nil
}
