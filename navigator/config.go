package navigator

import "github.com/Davasny/n8n-helpers/navigator/internal/config"

// Config is the service configuration.
type Config = config.Config

// Session lifecycle policies.
const (
	PolicyKeepAlive  = config.PolicyKeepAlive
	PolicyPerRequest = config.PolicyPerRequest
)

// LoadConfig reads path (optional), applies environment overrides through
// getenv and validates the result.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	return config.Load(path, getenv)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config { return config.Default() }
