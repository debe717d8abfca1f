package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teemow/graphmcp/internal/azure"
)

// Config holds the serve command's configuration.
type Config struct {
	// Transport selects stdio or streamable-http.
	Transport string `yaml:"transport"`

	// Addr is the HTTP listen address for the streamable-http transport.
	Addr string `yaml:"addr"`

	// BaseURL is the public base URL of the server.
	BaseURL string `yaml:"baseUrl"`

	// DataDir holds the mailbox fixture files.
	DataDir string `yaml:"dataDir"`

	Azure   AzureConfig   `yaml:"azure"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AzureConfig holds the Entra ID app registration settings.
type AzureConfig struct {
	TenantID     string   `yaml:"tenantId"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	UserScopes   []string `yaml:"userScopes"`
}

// MetricsConfig holds the metrics listener settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Transport: "stdio",
		Addr:      ":8000",
		DataDir:   "./data",
		Azure: AzureConfig{
			UserScopes: azure.DefaultUserScopes,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
	}
}

// Load reads a YAML configuration file layered over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvironment overlays environment variables onto the configuration.
// A .env file in the working directory is loaded first when present,
// without overriding variables already set in the environment.
func (c *Config) ApplyEnvironment() {
	// Missing .env is the common case and not an error
	_ = godotenv.Load()

	if v := os.Getenv(azure.EnvTenantID); v != "" {
		c.Azure.TenantID = v
	}
	if v := os.Getenv(azure.EnvClientID); v != "" {
		c.Azure.ClientID = v
	}
	if v := os.Getenv(azure.EnvClientSecret); v != "" {
		c.Azure.ClientSecret = v
	}
	if v := os.Getenv(azure.EnvUserScopes); v != "" {
		if scopes := azure.ParseScopes(v); len(scopes) > 0 {
			c.Azure.UserScopes = scopes
		}
	}
	if v := os.Getenv("MCP_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

// AzureClientConfig converts the Azure section into the azure package's
// Config type.
func (c Config) AzureClientConfig() azure.Config {
	return azure.Config{
		TenantID:     c.Azure.TenantID,
		ClientID:     c.Azure.ClientID,
		ClientSecret: c.Azure.ClientSecret,
		UserScopes:   c.Azure.UserScopes,
	}
}
