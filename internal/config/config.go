// Package config loads and validates the discosync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Username is the Discogs account whose collection is mirrored.
	Username string `yaml:"username"`

	// Token is the Discogs personal access token used to authenticate
	// outbound requests.
	Token string `yaml:"token"`

	// APIURL is the base URL of the Discogs API. Defaults to
	// "https://api.discogs.com"; override it only for testing.
	APIURL string `yaml:"api_url"`

	// RequestInterval is the minimum spacing between outbound API requests.
	// Discogs allows roughly 60 authenticated requests per minute, so the
	// default is 1100ms. Minimum 250ms, maximum 10s.
	RequestInterval time.Duration `yaml:"request_interval"`

	// DBPath overrides the collection database location. When empty, the
	// default under ~/.local/share/discosync is used.
	DBPath string `yaml:"db_path"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "discosync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Typical use: authentication tokens, e.g.
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/discosync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "discosync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required fields are present and well-formed and
// applies defaults.
func (c *Config) validate() error {
	if c.Username == "" {
		return fmt.Errorf("username is required")
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}

	if c.APIURL == "" {
		c.APIURL = "https://api.discogs.com"
	}
	u, err := url.ParseRequestURI(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api_url %q must be a valid http or https URL", c.APIURL)
	}

	if c.RequestInterval == 0 {
		c.RequestInterval = 1100 * time.Millisecond
	}
	if c.RequestInterval < 250*time.Millisecond {
		return fmt.Errorf("request_interval %v is too short (minimum 250ms)", c.RequestInterval)
	}
	if c.RequestInterval > 10*time.Second {
		return fmt.Errorf("request_interval %v is too long (maximum 10s)", c.RequestInterval)
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
