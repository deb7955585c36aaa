package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultServerURL      = "http://127.0.0.1:8000"
	defaultRequestTimeout = 10_000
	defaultDeliveryDelay  = 500
)

// Config represents the global ~/.schat/config.toml.
type Config struct {
	// ServerURL is the base URL of the SecureChat server.
	ServerURL string `toml:"server_url"`
	// DefaultProfile is used when no --profile flag is passed.
	DefaultProfile string `toml:"default_profile"`
	// RequestTimeoutMS bounds every gateway call.
	RequestTimeoutMS int `toml:"request_timeout_ms"`
	// DeliveryDelayMS is the delay before a sent message is shown as delivered.
	DeliveryDelayMS int `toml:"delivery_delay_ms"`
}

// Default returns a config with all defaults applied.
func Default() *Config {
	return &Config{
		ServerURL:        defaultServerURL,
		RequestTimeoutMS: defaultRequestTimeout,
		DeliveryDelayMS:  defaultDeliveryDelay,
	}
}

// Load reads config from the given path and fills unset fields with defaults.
// Returns an error if the file is missing or malformed.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadOrDefault reads config from path, falling back to Default when the
// file does not exist. The SCHAT_SERVER_URL environment variable, when set,
// overrides server_url from either source.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		cfg = Default()
	}
	if url := os.Getenv("SCHAT_SERVER_URL"); url != "" {
		cfg.ServerURL = url
	}
	return cfg
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// RequestTimeout returns the gateway request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// DeliveryDelay returns the sent-to-delivered delay as a duration.
func (c *Config) DeliveryDelay() time.Duration {
	return time.Duration(c.DeliveryDelayMS) * time.Millisecond
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = defaultServerURL
	}
	if c.RequestTimeoutMS <= 0 {
		c.RequestTimeoutMS = defaultRequestTimeout
	}
	if c.DeliveryDelayMS <= 0 {
		c.DeliveryDelayMS = defaultDeliveryDelay
	}
}
