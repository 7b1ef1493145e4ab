// Package config loads the barfeed server configuration from a YAML file,
// with the Polygon API key taken from the environment or a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yitech/barfeed/logging"
	"github.com/yitech/barfeed/resolution"
)

// APIKeyEnv overrides api_key when set.
const APIKeyEnv = "POLYGON_API_KEY"

type Config struct {
	APIKey      string        `yaml:"api_key"`
	RESTBaseURL string        `yaml:"rest_base_url"`
	WSURL       string        `yaml:"ws_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	Realtime             bool          `yaml:"realtime"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	PollWindow           time.Duration `yaml:"poll_window"`
	FetchTimeout         time.Duration `yaml:"fetch_timeout"`
	SearchDebounce       time.Duration `yaml:"search_debounce"`
	ChannelType          string        `yaml:"channel_type"`
	StreamingResolutions []string      `yaml:"streaming_resolutions"`

	Symbol struct {
		PrefixLen int    `yaml:"prefix_len"`
		SuffixLen int    `yaml:"suffix_len"`
		Quote     string `yaml:"quote"`
	} `yaml:"symbol"`

	Listen  string         `yaml:"listen"`
	Log     logging.Config `yaml:"log"`
	Tracing bool           `yaml:"tracing"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		RESTBaseURL:          "https://api.polygon.io",
		WSURL:                "wss://socket.polygon.io/crypto",
		HTTPTimeout:          30 * time.Second,
		PollInterval:         15 * time.Second,
		PollWindow:           120 * time.Second,
		FetchTimeout:         30 * time.Second,
		SearchDebounce:       250 * time.Millisecond,
		ChannelType:          "XA",
		StreamingResolutions: []string{"1D"},
		Listen:               ":50051",
		Log:                  logging.Config{Level: "info", Format: "text"},
	}
	cfg.Symbol.PrefixLen = 2
	cfg.Symbol.SuffixLen = 3
	cfg.Symbol.Quote = "-USD"
	return cfg
}

// Load reads path over the defaults. An empty path yields the defaults.
// A .env file in the working directory is loaded if present, and
// POLYGON_API_KEY wins over the file's api_key.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if v := os.Getenv(APIKeyEnv); v != "" {
		cfg.APIKey = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("config: api_key is required (set api_key or " + APIKeyEnv + ")")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.PollWindow <= 0 {
		return fmt.Errorf("config: poll_window must be positive, got %s", c.PollWindow)
	}
	if c.Symbol.PrefixLen < 0 || c.Symbol.SuffixLen < 0 {
		return fmt.Errorf("config: symbol prefix_len and suffix_len must not be negative")
	}
	if len(c.StreamingResolutions) == 0 {
		return errors.New("config: streaming_resolutions must list at least one resolution")
	}
	for _, r := range c.StreamingResolutions {
		if _, err := resolution.Map(r); err != nil {
			return fmt.Errorf("config: streaming_resolutions: %w", err)
		}
	}
	if c.Realtime && c.WSURL == "" {
		return errors.New("config: ws_url is required in realtime mode")
	}
	if c.Listen == "" {
		return errors.New("config: listen address is required")
	}
	return nil
}
