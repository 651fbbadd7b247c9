package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/feedstats/internal/logging"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrInvalidMode    = errors.New("invalid mode")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Environment variables that override file values.
const (
	EnvAPIKey   = "FEEDSTATS_API_KEY"
	EnvClientID = "FEEDSTATS_CLIENT_ID"
)

// Defaults.
const (
	DefaultFeedURL          = "wss://dataservices.btgpactualsolutions.com/stream/v2/marketdata/book/options"
	DefaultAuthURL          = "https://dataservices.btgpactualsolutions.com/api/v2/authenticate"
	DefaultHandshakeTimeout = 45 * time.Second
	DefaultSinkCapacity     = 10000
	DefaultDrainTimeout     = 2 * time.Second
	DefaultReportInterval   = 5 * time.Second
	DefaultColor            = "auto"
	DefaultLogLevel         = "info"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// LoadConfig loads a configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Defaults are applied to the result; call Validate before use.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data, validating its structure against
// the embedded schema.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*Config, error) {
	var raw interface{}

	ext := strings.ToLower(filepath.Ext(path))
	isJSON := ext == ".json"
	if isJSON {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	var config Config

	// An empty document is a valid, all-defaults configuration.
	if raw != nil {
		doc, err := toJSONDocument(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalise config: %w", err)
		}
		if err := validateDocument(doc); err != nil {
			return nil, err
		}

		if isJSON {
			err = json.Unmarshal(data, &config)
		} else {
			err = yaml.Unmarshal(data, &config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}

	ApplyDefaults(&config)
	return &config, nil
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(config *Config) {
	if config.Mode == "" {
		config.Mode = ModeBoth
	}

	if config.Feed.URL == "" {
		config.Feed.URL = DefaultFeedURL
	}
	if config.Feed.AuthURL == "" {
		config.Feed.AuthURL = DefaultAuthURL
	}
	if config.Feed.HandshakeTimeout == 0 {
		config.Feed.HandshakeTimeout = Duration(DefaultHandshakeTimeout)
	}

	if config.Sink.Capacity == 0 {
		config.Sink.Capacity = DefaultSinkCapacity
	}
	if config.Sink.DrainTimeout == 0 {
		config.Sink.DrainTimeout = Duration(DefaultDrainTimeout)
	}

	if config.Report.Interval == 0 {
		config.Report.Interval = Duration(DefaultReportInterval)
	}
	if config.Report.Color == "" {
		config.Report.Color = DefaultColor
	}

	if config.Log.Level == "" {
		config.Log.Level = DefaultLogLevel
	}
}

// ApplyEnv overrides credentials from the environment. lookup is usually
// os.LookupEnv.
func ApplyEnv(config *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		config.Feed.APIKey = v
	}
	if v, ok := lookup(EnvClientID); ok && v != "" {
		config.Feed.ClientID = v
	}
}

// Validate checks a defaulted configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func Validate(config *Config) error {
	errs := &ValidationErrors{}

	if _, err := ParseMode(string(config.Mode)); err != nil {
		errs.Add("mode", err.Error())
	}
	if config.Universe < 0 {
		errs.Add("universe", "must not be negative")
	}

	if config.Feed.Input == "" {
		if config.Feed.URL == "" {
			errs.Add("feed.url", "url is required when no input is set")
		} else if err := validateURL(config.Feed.URL, "ws", "wss"); err != nil {
			errs.Add("feed.url", err.Error())
		}
		if config.Feed.HasCredentials() {
			if err := validateURL(config.Feed.AuthURL, "http", "https"); err != nil {
				errs.Add("feed.authUrl", err.Error())
			}
		}
	}
	if (config.Feed.APIKey == "") != (config.Feed.ClientID == "") {
		errs.Add("feed", "apiKey and clientId must be set together")
	}
	if config.Feed.ReplayRate < 0 {
		errs.Add("feed.replayRate", "must not be negative")
	}
	if config.Feed.HandshakeTimeout < 0 {
		errs.Add("feed.handshakeTimeout", "must not be negative")
	}

	if config.Sink.Capacity <= 0 {
		errs.Add("sink.capacity", "must be at least 1")
	}
	if config.Sink.DrainTimeout < 0 {
		errs.Add("sink.drainTimeout", "must not be negative")
	}

	if config.Report.Interval <= 0 {
		errs.Add("report.interval", "must be positive")
	}
	switch config.Report.Color {
	case "auto", "always", "never":
	default:
		errs.Add("report.color", fmt.Sprintf("unknown color mode %q", config.Report.Color))
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		errs.Add("log.level", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	for _, s := range schemes {
		if strings.EqualFold(u.Scheme, s) {
			if u.Host == "" {
				return fmt.Errorf("URL %q has no host", raw)
			}
			return nil
		}
	}
	return fmt.Errorf("URL scheme must be one of %s", strings.Join(schemes, ", "))
}
