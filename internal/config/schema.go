// Package config loads and validates the feedstats configuration file.
//
// Files are YAML or JSON, chosen by extension. A document is first checked
// structurally against an embedded JSON Schema, then decoded, defaulted and
// checked semantically by Validate.
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Mode selects what the output stream carries.
type Mode string

const (
	// ModeStats emits periodic reports only.
	ModeStats Mode = "stats"
	// ModeWS emits raw feed lines only.
	ModeWS Mode = "ws"
	// ModeBoth emits raw lines and reports.
	ModeBoth Mode = "both"
)

// ParseMode parses stats, ws or both.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeStats, ModeWS, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q (want stats, ws or both)", ErrInvalidMode, s)
	}
}

// ReportEnabled reports whether periodic reports are written.
func (m Mode) ReportEnabled() bool {
	return m != ModeWS
}

// Verbose reports whether raw feed lines are written.
func (m Mode) Verbose() bool {
	return m != ModeStats
}

// Config is the top-level configuration.
type Config struct {
	// Mode is stats, ws or both
	Mode Mode `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Universe is the instrument universe for replayed input, where the
	// feed cannot report one
	Universe int `json:"universe,omitempty" yaml:"universe,omitempty"`

	Feed   FeedConfig   `json:"feed,omitempty" yaml:"feed,omitempty"`
	Sink   SinkConfig   `json:"sink,omitempty" yaml:"sink,omitempty"`
	Report ReportConfig `json:"report,omitempty" yaml:"report,omitempty"`
	Server ServerConfig `json:"server,omitempty" yaml:"server,omitempty"`
	Log    LogConfig    `json:"log,omitempty" yaml:"log,omitempty"`
}

// FeedConfig selects and configures the message source.
type FeedConfig struct {
	// URL of the websocket stream
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// AuthURL exchanges APIKey and ClientID for a stream token
	AuthURL  string `json:"authUrl,omitempty" yaml:"authUrl,omitempty"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	ClientID string `json:"clientId,omitempty" yaml:"clientId,omitempty"`

	// Input replays newline-delimited messages from a file ("-" = stdin)
	// instead of connecting to URL
	Input string `json:"input,omitempty" yaml:"input,omitempty"`

	// ReplayRate paces Input at this many lines per second; 0 replays as
	// fast as possible
	ReplayRate float64 `json:"replayRate,omitempty" yaml:"replayRate,omitempty"`

	HandshakeTimeout Duration `json:"handshakeTimeout,omitempty" yaml:"handshakeTimeout,omitempty"`
}

// HasCredentials reports whether a token should be fetched before dialing.
func (f FeedConfig) HasCredentials() bool {
	return f.APIKey != "" && f.ClientID != ""
}

// SinkConfig sizes the output queue.
type SinkConfig struct {
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`

	// DrainTimeout bounds how long shutdown waits for queued output
	DrainTimeout Duration `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty"`
}

// ReportConfig configures the periodic reporter.
type ReportConfig struct {
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// Color is auto, always or never
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// ServerConfig configures the optional HTTP surface.
type ServerConfig struct {
	// Addr to listen on; empty disables the server
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// LogConfig configures diagnostics logging.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
