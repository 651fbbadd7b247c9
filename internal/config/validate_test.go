package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad mode", func(c *Config) { c.Mode = "loud" }, "mode"},
		{"negative universe", func(c *Config) { c.Universe = -1 }, "universe"},
		{"missing url", func(c *Config) { c.Feed.URL = "" }, "feed.url"},
		{"http feed url", func(c *Config) { c.Feed.URL = "http://example.com" }, "feed.url"},
		{"feed url without host", func(c *Config) { c.Feed.URL = "ws://" }, "feed.url"},
		{"half credentials", func(c *Config) { c.Feed.APIKey = "k" }, "feed"},
		{"bad auth url", func(c *Config) {
			c.Feed.APIKey, c.Feed.ClientID, c.Feed.AuthURL = "k", "c", "ftp://x"
		}, "feed.authUrl"},
		{"negative replay rate", func(c *Config) { c.Feed.ReplayRate = -1 }, "feed.replayRate"},
		{"zero capacity", func(c *Config) { c.Sink.Capacity = 0 }, "sink.capacity"},
		{"negative drain", func(c *Config) { c.Sink.DrainTimeout = -1 }, "sink.drainTimeout"},
		{"zero interval", func(c *Config) { c.Report.Interval = 0 }, "report.interval"},
		{"bad color", func(c *Config) { c.Report.Color = "rainbow" }, "report.color"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)

			err := Validate(config)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var verrs *ValidationErrors
			require.ErrorAs(t, err, &verrs)
			require.Len(t, verrs.Errors, 1)
			assert.Equal(t, tt.field, verrs.Errors[0].Field)
		})
	}
}

func TestValidate_InputSkipsURLChecks(t *testing.T) {
	config := Default()
	config.Feed.URL = ""
	config.Feed.Input = "-"
	assert.NoError(t, Validate(config))
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("mode", "bad")
	assert.Equal(t, "validation error on field 'mode': bad", errs.Error())

	errs.Add("", "worse")
	msg := errs.Error()
	assert.True(t, strings.HasPrefix(msg, "2 validation errors:"))
	assert.Contains(t, msg, "2. validation error: worse")
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"stats", "ws", "both", " BOTH "} {
		_, err := ParseMode(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseMode("all")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestMode_Flags(t *testing.T) {
	tests := []struct {
		mode    Mode
		report  bool
		verbose bool
	}{
		{ModeStats, true, false},
		{ModeWS, false, true},
		{ModeBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.report, tt.mode.ReportEnabled())
			assert.Equal(t, tt.verbose, tt.mode.Verbose())
		})
	}
}

func TestSchemaCompiles(t *testing.T) {
	schema, err := configSchema()
	require.NoError(t, err)
	assert.NotNil(t, schema)
}
