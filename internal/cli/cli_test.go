package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/feedstats/internal/config"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_Help(t *testing.T) {
	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "feedstats")
	assert.Contains(t, out, "run")
	assert.Contains(t, out, "validate")
}

func TestRunCmd_Replay(t *testing.T) {
	input := writeFile(t, "capture.jsonl", strings.Join([]string{
		`{"ev":"get_last_event","status":"success","message":{"ev":"book","symb":"A"}}`,
		`{"ev":"book","symb":"A"}`,
		`{"ev":"book","symb":"B"}`,
	}, "\n"))

	out, _, err := execute(t, "run", "--input", input, "--universe", "4", "--mode", "stats", "--no-color", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "Got 4 instruments.")
	assert.Contains(t, out, "[STATS @")
	assert.Contains(t, out, "50.00%")
	assert.NotContains(t, out, "WS: ")
}

func TestRunCmd_ReplayFromConfig(t *testing.T) {
	input := writeFile(t, "capture.jsonl", `{"ev":"book","symb":"A"}`+"\n")
	cfgPath := writeFile(t, "feedstats.yaml", "mode: ws\nuniverse: 1\nfeed:\n  input: "+input+"\nlog:\n  level: error\n")

	out, _, err := execute(t, "run", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `WS: {"ev":"book","symb":"A"}`)
	assert.NotContains(t, out, "[STATS @")
}

func TestRunCmd_InvalidFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"bad mode", []string{"run", "--input", "-", "--mode", "loud"}, config.ErrInvalidMode},
		{"bad log level", []string{"run", "--input", "-", "--log-level", "chatty"}, config.ErrInvalidConfig},
		{"missing config", []string{"run", "--config", "/nonexistent/feedstats.yaml"}, config.ErrConfigNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidateCmd(t *testing.T) {
	good := writeFile(t, "good.yaml", "mode: stats\nreport:\n  interval: 2s\n")
	out, _, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid (mode stats)")

	bad := writeFile(t, "bad.yaml", "sink:\n  capacity: 0\n")
	_, _, err = execute(t, "validate", "--config", bad)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, _, err = execute(t, "validate")
	assert.ErrorIs(t, err, errConfigRequired)
}

func TestRootCmd_Version(t *testing.T) {
	out, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, version)
}
