package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.Bool("stdout", false, "")
	fs.String("format", FormatConcat, "")
	fs.StringSlice("event-ids", nil, "")
	fs.Int64("output-max-bytes", 0, "")
	fs.String("log-level", "info", "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", testFlags())
	require.NoError(t, err)

	assert.Equal(t, FormatConcat, cfg.Format)
	assert.Equal(t, "auto", cfg.Source)
	assert.Equal(t, 5, cfg.OutputMaxFiles)
	assert.Equal(t, []string{"filter_redact"}, cfg.Transforms)
	assert.Empty(t, cfg.FilterEventIDs)
	assert.False(t, cfg.Stdout)
	require.NoError(t, Validate(cfg))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evtx2json.yaml")
	content := "format: jsonl\nchannels:\n  - Security\n  - System\nlog_level: warn\nredact_keys: [IpAddress]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("EVTX2JSON_LOG_LEVEL", "debug")
	t.Setenv("EVTX2JSON_EVENT_IDS", "4624,4625")

	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--format", "array"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, FormatArray, cfg.Format, "flag beats file")
	assert.Equal(t, "debug", cfg.LogLevel, "env beats file")
	assert.Equal(t, []string{"4624", "4625"}, cfg.FilterEventIDs)
	assert.Equal(t, []string{"Security", "System"}, cfg.FilterChannels)
	assert.Equal(t, []string{"IpAddress"}, cfg.RedactKeys)
}

func TestLoadFlagLists(t *testing.T) {
	fs := testFlags()
	require.NoError(t, fs.Parse([]string{"--event-ids", "4688", "--event-ids", "1", "--stdout"}))

	cfg, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"4688", "1"}, cfg.FilterEventIDs)
	assert.True(t, cfg.Stdout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Format = "xml" }, `invalid format "xml"`},
		{"bad source", func(c *Config) { c.Source = "etl" }, `invalid source "etl"`},
		{"negative size", func(c *Config) { c.OutputMaxB = -1 }, "output_max_bytes cannot be negative"},
		{"array rotation", func(c *Config) { c.Format = FormatArray; c.OutputMaxB = 10 }, "array format"},
		{"event id text", func(c *Config) { c.FilterEventIDs = []string{"logon"} }, `invalid event id "logon"`},
		{"event id range", func(c *Config) { c.FilterEventIDs = []string{"70000"} }, `invalid event id "70000"`},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, `invalid log_level "trace"`},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, `invalid log_format "xml"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Format = "csv"
	cfg.LogLevel = "loud"
	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Contains(t, err.Error(), "invalid log_level")
}
