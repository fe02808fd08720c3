package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EVTX2JSON_FORMAT=jsonl or EVTX2JSON_EVENT_IDS=4624,4625.
const EnvPrefix = "EVTX2JSON"

// Output formats for file destinations.
const (
	FormatConcat = "concat"
	FormatJSONL  = "jsonl"
	FormatArray  = "array"
)

// Config holds conversion runtime options.
type Config struct {
	Stdout         bool   `mapstructure:"stdout" yaml:"stdout,omitempty"`
	Format         string `mapstructure:"format" yaml:"format,omitempty"` // concat|jsonl|array
	Source         string `mapstructure:"source" yaml:"source,omitempty"` // auto|evtx|xml
	Dirty          bool   `mapstructure:"dirty" yaml:"dirty,omitempty"`
	ReportPath     string `mapstructure:"report" yaml:"report,omitempty"`
	MetricsPath    string `mapstructure:"metrics_file" yaml:"metrics_file,omitempty"`
	DLQPath        string `mapstructure:"dlq" yaml:"dlq,omitempty"`
	OutputMaxB     int64  `mapstructure:"output_max_bytes" yaml:"output_max_bytes,omitempty"`
	OutputMaxFiles int    `mapstructure:"output_max_files" yaml:"output_max_files,omitempty"`
	// Record filters; empty means no filtering.
	FilterEventIDs  []string `mapstructure:"event_ids" yaml:"event_ids,omitempty"`
	FilterChannels  []string `mapstructure:"channels" yaml:"channels,omitempty"`
	FilterProviders []string `mapstructure:"providers" yaml:"providers,omitempty"`
	RedactKeys      []string `mapstructure:"redact_keys" yaml:"redact_keys,omitempty"`
	Transforms      []string `mapstructure:"transforms" yaml:"transforms,omitempty"`
	// Logging configuration
	LogLevel  string `mapstructure:"log_level" yaml:"log_level,omitempty"`   // debug, info, warn, error
	LogFormat string `mapstructure:"log_format" yaml:"log_format,omitempty"` // json, text
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Format:         FormatConcat,
		Source:         "auto",
		OutputMaxFiles: 5,
		Transforms:     []string{"filter_redact"},
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("stdout", d.Stdout)
	v.SetDefault("format", d.Format)
	v.SetDefault("source", d.Source)
	v.SetDefault("dirty", d.Dirty)
	v.SetDefault("report", d.ReportPath)
	v.SetDefault("metrics_file", d.MetricsPath)
	v.SetDefault("dlq", d.DLQPath)
	v.SetDefault("output_max_bytes", d.OutputMaxB)
	v.SetDefault("output_max_files", d.OutputMaxFiles)
	v.SetDefault("event_ids", []string{})
	v.SetDefault("channels", []string{})
	v.SetDefault("providers", []string{})
	v.SetDefault("redact_keys", []string{})
	v.SetDefault("transforms", d.Transforms)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// Load resolves the configuration from, in increasing precedence: defaults,
// the config file at path (YAML, JSON or TOML; skipped when path is empty),
// EVTX2JSON_* environment variables and flags that were set explicitly.
// Flag names map to keys with dashes replaced by underscores.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Name == "config" {
				return
			}
			if err := v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return Config{}, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.FilterEventIDs = splitList(cfg.FilterEventIDs)
	cfg.FilterChannels = splitList(cfg.FilterChannels)
	cfg.FilterProviders = splitList(cfg.FilterProviders)
	cfg.RedactKeys = splitList(cfg.RedactKeys)
	cfg.Transforms = splitList(cfg.Transforms)
	return cfg, nil
}

// splitList flattens entries that still carry separators, which happens when
// a list comes from a single environment variable.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		parts := strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || r == ';'
		})
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// Validate checks the configuration for common misconfigurations and returns
// an error describing all issues found.
func Validate(cfg Config) error {
	var errs []string

	switch cfg.Format {
	case "", FormatConcat, FormatJSONL, FormatArray:
	default:
		errs = append(errs, fmt.Sprintf("invalid format %q: must be concat, jsonl, or array", cfg.Format))
	}

	switch strings.ToLower(cfg.Source) {
	case "", "auto", "evtx", "xml":
	default:
		errs = append(errs, fmt.Sprintf("invalid source %q: must be auto, evtx, or xml", cfg.Source))
	}

	if cfg.OutputMaxB < 0 {
		errs = append(errs, fmt.Sprintf("output_max_bytes cannot be negative: %d", cfg.OutputMaxB))
	}
	if cfg.OutputMaxFiles < 0 {
		errs = append(errs, fmt.Sprintf("output_max_files cannot be negative: %d", cfg.OutputMaxFiles))
	}
	// An array cannot be split across files and stay a valid document.
	if cfg.Format == FormatArray && cfg.OutputMaxB > 0 {
		errs = append(errs, "output_max_bytes cannot be used with the array format")
	}

	for _, id := range cfg.FilterEventIDs {
		if _, err := strconv.ParseUint(id, 10, 16); err != nil {
			errs = append(errs, fmt.Sprintf("invalid event id %q: must be a number between 0 and 65535", id))
		}
	}

	if cfg.DLQPath != "" && strings.TrimSpace(cfg.DLQPath) == "" {
		errs = append(errs, "DLQ path cannot be whitespace-only")
	}

	// Validate log level
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.LogLevel != "" && !validLogLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, fmt.Sprintf("invalid log_level %q: must be debug, info, warn, or error", cfg.LogLevel))
	}

	// Validate log format
	validLogFormats := map[string]bool{"json": true, "text": true}
	if cfg.LogFormat != "" && !validLogFormats[strings.ToLower(cfg.LogFormat)] {
		errs = append(errs, fmt.Sprintf("invalid log_format %q: must be json or text", cfg.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
