// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/jeranaias/streamchat/internal/fixtures"
	"github.com/jeranaias/streamchat/internal/stream"
	"github.com/jeranaias/streamchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete streamchat configuration.
type Config struct {
	Stream   StreamConfig   `toml:"stream" json:"stream"`
	Fixtures FixturesConfig `toml:"fixtures" json:"fixtures"`
	Server   ServerConfig   `toml:"server" json:"server"`
	UI       UIConfig       `toml:"ui" json:"ui"`
	Log      LogConfig      `toml:"log" json:"log"`
}

// StreamConfig tunes simulated response delivery.
type StreamConfig struct {
	// WordCount is the number of words delivered per response.
	WordCount int `toml:"word_count" json:"word_count"`
	// ChunkSize is the number of words released per tick.
	ChunkSize int `toml:"chunk_size" json:"chunk_size"`
	// TickIntervalMs is the delivery timer period.
	TickIntervalMs int `toml:"tick_interval_ms" json:"tick_interval_ms"`
	// FrameIntervalMs is the redraw clock; sink writes happen at most once per frame.
	FrameIntervalMs int `toml:"frame_interval_ms" json:"frame_interval_ms"`
	// FetchLatencyMs simulates backend latency before the first word (0 = none).
	FetchLatencyMs int `toml:"fetch_latency_ms" json:"fetch_latency_ms"`
}

// FixturesConfig controls generated conversation history.
type FixturesConfig struct {
	HistoryWords int `toml:"history_words" json:"history_words"`
	MinWords     int `toml:"min_words" json:"min_words"`
	MaxWords     int `toml:"max_words" json:"max_words"`
	// Seed makes history reproducible; 0 draws a new history every run.
	Seed uint64 `toml:"seed" json:"seed"`
}

// ServerConfig configures the web server.
type ServerConfig struct {
	Addr string `toml:"addr" json:"addr"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
}

// UIConfig configures the terminal UI.
type UIConfig struct {
	// Theme is "auto", "dark" or "light".
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders finished responses with glamour.
	Markdown bool `toml:"markdown" json:"markdown"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `toml:"level" json:"level"`
	// File receives JSON logs. Empty logs to stderr in line mode and
	// nowhere in the terminal UI.
	File string `toml:"file" json:"file"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			WordCount:       stream.DefaultWordCount,
			ChunkSize:       stream.DefaultChunkSize,
			TickIntervalMs:  int(stream.DefaultTickInterval / time.Millisecond),
			FrameIntervalMs: int(stream.DefaultFrameInterval / time.Millisecond),
		},
		Fixtures: FixturesConfig{
			HistoryWords: fixtures.DefaultHistoryWords,
			MinWords:     fixtures.DefaultMinWords,
			MaxWords:     fixtures.DefaultMaxWords,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:8787",
			RateLimit: 20,
			RateBurst: 40,
		},
		UI: UIConfig{
			Theme:    "auto",
			Markdown: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Options converts the section to stream controller options.
func (s StreamConfig) Options() stream.Options {
	return stream.Options{
		WordCount:    s.WordCount,
		ChunkSize:    s.ChunkSize,
		TickInterval: time.Duration(s.TickIntervalMs) * time.Millisecond,
	}
}

// FrameInterval returns the frame clock period.
func (s StreamConfig) FrameInterval() time.Duration {
	return time.Duration(s.FrameIntervalMs) * time.Millisecond
}

// FetchLatency returns the simulated fetch delay.
func (s StreamConfig) FetchLatency() time.Duration {
	return time.Duration(s.FetchLatencyMs) * time.Millisecond
}

// Options converts the section to fixture generation options.
func (f FixturesConfig) Options() fixtures.Options {
	return fixtures.Options{
		HistoryWords: f.HistoryWords,
		MinWords:     f.MinWords,
		MaxWords:     f.MaxWords,
		Seed:         f.Seed,
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the streamchat configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "could not determine home directory")
	}
	return filepath.Join(home, ".streamchat"), nil
}

// PathTOML returns the path of the TOML config file.
func PathTOML() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// PathJSON returns the path of the JSON config file.
func PathJSON() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.streamchat/config.toml, falling back to config.json and then
// to defaults. It also returns the path that was read, or "" for defaults.
func Load() (*Config, string, error) {
	for _, pathFn := range []func() (string, error){PathTOML, PathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		cfg, err := LoadFromPath(path)
		return cfg, path, err
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, "", errors.Wrap(err, "invalid config")
	}
	return cfg, "", nil
}

// LoadFromPath loads configuration from path. Files ending in .json are
// decoded as JSON, anything else as TOML. Keys missing from the file keep
// their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "decode JSON config %s", path)
		}
	} else {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "decode TOML config %s", path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, ValidateErrors{{Field: strings.Join(keys, ", "), Message: "unknown key"}}
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes cfg to ~/.streamchat/config.toml.
func Save(cfg *Config) error {
	path, err := PathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML atomically writes cfg to path as TOML.
func SaveTOML(cfg *Config, path string) error {
	data, err := cfg.TOML()
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}
	return nil
}

// TOML encodes cfg with a header comment.
func (c *Config) TOML() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# streamchat configuration file\n")
	buf.WriteString("# Intervals are in milliseconds.\n\n")

	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, errors.Wrap(err, "encode config")
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid setting.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs ValidateErrors
	bad := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Stream
	if c.Stream.WordCount < 1 || c.Stream.WordCount > 10_000_000 {
		bad("stream.word_count", "must be between 1 and 10000000, got %d", c.Stream.WordCount)
	}
	if c.Stream.ChunkSize < 1 {
		bad("stream.chunk_size", "must be at least 1, got %d", c.Stream.ChunkSize)
	}
	if c.Stream.TickIntervalMs < 1 || c.Stream.TickIntervalMs > 60_000 {
		bad("stream.tick_interval_ms", "must be between 1 and 60000, got %d", c.Stream.TickIntervalMs)
	}
	if c.Stream.FrameIntervalMs < 1 || c.Stream.FrameIntervalMs > 1_000 {
		bad("stream.frame_interval_ms", "must be between 1 and 1000, got %d", c.Stream.FrameIntervalMs)
	}
	if c.Stream.FetchLatencyMs < 0 || c.Stream.FetchLatencyMs > 60_000 {
		bad("stream.fetch_latency_ms", "must be between 0 and 60000, got %d", c.Stream.FetchLatencyMs)
	}

	// Fixtures
	if c.Fixtures.HistoryWords < 0 {
		bad("fixtures.history_words", "must not be negative, got %d", c.Fixtures.HistoryWords)
	}
	if c.Fixtures.MinWords < 1 {
		bad("fixtures.min_words", "must be at least 1, got %d", c.Fixtures.MinWords)
	}
	if c.Fixtures.MaxWords < c.Fixtures.MinWords {
		bad("fixtures.max_words", "must be at least min_words (%d), got %d", c.Fixtures.MinWords, c.Fixtures.MaxWords)
	}

	// Server
	if _, port, err := net.SplitHostPort(c.Server.Addr); err != nil {
		bad("server.addr", "invalid address '%s': %v", c.Server.Addr, err)
	} else if n, err := strconv.Atoi(port); err != nil || n < 0 || n > 65535 {
		bad("server.addr", "invalid port '%s'", port)
	}
	if c.Server.RateLimit < 0 {
		bad("server.rate_limit", "must not be negative, got %g", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		bad("server.rate_burst", "must be at least 1 when rate_limit is set, got %d", c.Server.RateBurst)
	}

	// UI
	switch strings.ToLower(c.UI.Theme) {
	case "auto", "dark", "light":
	default:
		bad("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		bad("log.level", "invalid level '%s', must be one of: trace, debug, info, warn, error, disabled", c.Log.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills empty string settings with their defaults. Numeric zero
// values are left for Validate to reject.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// envPrefix prefixes every environment override.
const envPrefix = "STREAMCHAT_"

// ApplyEnvOverrides applies STREAMCHAT_<SECTION>_<KEY> variables, for
// example STREAMCHAT_STREAM_WORD_COUNT=500 or STREAMCHAT_SERVER_ADDR=:9000.
// Unparseable values are ignored.
func (c *Config) ApplyEnvOverrides() {
	for _, key := range Keys() {
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if value, ok := os.LookupEnv(name); ok && value != "" {
			_ = c.Set(key, value)
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Keys returns every configuration key in dot notation.
func Keys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		prefix := section.Tag.Get("toml")
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, prefix+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Get returns the value at key, e.g. "stream.chunk_size".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns value to key. String values are parsed to the field type.
func (c *Config) Set(key string, value any) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return errors.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return reflect.Value{}, errors.Errorf("invalid key: %s (want section.name)", key)
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		v = v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !v.IsValid() {
			return reflect.Value{}, errors.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, errors.Errorf("field '%s' is a section", key)
	}
	return v, nil
}

// normalizeFieldName converts snake_case or kebab-case to a Go field name.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		result.WriteString(strings.ToUpper(part[:1]))
		result.WriteString(strings.ToLower(part[1:]))
	}
	return result.String()
}

// setFieldValue assigns value to field, parsing strings as needed.
func setFieldValue(field reflect.Value, value any) error {
	if s, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(s)
			return nil
		case reflect.Int, reflect.Int64:
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return errors.Wrap(err, "invalid integer value")
			}
			field.SetInt(n)
			return nil
		case reflect.Uint64:
			n, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return errors.Wrap(err, "invalid unsigned integer value")
			}
			field.SetUint(n)
			return nil
		case reflect.Float64:
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return errors.Wrap(err, "invalid float value")
			}
			field.SetFloat(f)
			return nil
		case reflect.Bool:
			b, err := strconv.ParseBool(strings.ToLower(s))
			if err != nil {
				return errors.Wrap(err, "invalid boolean value")
			}
			field.SetBool(b)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return errors.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return errors.Errorf("cannot assign %T to %s", value, field.Type())
}
