package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/ritzau/filestatus/pkg/logging"
)

// FileName is the optional config file, looked up in the working directory
const FileName = "filestatus.toml"

// EnvPrefix prefixes environment overrides, e.g. FILESTATUS_PULL_REQUEST=true
const EnvPrefix = "FILESTATUS_"

// Config holds all configuration for the application
type Config struct {
	Workspace   string   `koanf:"workspace"`
	Project     string   `koanf:"project"`
	Report      string   `koanf:"report"`
	Store       string   `koanf:"store"`
	PullRequest bool     `koanf:"pull-request"`
	Record      bool     `koanf:"record"`
	Exclude     []string `koanf:"exclude"`
	Workers     int      `koanf:"workers"`

	Port  int  `koanf:"port"`
	Watch bool `koanf:"watch"`
	List  bool `koanf:"list"`

	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	JSONLogs   bool   `koanf:"json-logs"`
	LogFile    string `koanf:"log-file"`
	LogMaxSize int    `koanf:"log-max-size"`
}

// Defaults returns the built-in configuration values
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"workspace":    ".",
		"project":      "",
		"report":       "",
		"store":        "",
		"pull-request": false,
		"record":       false,
		"exclude":      []string{},
		"workers":      4,
		"port":         8080,
		"watch":        false,
		"list":         false,
		"verbosity":    "",
		"verbose":      0,
		"json-logs":    false,
		"log-file":     "",
		"log-max-size": 10,
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return load(FileName, f)
}

func load(configFile string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// A missing file is fine, a broken one is not
	if err := k.Load(file.Provider(configFile), toml.Parser()); err != nil && !isNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", configFile, err)
	}

	// 3. Environment Variables
	// FILESTATUS_LOG_FILE -> log-file, FILESTATUS_EXCLUDE=a,b -> [a b]
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "_", "-")
		if key == "exclude" {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// Unmarshal into struct
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects values no command can run with
func (c *Config) Validate() error {
	var errs []error
	if c.Workspace == "" {
		errs = append(errs, errors.New("workspace must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.LogMaxSize < 1 {
		errs = append(errs, fmt.Errorf("log-max-size must be positive, got %d", c.LogMaxSize))
	}
	if c.Verbosity != "" {
		if _, err := logging.ParseLevel(c.Verbosity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogLevel resolves the log level. An explicit verbosity wins over the
// -v count: none is info, one is debug, more is trace.
func (c *Config) LogLevel() slog.Level {
	if c.Verbosity != "" {
		if level, err := logging.ParseLevel(c.Verbosity); err == nil {
			return level
		}
	}
	switch {
	case c.VerboseCnt >= 2:
		return logging.LevelTrace
	case c.VerboseCnt == 1:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// LoggingOptions maps the config onto logging options
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:     c.LogLevel(),
		JSON:      c.JSONLogs,
		File:      c.LogFile,
		MaxSizeMB: c.LogMaxSize,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
