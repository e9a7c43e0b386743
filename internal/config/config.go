// Package config loads Parley's layered configuration.
//
// Precedence, lowest first:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/parley/config.yaml)
//  3. Project config (.parley.yaml in the working directory)
//  4. .env file in the working directory
//  5. PARLEY_* environment variables
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	perrors "github.com/parley-chat/parley/internal/errors"
)

const (
	// ProjectConfigName is the per-directory config file.
	ProjectConfigName = ".parley.yaml"
	// EnvFileName is the dotenv file read from the working directory.
	EnvFileName = ".env"
	envPrefix   = "PARLEY_"
)

// Config represents the complete Parley configuration.
type Config struct {
	Version int          `yaml:"version" json:"version" validate:"gte=1"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Store   StoreConfig  `yaml:"store" json:"store"`
	Index   IndexConfig  `yaml:"index" json:"index"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Retry   RetryConfig  `yaml:"retry" json:"retry"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// PathsConfig locates persisted state.
type PathsConfig struct {
	// DataDir holds the message store, the search index and the lock file.
	DataDir string `yaml:"data_dir" json:"data_dir" validate:"required"`
	// LogFile is the rotating log file. Empty disables file logging.
	LogFile string `yaml:"log_file" json:"log_file"`
}

// StoreConfig configures the canonical message store.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "badger".
	Backend string        `yaml:"backend" json:"backend" validate:"oneof=sqlite badger"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// MaxBodyBytes rejects oversized message bodies at ingest. Zero keeps the 64 KiB default.
	MaxBodyBytes int `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gte=0"`
}

// IndexConfig configures the derived search index.
type IndexConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// MaxExpansions bounds the terms a trailing phrase prefix may expand to.
	MaxExpansions int `yaml:"max_expansions" json:"max_expansions" validate:"gte=1,lte=1024"`
}

// SearchConfig configures query execution.
type SearchConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// BreakerFailures is the consecutive failure count that opens the query breaker.
	BreakerFailures int           `yaml:"breaker_failures" json:"breaker_failures" validate:"gte=1"`
	BreakerReset    time.Duration `yaml:"breaker_reset" json:"breaker_reset" validate:"gt=0"`
	MaxQueryLength  int           `yaml:"max_query_length" json:"max_query_length" validate:"gte=1"`
}

// RetryConfig configures the asynchronous index retry queue.
type RetryConfig struct {
	QueueSize    int           `yaml:"queue_size" json:"queue_size" validate:"gte=1"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" validate:"gte=0"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" validate:"gt=0"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay" validate:"gtefield=InitialDelay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier" validate:"gte=1"`
	Jitter       bool          `yaml:"jitter" json:"jitter"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport" validate:"oneof=stdio"`
	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
			LogFile: filepath.Join(parleyHome(), "logs", "parley.log"),
		},
		Store: StoreConfig{
			Backend:      "sqlite",
			Timeout:      5 * time.Second,
			MaxBodyBytes: 64 << 10,
		},
		Index: IndexConfig{
			Timeout:       3 * time.Second,
			MaxExpansions: 50,
		},
		Search: SearchConfig{
			Timeout:         3 * time.Second,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
			MaxQueryLength:  256,
		},
		Retry: RetryConfig{
			QueueSize:    1024,
			MaxRetries:   5,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

func parleyHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".parley")
	}
	return filepath.Join(home, ".parley")
}

// DefaultDataDir returns ~/.parley/data.
func DefaultDataDir() string {
	return filepath.Join(parleyHome(), "data")
}

// GetUserConfigPath returns the user config path, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "parley", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "parley", "config.yaml")
	}
	return filepath.Join(home, ".config", "parley", "config.yaml")
}

// UserConfigExists reports whether the user config file is present.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// Load builds the effective configuration for the given working directory.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ProjectConfigName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	dotenv := map[string]string{}
	if path := filepath.Join(dir, EnvFileName); fileExists(path) {
		vals, err := godotenv.Read(path)
		if err != nil {
			return nil, perrors.ConfigError(fmt.Sprintf("parse %s", path), err)
		}
		dotenv = vals
	}

	// Process environment wins over the .env file.
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnvOverrides(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return perrors.New(perrors.ErrCodeConfigNotFound, fmt.Sprintf("read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return perrors.ConfigError(fmt.Sprintf("parse config file %s", path), err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies every non-zero field of other onto c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = expandHome(other.Paths.DataDir)
	}
	if other.Paths.LogFile != "" {
		c.Paths.LogFile = expandHome(other.Paths.LogFile)
	}

	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Timeout != 0 {
		c.Store.Timeout = other.Store.Timeout
	}
	if other.Store.MaxBodyBytes != 0 {
		c.Store.MaxBodyBytes = other.Store.MaxBodyBytes
	}

	if other.Index.Timeout != 0 {
		c.Index.Timeout = other.Index.Timeout
	}
	if other.Index.MaxExpansions != 0 {
		c.Index.MaxExpansions = other.Index.MaxExpansions
	}

	if other.Search.Timeout != 0 {
		c.Search.Timeout = other.Search.Timeout
	}
	if other.Search.BreakerFailures != 0 {
		c.Search.BreakerFailures = other.Search.BreakerFailures
	}
	if other.Search.BreakerReset != 0 {
		c.Search.BreakerReset = other.Search.BreakerReset
	}
	if other.Search.MaxQueryLength != 0 {
		c.Search.MaxQueryLength = other.Search.MaxQueryLength
	}

	// jitter is a bool: only honored when the retry section is present at all
	r := other.Retry
	if r.QueueSize != 0 || r.MaxRetries != 0 || r.InitialDelay != 0 || r.MaxDelay != 0 || r.Multiplier != 0 || r.Jitter {
		c.Retry.Jitter = r.Jitter
	}
	if r.QueueSize != 0 {
		c.Retry.QueueSize = r.QueueSize
	}
	if r.MaxRetries != 0 {
		c.Retry.MaxRetries = r.MaxRetries
	}
	if r.InitialDelay != 0 {
		c.Retry.InitialDelay = r.InitialDelay
	}
	if r.MaxDelay != 0 {
		c.Retry.MaxDelay = r.MaxDelay
	}
	if r.Multiplier != 0 {
		c.Retry.Multiplier = r.Multiplier
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides reads PARLEY_* keys through lookup.
func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return perrors.ConfigError(envPrefix+name+" must be an integer", err)
		}
		*dst = n
		return nil
	}
	duration := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return perrors.ConfigError(envPrefix+name+" must be a duration", err)
		}
		*dst = d
		return nil
	}

	str("DATA_DIR", &c.Paths.DataDir)
	str("LOG_FILE", &c.Paths.LogFile)
	str("STORE_BACKEND", &c.Store.Backend)
	str("LOG_LEVEL", &c.Server.LogLevel)
	str("TRANSPORT", &c.Server.Transport)
	c.Paths.DataDir = expandHome(c.Paths.DataDir)
	c.Paths.LogFile = expandHome(c.Paths.LogFile)

	for _, step := range []func() error{
		func() error { return duration("STORE_TIMEOUT", &c.Store.Timeout) },
		func() error { return duration("INDEX_TIMEOUT", &c.Index.Timeout) },
		func() error { return duration("SEARCH_TIMEOUT", &c.Search.Timeout) },
		func() error { return integer("RETRY_QUEUE_SIZE", &c.Retry.QueueSize) },
		func() error { return integer("RETRY_MAX_RETRIES", &c.Retry.MaxRetries) },
		func() error { return duration("RETRY_INITIAL_DELAY", &c.Retry.InitialDelay) },
		func() error { return duration("RETRY_MAX_DELAY", &c.Retry.MaxDelay) },
	} {
		if err := step(); err != nil {
			return err
		}
	}

	if v, ok := lookup(envPrefix + "RETRY_JITTER"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return perrors.ConfigError(envPrefix+"RETRY_JITTER must be a boolean", err)
		}
		c.Retry.Jitter = b
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(c.Store.Backend)
	c.Server.LogLevel = strings.ToLower(c.Server.LogLevel)
	c.Server.Transport = strings.ToLower(c.Server.Transport)

	if err := validate.Struct(c); err != nil {
		return perrors.ConfigError("invalid configuration: "+describeValidation(err), err)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s fails %s (got %v)", fieldPath(fe.Namespace()), rule, fe.Value()))
	}
	return strings.Join(parts, "; ")
}

// fieldPath turns "Config.Store.Backend" into "store.backend".
func fieldPath(ns string) string {
	ns = strings.TrimPrefix(ns, "Config.")
	return strings.ToLower(ns)
}

// WriteYAML writes the configuration to a YAML file, creating parent dirs.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
