// Package config loads regindex settings and repository definitions.
//
// The main config file (YAML or TOML, chosen by extension) carries global
// settings and may list repository definitions inline. Further definitions are
// read one per file from the providers directory. Every definition is compiled
// on its own: a bad definition becomes a *ConfigError and that repository is
// reported as disabled while the others load normally.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/regindex/pkg/cache"
	"github.com/glorpus-work/regindex/pkg/errutils"
	"github.com/glorpus-work/regindex/pkg/fsutil"
)

// Config represents the application configuration.
type Config struct {
	// General settings
	Settings Settings `yaml:"settings" toml:"settings"`

	// Repository definitions given inline
	Repositories []*RepositoryConfig `yaml:"repositories,omitempty" toml:"repositories"`
}

// Settings represents general application settings.
type Settings struct {
	// Cache settings
	CacheDir     string  `yaml:"cache_dir,omitempty" toml:"cache_dir"`
	CacheBackend string  `yaml:"cache_backend" toml:"cache_backend"`
	StaleGrace   float64 `yaml:"stale_grace" toml:"stale_grace"`
	// SweepInterval is how often the background sweeper runs; zero disables it.
	SweepInterval          time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
	ServeStaleWhileRefresh *bool         `yaml:"serve_stale_while_refresh,omitempty" toml:"serve_stale_while_refresh"`

	// Repository definitions directory
	ProvidersDir string `yaml:"providers_dir,omitempty" toml:"providers_dir"`

	// Network settings
	HTTPTimeout   time.Duration `yaml:"http_timeout" toml:"http_timeout"`
	QueryTimeout  time.Duration `yaml:"query_timeout" toml:"query_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent" toml:"max_concurrent"`
	UserAgent     string        `yaml:"user_agent,omitempty" toml:"user_agent"`

	// Query settings
	Ranking string `yaml:"ranking" toml:"ranking"`

	// Output settings
	OutputFormat string `yaml:"output_format" toml:"output_format"` // text, json, yaml
	LogLevel     string `yaml:"log_level" toml:"log_level"`         // error, warn, info, debug
}

// Ranking policies for merged query results.
const (
	RankingScore        = "score"
	RankingPriority     = "priority"
	RankingAlphabetical = "alphabetical"
)

// RankingPolicies lists the accepted ranking values.
func RankingPolicies() []string {
	return []string{RankingScore, RankingPriority, RankingAlphabetical}
}

// Default configuration values.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultQueryTimeout bounds a query when the caller sets no deadline.
	DefaultQueryTimeout = 2 * time.Minute

	// DefaultMaxConcurrent is the default number of repositories fetched at once.
	DefaultMaxConcurrent = 8

	// DefaultSweepInterval is the default background sweep period.
	DefaultSweepInterval = 30 * time.Minute

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cacheDir, err := fsutil.GetCacheDir()
	if err != nil {
		cacheDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}
	providersDir, err := fsutil.GetProvidersDir()
	if err != nil {
		providersDir = ""
	}
	serveStale := true

	return &Config{
		Repositories: []*RepositoryConfig{},
		Settings: Settings{
			CacheDir:               cacheDir,
			CacheBackend:           cache.BackendDisk,
			StaleGrace:             cache.DefaultGrace,
			SweepInterval:          DefaultSweepInterval,
			ServeStaleWhileRefresh: &serveStale,
			ProvidersDir:           providersDir,
			HTTPTimeout:            DefaultHTTPTimeout,
			QueryTimeout:           DefaultQueryTimeout,
			MaxConcurrent:          DefaultMaxConcurrent,
			Ranking:                RankingScore,
			OutputFormat:           "text",
			LogLevel:               "info",
		},
	}
}

// ServeStale reports whether stale entries are returned while a refresh runs.
func (s Settings) ServeStale() bool {
	return s.ServeStaleWhileRefresh == nil || *s.ServeStaleWhileRefresh
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errutils.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errutils.Wrap(errutils.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errutils.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file, formatOf(absPath))
}

// LoadConfigFromReader loads configuration in the given format ("yaml" or "toml").
func LoadConfigFromReader(reader io.Reader, format string) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errutils.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := decode(data, format, &config); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errutils.Wrap(errutils.ErrConfigEncode, err.Error())
	}
	return buf.Bytes(), nil
}

// Validate checks the global settings. Repository definitions are checked
// individually when they are compiled.
func (c *Config) Validate() error {
	if c == nil {
		return errutils.ErrConfigValidation
	}
	s := c.Settings
	switch {
	case s.HTTPTimeout < 0:
		return newConfigError("", "http_timeout", errutils.ErrHTTPTimeoutNegative)
	case s.QueryTimeout < 0:
		return newConfigError("", "query_timeout", errutils.ErrQueryTimeoutNegative)
	case s.MaxConcurrent < 1:
		return newConfigError("", "max_concurrent", errutils.ErrMaxConcurrentInvalid)
	case s.StaleGrace < 1:
		return newConfigError("", "stale_grace", errutils.Wrap(ErrInvalidCache, "stale_grace must be at least 1"))
	case s.SweepInterval < 0:
		return newConfigError("", "sweep_interval", errutils.Wrap(ErrInvalidCache, "sweep_interval cannot be negative"))
	}

	switch strings.ToLower(s.CacheBackend) {
	case cache.BackendMemory, cache.BackendDisk, cache.BackendSQLite:
	default:
		return newConfigError("", "cache_backend", errutils.Wrapf(ErrInvalidBackend, "%q, must be one of: memory, disk, sqlite", s.CacheBackend))
	}

	validRanking := false
	for _, r := range RankingPolicies() {
		validRanking = validRanking || r == s.Ranking
	}
	if !validRanking {
		return newConfigError("", "ranking", errutils.Wrapf(ErrInvalidRanking, "%q, must be one of: %s", s.Ranking, strings.Join(RankingPolicies(), ", ")))
	}

	validFormats := map[string]bool{"text": true, "json": true, "yaml": true}
	if !validFormats[s.OutputFormat] {
		return newConfigError("", "output_format", errutils.ErrInvalidOutputFormatWithDetails(s.OutputFormat))
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return newConfigError("", "log_level", errutils.ErrInvalidLogLevelWithDetails(s.LogLevel))
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	return fsutil.GetConfigFilePath()
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	if c.Settings.CacheBackend == "" {
		c.Settings.CacheBackend = defaults.Settings.CacheBackend
	}
	if c.Settings.StaleGrace == 0 {
		c.Settings.StaleGrace = defaults.Settings.StaleGrace
	}
	if c.Settings.SweepInterval == 0 {
		c.Settings.SweepInterval = defaults.Settings.SweepInterval
	}
	if c.Settings.ServeStaleWhileRefresh == nil {
		c.Settings.ServeStaleWhileRefresh = defaults.Settings.ServeStaleWhileRefresh
	}
	if c.Settings.ProvidersDir == "" {
		c.Settings.ProvidersDir = defaults.Settings.ProvidersDir
	}
	if c.Settings.HTTPTimeout == 0 {
		c.Settings.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if c.Settings.QueryTimeout == 0 {
		c.Settings.QueryTimeout = defaults.Settings.QueryTimeout
	}
	if c.Settings.MaxConcurrent == 0 {
		c.Settings.MaxConcurrent = defaults.Settings.MaxConcurrent
	}
	if c.Settings.Ranking == "" {
		c.Settings.Ranking = defaults.Settings.Ranking
	}
	if c.Settings.OutputFormat == "" {
		c.Settings.OutputFormat = defaults.Settings.OutputFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
	c.Settings.Ranking = strings.ToLower(c.Settings.Ranking)
	c.Settings.CacheBackend = strings.ToLower(c.Settings.CacheBackend)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

func decode(data []byte, format string, out any) error {
	if format == "toml" {
		_, err := toml.Decode(string(data), out)
		return err
	}
	return yaml.Unmarshal(data, out)
}
