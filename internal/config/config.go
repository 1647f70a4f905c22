// Package config loads anchorpad settings from defaults, an optional
// anchorpad.toml and ANCHORPAD_* environment variables, in that order of
// precedence.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Engine names.
const (
	EngineRuby       = "ruby"
	EngineJavaScript = "javascript"
)

// FileName is the config file searched for when no path is given.
const FileName = "anchorpad"

// minRubyVersion is the oldest ruby.wasm line with a wasip1 build.
const minRubyVersion = ">= 3.2"

type Config struct {
	Engine     string           `mapstructure:"engine"`
	Server     ServerConfig     `mapstructure:"server"`
	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Serializer SerializerConfig `mapstructure:"serializer"`
	Playground PlaygroundConfig `mapstructure:"playground"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// Origin prefixes share links. Empty means the request's own origin.
	Origin string `mapstructure:"origin"`
	// RateLimit is evaluations per second allowed per client on the HTTP API.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

type RuntimeConfig struct {
	RubyVersion string `mapstructure:"ruby_version"`
	// Version is the ruby.wasm release tag.
	Version  string `mapstructure:"version"`
	URL      string `mapstructure:"url"`
	Checksum string `mapstructure:"checksum"`
	// Dir points at an already extracted runtime and skips the download.
	Dir           string `mapstructure:"dir"`
	CacheDir      string `mapstructure:"cache_dir"`
	MemoryLimitMB uint32 `mapstructure:"memory_limit_mb"`
}

type SerializerConfig struct {
	ArrayBracketNotation bool `mapstructure:"array_bracket_notation"`
	MaybeAsUnion         bool `mapstructure:"maybe_as_union"`
}

type PlaygroundConfig struct {
	Debounce    time.Duration `mapstructure:"debounce"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	EvalTimeout time.Duration `mapstructure:"eval_timeout"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	Retry       bool          `mapstructure:"retry"`
}

// SetDefaults registers every key with its default value. Keys without a
// default are invisible to environment overrides.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("engine", EngineRuby)

	v.SetDefault("server.address", "127.0.0.1:8080")
	v.SetDefault("server.origin", "")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)

	v.SetDefault("runtime.ruby_version", "3.4")
	v.SetDefault("runtime.version", "2.7.1")
	v.SetDefault("runtime.url", "")
	v.SetDefault("runtime.checksum", "")
	v.SetDefault("runtime.dir", "")
	v.SetDefault("runtime.cache_dir", "")
	v.SetDefault("runtime.memory_limit_mb", 0)

	v.SetDefault("serializer.array_bracket_notation", false)
	v.SetDefault("serializer.maybe_as_union", false)

	v.SetDefault("playground.debounce", "500ms")
	v.SetDefault("playground.max_wait", "0s")
	v.SetDefault("playground.eval_timeout", "0s")
	v.SetDefault("playground.load_timeout", "0s")
	v.SetDefault("playground.retry", true)
}

// New returns a viper instance with defaults and environment binding. When
// path is empty, anchorpad.toml is searched in the working directory and
// the user config directory.
func New(path string) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ANCHORPAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		return v
	}
	v.SetConfigName(FileName)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "anchorpad"))
	}
	return v
}

// Load reads configuration. A missing file is only an error when path
// names it explicitly.
func Load(path string) (*Config, error) {
	v := New(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

// LoadWithViper unmarshals and validates the settings held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail much later.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineRuby, EngineJavaScript:
	default:
		return errors.WithHint(
			errors.Newf("unknown engine %q", c.Engine),
			"use ruby or javascript")
	}

	if c.Server.Address == "" {
		return errors.New("server.address is empty")
	}
	if c.Server.RateLimit <= 0 {
		return errors.Newf("server.rate_limit must be positive, got %v", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		return errors.Newf("server.rate_burst must be at least 1, got %d", c.Server.RateBurst)
	}

	ruby, err := semver.NewVersion(c.Runtime.RubyVersion)
	if err != nil {
		return errors.Wrapf(err, "runtime.ruby_version %q", c.Runtime.RubyVersion)
	}
	constraint, err := semver.NewConstraint(minRubyVersion)
	if err != nil {
		return errors.Wrap(err, "ruby version constraint")
	}
	if !constraint.Check(ruby) {
		return errors.Newf("runtime.ruby_version %s is older than 3.2", ruby)
	}
	if _, err := semver.NewVersion(c.Runtime.Version); err != nil {
		return errors.Wrapf(err, "runtime.version %q", c.Runtime.Version)
	}
	if c.Runtime.Checksum != "" && !strings.Contains(c.Runtime.Checksum, ":") {
		return errors.WithHint(
			errors.Newf("runtime.checksum %q has no type", c.Runtime.Checksum),
			"write it as sha256:<hex>")
	}

	p := c.Playground
	for name, d := range map[string]time.Duration{
		"playground.debounce":     p.Debounce,
		"playground.max_wait":     p.MaxWait,
		"playground.eval_timeout": p.EvalTimeout,
		"playground.load_timeout": p.LoadTimeout,
	} {
		if d < 0 {
			return errors.Newf("%s must not be negative, got %s", name, d)
		}
	}
	return nil
}
