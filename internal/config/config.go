// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

// Package config loads authgate settings from an optional YAML file, the
// environment and command line flags, in increasing order of precedence.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/authgate/authgate/internal/auth"
	"github.com/authgate/authgate/internal/logging"
)

// Config holds every runtime setting. Keys match the environment variable
// names lower-cased.
type Config struct {
	JWTSecret        string  `koanf:"jwt_secret"`
	JWTExpiresIn     string  `koanf:"jwt_expires_in"`
	MaxLoginAttempts int     `koanf:"max_login_attempts"`
	LockMinutes      int     `koanf:"lock_minutes"`
	DatabaseURL      string  `koanf:"database_url"`
	HTTPAddr         string  `koanf:"http_addr"`
	MetricsAddr      string  `koanf:"metrics_addr"`
	LogFormat        string  `koanf:"log_format"`
	LogLevel         string  `koanf:"log_level"`
	RateLimitRPS     float64 `koanf:"rate_limit_rps"`
	RateLimitBurst   int     `koanf:"rate_limit_burst"`
}

// keys lists the recognized setting names.
var keys = []string{
	"jwt_secret", "jwt_expires_in", "max_login_attempts", "lock_minutes",
	"database_url", "http_addr", "metrics_addr", "log_format", "log_level",
	"rate_limit_rps", "rate_limit_burst",
}

// Default returns the built-in settings. JWTSecret has no default.
func Default() Config {
	return Config{
		JWTExpiresIn:     "1h",
		MaxLoginAttempts: auth.DefaultLockoutThreshold,
		LockMinutes:      int(auth.DefaultLockoutDuration / time.Minute),
		HTTPAddr:         ":3000",
		MetricsAddr:      "127.0.0.1:9100",
		LogFormat:        "json",
		LogLevel:         "info",
		RateLimitRPS:     1,
		RateLimitBurst:   10,
	}
}

// RegisterFlags adds one flag per setting to fs, named with dashes.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("jwt-secret", "", "HS256 signing key")
	fs.String("jwt-expires-in", d.JWTExpiresIn, "token lifetime (Go duration, Nd, or seconds)")
	fs.Int("max-login-attempts", d.MaxLoginAttempts, "consecutive failures that lock an account (1-255)")
	fs.Int("lock-minutes", d.LockMinutes, "lock duration in minutes")
	fs.String("database-url", "", "PostgreSQL URL; empty uses the in-memory store")
	fs.String("http-addr", d.HTTPAddr, "API listen address")
	fs.String("metrics-addr", d.MetricsAddr, "metrics and health listen address; empty disables")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.Float64("rate-limit-rps", d.RateLimitRPS, "login requests per second per client")
	fs.Int("rate-limit-burst", d.RateLimitBurst, "login burst per client")
}

// Load layers the YAML file at path (optional), the environment and the flags
// in fs (optional) over Default. Flags left at their defaults do not override
// file or environment values.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := checkFileKeys(path); err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("source", "environment").Wrap(err)
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !isKnownKey(key) {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode settings").Wrap(err)
	}
	return &cfg, nil
}

// checkFileKeys rejects top-level keys the config file should not carry, so a
// misspelled setting fails loudly instead of silently keeping its default.
func checkFileKeys(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	var doc map[string]any
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
	}

	var unknown []string
	for key := range doc {
		if !isKnownKey(key) {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return oops.Code("CONFIG_INVALID").
			With("path", path).
			With("keys", unknown).
			Errorf("unknown config keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// envKey maps JWT_SECRET to jwt_secret and drops unrelated variables.
func envKey(name string) string {
	key := strings.ToLower(name)
	if !isKnownKey(key) {
		return ""
	}
	return key
}

func isKnownKey(key string) bool {
	return slices.Contains(keys, key)
}

// Validate checks every setting and reports the first problem.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return invalid("jwt_secret", "JWT_SECRET is required")
	}
	if _, err := c.TokenLifetime(); err != nil {
		return err
	}
	if err := c.LockoutPolicy().Validate(); err != nil {
		return invalid("lockout", err.Error())
	}
	if c.HTTPAddr == "" {
		return invalid("http_addr", "HTTP_ADDR cannot be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "LOG_FORMAT must be json or text")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", err.Error())
	}
	if c.RateLimitRPS <= 0 {
		return invalid("rate_limit_rps", "RATE_LIMIT_RPS must be positive")
	}
	if c.RateLimitBurst < 1 {
		return invalid("rate_limit_burst", "RATE_LIMIT_BURST must be at least 1")
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf("%s", msg)
}

// LockoutPolicy returns the policy described by the settings.
func (c *Config) LockoutPolicy() auth.LockoutPolicy {
	return auth.LockoutPolicy{
		Threshold: c.MaxLoginAttempts,
		Duration:  time.Duration(c.LockMinutes) * time.Minute,
	}
}

// TokenLifetime parses JWTExpiresIn. It accepts Go durations ("90m"), whole
// days ("7d") and bare seconds ("3600").
func (c *Config) TokenLifetime() (time.Duration, error) {
	d, err := ParseLifetime(c.JWTExpiresIn)
	if err != nil {
		return 0, oops.Code("CONFIG_INVALID").With("key", "jwt_expires_in").Wrap(err)
	}
	return d, nil
}

// ParseLifetime parses a token lifetime. The result is always positive.
func ParseLifetime(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	switch {
	case s == "":
		return 0, oops.Errorf("lifetime cannot be empty")
	case strings.HasSuffix(s, "d"):
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, oops.With("value", s).Wrapf(err, "invalid day count")
		}
		d = time.Duration(days) * 24 * time.Hour
	default:
		if secs, err := strconv.Atoi(s); err == nil {
			d = time.Duration(secs) * time.Second
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, oops.With("value", s).Wrapf(err, "invalid lifetime")
		}
		d = parsed
	}
	if d <= 0 {
		return 0, oops.With("value", s).Errorf("lifetime must be positive")
	}
	return d, nil
}
