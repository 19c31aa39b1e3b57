// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 The Arobito Project

// Package config loads the controller configuration.
//
// Values are layered with knadh/koanf: built-in defaults, then
// controller.yaml from the config directory, then command-line flags that
// were set explicitly. The YAML file is validated against the JSON Schema
// reflected from Config before it is merged.
package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/arobito/arobito/internal/auth"
	"github.com/arobito/arobito/internal/logging"
	"github.com/arobito/arobito/internal/xdg"
)

// FileName is the configuration file inside the config directory.
const FileName = "controller.yaml"

// EnvDatabaseURL supplies credentials.database_url when the file leaves it empty.
const EnvDatabaseURL = "DATABASE_URL"

// Credential backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the controller configuration.
type Config struct {
	Server            ServerConfig      `koanf:"server" json:"server,omitempty" jsonschema:"description=HTTP listener of the control panel"`
	SessionManagement SessionConfig     `koanf:"session_management" json:"session_management,omitempty" jsonschema:"description=Session expiry thresholds"`
	Credentials       CredentialsConfig `koanf:"credentials" json:"credentials,omitempty" jsonschema:"description=Account storage"`
	Log               LogConfig         `koanf:"log" json:"log,omitempty"`
	Metrics           MetricsConfig     `koanf:"metrics" json:"metrics,omitempty"`
	Control           ControlConfig     `koanf:"control" json:"control,omitempty"`
}

// ServerConfig configures the panel HTTP server.
type ServerConfig struct {
	BindIP               string `koanf:"bind_ip" json:"bind_ip,omitempty" jsonschema:"description=Address to bind to,default=0.0.0.0"`
	ListenPort           int    `koanf:"listen_port" json:"listen_port,omitempty" jsonschema:"minimum=1,maximum=65535,default=9812"`
	ShutdownDelaySeconds int    `koanf:"shutdown_delay_seconds" json:"shutdown_delay_seconds,omitempty" jsonschema:"minimum=1,default=10"`
}

// SessionConfig holds the session expiry thresholds in seconds.
type SessionConfig struct {
	MaxAgeSeconds int `koanf:"max_age_seconds" json:"max_age_seconds,omitempty" jsonschema:"minimum=1,default=86400"`
	MaxInactivity int `koanf:"max_inactivity" json:"max_inactivity,omitempty" jsonschema:"description=Seconds a session may stay idle,minimum=1,default=3600"`
}

// CredentialsConfig selects the account repository.
type CredentialsConfig struct {
	Backend     string `koanf:"backend" json:"backend,omitempty" jsonschema:"enum=file,enum=postgres,default=file"`
	File        string `koanf:"file" json:"file,omitempty" jsonschema:"description=Accounts file relative to the config directory,default=users.yaml"`
	DatabaseURL string `koanf:"database_url" json:"database_url,omitempty" jsonschema:"description=PostgreSQL connection URL"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text,default=json"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// MetricsConfig configures the observability server.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Metrics and health listen address; empty disables"`
}

// ControlConfig configures the local control socket.
type ControlConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled,omitempty" jsonschema:"default=true"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			BindIP:               "0.0.0.0",
			ListenPort:           9812,
			ShutdownDelaySeconds: 10,
		},
		SessionManagement: SessionConfig{
			MaxAgeSeconds: int(auth.DefaultSessionMaxAge / time.Second),
			MaxInactivity: int(auth.DefaultSessionMaxInactivity / time.Second),
		},
		Credentials: CredentialsConfig{
			Backend: BackendFile,
			File:    "users.yaml",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9813",
		},
		Control: ControlConfig{
			Enabled: true,
		},
	}
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"bind-ip":             "server.bind_ip",
	"port":                "server.listen_port",
	"shutdown-delay":      "server.shutdown_delay_seconds",
	"credentials-backend": "credentials.backend",
	"database-url":        "credentials.database_url",
	"log-format":          "log.format",
	"log-level":           "log.level",
	"metrics-addr":        "metrics.addr",
}

// RegisterFlags adds the flags that override configuration keys to fs.
// Defaults mirror Default so help output is accurate.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("bind-ip", d.Server.BindIP, "address the panel binds to")
	fs.Int("port", d.Server.ListenPort, "port the panel listens on")
	fs.Int("shutdown-delay", d.Server.ShutdownDelaySeconds, "seconds between a shutdown request and exit")
	fs.String("credentials-backend", d.Credentials.Backend, "account storage (file or postgres)")
	fs.String("database-url", "", "PostgreSQL URL for the postgres backend (default: $DATABASE_URL)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
}

// LoadDotEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_DOTENV_INVALID").With("path", path).Wrap(err)
	}
	return nil
}

// Load reads FileName from dir, creating it empty when missing, and
// layers flags that were set on top. flags may be nil.
func Load(dir string, flags *pflag.FlagSet) (*Config, error) {
	path, err := xdg.ConfigFile(dir, FileName)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the config directory search
	if err != nil {
		return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
	}
	if err := ValidateYAML(data); err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_FILE_INVALID").With("path", path).Wrap(err)
	}
	if cfg.Credentials.DatabaseURL == "" {
		cfg.Credentials.DatabaseURL = os.Getenv(EnvDatabaseURL)
	}
	if cfg.Credentials.File != "" && !filepath.IsAbs(cfg.Credentials.File) {
		cfg.Credentials.File = filepath.Join(dir, cfg.Credentials.File)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the schema cannot express and the ones flags may
// have introduced.
func (c *Config) Validate() error {
	invalid := func(key string, value any, msg string) error {
		return oops.Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf("%s", msg)
	}

	if net.ParseIP(c.Server.BindIP) == nil {
		return invalid("server.bind_ip", c.Server.BindIP, "bind_ip must be an IP address")
	}
	if c.Server.ListenPort < 1 || c.Server.ListenPort > 65535 {
		return invalid("server.listen_port", c.Server.ListenPort, "listen_port must be between 1 and 65535")
	}
	if c.Server.ShutdownDelaySeconds < 1 {
		return invalid("server.shutdown_delay_seconds", c.Server.ShutdownDelaySeconds, "shutdown_delay_seconds must be positive")
	}
	if c.SessionManagement.MaxAgeSeconds < 1 {
		return invalid("session_management.max_age_seconds", c.SessionManagement.MaxAgeSeconds, "max_age_seconds must be positive")
	}
	if c.SessionManagement.MaxInactivity < 1 {
		return invalid("session_management.max_inactivity", c.SessionManagement.MaxInactivity, "max_inactivity must be positive")
	}
	switch c.Credentials.Backend {
	case BackendFile:
		if c.Credentials.File == "" {
			return invalid("credentials.file", c.Credentials.File, "file backend needs credentials.file")
		}
	case BackendPostgres:
		if c.Credentials.DatabaseURL == "" {
			return invalid("credentials.database_url", "", "postgres backend needs credentials.database_url or "+EnvDatabaseURL)
		}
	default:
		return invalid("credentials.backend", c.Credentials.Backend, "backend must be 'file' or 'postgres'")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", c.Log.Format, "format must be 'json' or 'text'")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level, "level must be debug, info, warn or error")
	}
	return nil
}

// ListenAddr returns the panel listen address.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.BindIP, strconv.Itoa(c.Server.ListenPort))
}

// ShutdownDelay returns the delay between a shutdown request and exit.
func (c *Config) ShutdownDelay() time.Duration {
	return time.Duration(c.Server.ShutdownDelaySeconds) * time.Second
}

// SessionPolicy returns the session expiry thresholds.
func (c *Config) SessionPolicy() auth.SessionPolicy {
	return auth.SessionPolicy{
		MaxAge:        time.Duration(c.SessionManagement.MaxAgeSeconds) * time.Second,
		MaxInactivity: time.Duration(c.SessionManagement.MaxInactivity) * time.Second,
	}
}

// LogOptions returns the logger settings.
func (c *Config) LogOptions() (logging.Options, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{Format: c.Log.Format, Level: level}, nil
}
