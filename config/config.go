// Package config loads application settings for the contaconmigo CLI from a
// YAML file, a .env file and CONTACONMIGO_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/credential"
)

// EnvPrefix prefixes every environment override, e.g.
// CONTACONMIGO_CLIENT_BASE_URL.
const EnvPrefix = "CONTACONMIGO"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config holds application configuration.
type Config struct {
	Client  contaconmigo.Config `mapstructure:"client"`
	Store   StoreConfig         `mapstructure:"store"`
	Redis   RedisConfig         `mapstructure:"redis"`
	Metrics MetricsConfig       `mapstructure:"metrics"`
	Log     LogConfig           `mapstructure:"log"`
	Audit   AuditConfig         `mapstructure:"audit"`
}

// StoreConfig selects where credentials are kept.
type StoreConfig struct {
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"`
}

// RedisConfig configures the Redis credential store.
type RedisConfig struct {
	Addr       string        `mapstructure:"addr"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	Prefix     string        `mapstructure:"prefix"`
	SessionKey string        `mapstructure:"session_key"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// MetricsConfig toggles Prometheus metrics. When Textfile is set the CLI
// writes the gathered metrics there on exit, in the node_exporter textfile
// collector format.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Textfile string `mapstructure:"textfile"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuditConfig configures the session audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".contaconmigo"), nil
}

func setDefaults(v *viper.Viper, dir string) {
	v.SetDefault("client.base_url", contaconmigo.DefaultBaseURL)
	v.SetDefault("client.timeout", contaconmigo.DefaultTimeout)
	v.SetDefault("client.expiry_threshold", contaconmigo.DefaultExpiryThreshold)
	v.SetDefault("client.rate_limit", 0.0)
	v.SetDefault("client.rate_burst", 0)
	v.SetDefault("client.totals_concurrency", contaconmigo.DefaultTotalsConcurrency)
	v.SetDefault("client.user_agent", "contaconmigo-cli")

	v.SetDefault("store.kind", StoreFile)
	v.SetDefault("store.path", filepath.Join(dir, "session.json"))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", credential.DefaultRedisPrefix)
	v.SetDefault("redis.session_key", credential.DefaultSessionKey)
	v.SetDefault("redis.ttl", time.Duration(0))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "")
}

// Load reads configuration. path names a YAML file; when empty,
// <Dir>/config.yaml is used if present. A .env file in the working
// directory is loaded into the environment first, without overriding
// variables already set. Environment variables override the file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	dir, err := Dir()
	if err != nil {
		dir = "."
	}
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}

	v := viper.New()
	setDefaults(v, dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("contaconmigo/config: read %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("contaconmigo/config: %w", err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("contaconmigo/config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values Load cannot default.
func (c *Config) Validate() error {
	if c.Client.BaseURL == "" {
		return errors.New("contaconmigo/config: client.base_url is required")
	}
	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Store.Path == "" {
			return errors.New("contaconmigo/config: store.path is required for the file store")
		}
	default:
		return fmt.Errorf("contaconmigo/config: unknown store.kind %q", c.Store.Kind)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("contaconmigo/config: invalid log.level %q", s)
	}
	return l, nil
}

// NewLogger builds the slog logger described by c.Log, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// OpenStore builds the configured credential store. The returned closer
// releases its connections and is never nil.
func (c *Config) OpenStore(ctx context.Context) (contaconmigo.CredentialStore, io.Closer, error) {
	switch c.Store.Kind {
	case StoreMemory:
		return credential.NewMemoryStore(), nopCloser{}, nil
	case StoreFile:
		return credential.NewFileStore(c.Store.Path), nopCloser{}, nil
	case StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("contaconmigo/config: redis %s: %w", c.Redis.Addr, err)
		}
		var opts []credential.RedisOption
		if c.Redis.TTL > 0 {
			opts = append(opts, credential.WithTTL(c.Redis.TTL))
		}
		return credential.NewRedisStore(rdb, c.Redis.Prefix, c.Redis.SessionKey, opts...), rdb, nil
	default:
		return nil, nil, fmt.Errorf("contaconmigo/config: unknown store.kind %q", c.Store.Kind)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
