package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hfjohn123/Anthuria-sub001/internal/tracing"
)

// DefaultPath is used when neither an explicit path nor CONFIG_PATH is given
const DefaultPath = "/app/config/pdpm.yaml"

type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json|console
}

// TablesConfig points at the directory holding category table overrides
type TablesConfig struct {
	Dir          string        `mapstructure:"dir"`
	File         string        `mapstructure:"file"`
	Watch        bool          `mapstructure:"watch"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Driver         string        `mapstructure:"driver"` // postgres|sqlite3
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	SSLMode        string        `mapstructure:"sslmode"`
	Path           string        `mapstructure:"path"` // sqlite3 file
	MaxConnections int           `mapstructure:"max_connections"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	SigningKey string `mapstructure:"signing_key"`
	Issuer     string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Config is the service configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Tables      TablesConfig    `mapstructure:"tables"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Auth        AuthConfig      `mapstructure:"auth"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Tracing     tracing.Config  `mapstructure:"tracing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tables.dir", "/app/config")
	v.SetDefault("tables.file", "pdpm_tables.yaml")
	v.SetDefault("tables.watch", true)
	v.SetDefault("tables.poll_interval", time.Duration(0))

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pdpm")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "pdpm")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "pdpm.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.max_lifetime", 5*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "redis:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 5*time.Minute)

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("rate_limit.requests_per_second", 0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "pdpm-core")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")
}

// Load reads the service configuration.
//
// The file path is taken from path, then CONFIG_PATH, then DefaultPath. A missing file
// is only an error when the path was given explicitly. Environment variables prefixed
// with PDPM_ override file values (PDPM_HTTP_PORT overrides http.port).
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if p := os.Getenv("CONFIG_PATH"); p != "" {
			path = p
			explicit = true
		} else {
			path = DefaultPath
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("PDPM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !isMissingFile(path) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func isMissingFile(path string) bool {
	_, err := os.Stat(path)
	return os.IsNotExist(err)
}

// Validate checks values that would otherwise fail later at runtime
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	if c.Tables.Watch && c.Tables.Dir == "" {
		return errors.New("tables.dir is required when tables.watch is enabled")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.New("rate_limit.requests_per_second must be >= 0")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		return errors.New("rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	if c.Auth.Enabled && len(c.Auth.SigningKey) < 16 {
		return errors.New("auth.signing_key must be at least 16 bytes when auth is enabled")
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "sqlite3":
		default:
			return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", c.Database.Driver)
		}
	}
	return nil
}

// TablesPath returns the full path of the table override file
func (c *Config) TablesPath() string {
	return filepath.Join(c.Tables.Dir, c.Tables.File)
}
