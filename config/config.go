// Package config provides configuration management for the rental manager.
//
// Values come from built-in defaults, then an optional YAML file, then
// environment variables, and are validated last.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AppName names the per-user cache and data directories.
const AppName = "rental-manager"

// Config holds the complete application configuration.
type Config struct {
	// ConnectionPoolSize bounds the backend connection pool.
	ConnectionPoolSize int `yaml:"connection_pool_size" validate:"gt=0"`
	// CacheTTLSeconds is the default query cache TTL in seconds.
	CacheTTLSeconds int `yaml:"cache_ttl" validate:"gt=0"`
	// CacheCapacity bounds the query cache. Zero means unbounded.
	CacheCapacity int `yaml:"cache_capacity" validate:"gte=0"`
	// CacheDir holds on-disk cache artifacts.
	CacheDir string `yaml:"cache_dir" validate:"required"`

	NLP      NLPConfig      `yaml:"nlp"`
	Memory   MemoryConfig   `yaml:"memory"`
	Database DatabaseConfig `yaml:"database"`
	Mail     MailConfig     `yaml:"mail"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"-"`
}

// NLPConfig holds text extraction settings.
type NLPConfig struct {
	CacheSize           int  `yaml:"cache_size" validate:"gt=0"`
	EnablePreprocessing bool `yaml:"enable_preprocessing"`
}

// MemoryConfig holds memory monitor settings.
type MemoryConfig struct {
	MonitoringEnabled bool          `yaml:"monitoring_enabled"`
	CleanupThreshold  float64       `yaml:"cleanup_threshold" validate:"gte=0,lte=1"`
	LimitMB           int           `yaml:"limit_mb" validate:"gte=0"`
	Interval          time.Duration `yaml:"interval" validate:"gt=0"`
	HistorySize       int           `yaml:"history_size" validate:"gt=0"`
	// IdleTrim is how long a query cache entry may sit unused before a
	// cleanup drops it.
	IdleTrim time.Duration `yaml:"idle_trim" validate:"gte=0"`
}

// DatabaseConfig holds backend store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. Defaults to rental.db in CacheDir.
	Path           string        `yaml:"path" validate:"required"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" validate:"gte=0"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" validate:"gte=0"`

	CircuitBreakerFailureThreshold int           `yaml:"circuit_breaker_failure_threshold" validate:"gt=0"`
	CircuitBreakerSuccessThreshold int           `yaml:"circuit_breaker_success_threshold" validate:"gt=0"`
	CircuitBreakerTimeout          time.Duration `yaml:"circuit_breaker_timeout" validate:"gt=0"`

	Mongo MongoConfig `yaml:"mongo"`
}

// MongoConfig holds MongoDB settings for persisted memory samples.
type MongoConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URI        string        `yaml:"uri" validate:"required_if=Enabled true"`
	Database   string        `yaml:"database" validate:"required_if=Enabled true"`
	SamplesTTL time.Duration `yaml:"samples_ttl" validate:"gte=0"`
}

// MailConfig holds mail fetching settings.
type MailConfig struct {
	// Root is the maildir the mail service reads. Empty disables it.
	Root        string        `yaml:"root"`
	Sessions    int           `yaml:"sessions" validate:"gt=0"`
	Concurrency int           `yaml:"concurrency" validate:"gt=0"`
	FetchLimit  int           `yaml:"fetch_limit" validate:"gt=0"`
	IdleTimeout time.Duration `yaml:"idle_timeout" validate:"gte=0"`
}

// ServerConfig holds admin HTTP server configuration.
type ServerConfig struct {
	Port            string        `yaml:"port" validate:"required"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Pretty bool   `yaml:"pretty"`
}

// AuthConfig holds admin API authentication. It is read from the
// environment only so secrets never live in the config file.
type AuthConfig struct {
	Enabled      bool
	APIKeys      map[string]bool
	// JWTSecretKey signs admin bearer tokens. Empty disables them.
	JWTSecretKey string
}

// CacheTTL returns the default query cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// MemoryLimitBytes returns the memory ceiling in bytes.
func (c *Config) MemoryLimitBytes() uint64 {
	return uint64(c.Memory.LimitMB) << 20
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	cacheDir := filepath.Join(xdg.CacheHome, AppName)
	return &Config{
		ConnectionPoolSize: 10,
		CacheTTLSeconds:    300,
		CacheCapacity:      1000,
		CacheDir:           cacheDir,
		NLP: NLPConfig{
			CacheSize:           500,
			EnablePreprocessing: true,
		},
		Memory: MemoryConfig{
			MonitoringEnabled: true,
			CleanupThreshold:  0.8,
			LimitMB:           1024,
			Interval:          30 * time.Second,
			HistorySize:       100,
			IdleTrim:          10 * time.Minute,
		},
		Database: DatabaseConfig{
			AcquireTimeout:                 30 * time.Second,
			IdleTimeout:                    30 * time.Minute,
			CircuitBreakerFailureThreshold: 5,
			CircuitBreakerSuccessThreshold: 2,
			CircuitBreakerTimeout:          30 * time.Second,
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "rental_manager",
				SamplesTTL: 7 * 24 * time.Hour,
			},
		},
		Mail: MailConfig{
			Sessions:    3,
			Concurrency: 3,
			FetchLimit:  50,
			IdleTimeout: 30 * time.Minute,
		},
		Server: ServerConfig{
			Port:            "8080",
			CORSOrigins:     parseCORSOrigins(""),
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if cfg.Database.Path == "" {
		cfg.Database.Path = filepath.Join(cfg.CacheDir, "rental.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func applyEnv(cfg *Config) {
	cfg.CacheDir = getEnv("CACHE_DIR", cfg.CacheDir)
	cfg.ConnectionPoolSize = getEnvInt("CONNECTION_POOL_SIZE", cfg.ConnectionPoolSize)
	cfg.Memory.LimitMB = getEnvInt("MEMORY_LIMIT_MB", cfg.Memory.LimitMB)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.Pretty = getEnvBool("LOG_PRETTY", cfg.Log.Pretty)
	cfg.Database.Path = getEnv("DB_PATH", cfg.Database.Path)
	cfg.Database.Mongo.URI = getEnv("MONGODB_URI", cfg.Database.Mongo.URI)
	cfg.Database.Mongo.Database = getEnv("MONGODB_DATABASE", cfg.Database.Mongo.Database)
	cfg.Database.Mongo.Enabled = getEnvBool("MONGODB_ENABLED", cfg.Database.Mongo.Enabled)
	cfg.Mail.Root = getEnv("MAIL_ROOT", cfg.Mail.Root)
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = parseCORSOrigins(v)
	}
	cfg.Auth.Enabled = getEnvBool("AUTH_ENABLED", cfg.Auth.Enabled)
	if keys := parseAPIKeys(os.Getenv("API_KEYS")); keys != nil {
		cfg.Auth.APIKeys = keys
	}
	cfg.Auth.JWTSecretKey = getEnv("JWT_SECRET_KEY", cfg.Auth.JWTSecretKey)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseAPIKeys(s string) map[string]bool {
	if s == "" {
		return nil
	}
	keys := strings.Split(s, ",")
	result := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			result[k] = true
		}
	}
	return result
}

func parseCORSOrigins(s string) []string {
	// Default origins for local development
	defaults := []string{
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}
	if s == "" {
		return defaults
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts)+len(defaults))
	result = append(result, defaults...)
	for _, p := range parts {
		if origin := strings.TrimSpace(p); origin != "" {
			result = append(result, origin)
		}
	}
	return result
}
