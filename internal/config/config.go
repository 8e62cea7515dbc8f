// ABOUTME: Configuration loading for the admin gateway
// ABOUTME: Supports YAML files with environment variable expansion, or pure environment parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete admin gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Digest   DigestConfig   `yaml:"digest"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" env:"HTTP_ADDR" envDefault:":5000"`
}

// AuthConfig holds authentication configuration.
// AdminEmails is a comma-separated list of addresses allowed to log in.
// AdminPasswordHash is a bcrypt hash of the shared admin password.
type AuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret" env:"JWT_SECRET"`
	AdminEmails       string `yaml:"admin_emails" env:"ADMIN_EMAILS"`
	AdminPasswordHash string `yaml:"admin_password_hash" env:"ADMIN_PASSWORD_HASH"`
}

// DatabaseConfig holds storage backend configuration.
// PostgresDSN enables the document store; Path enables the local SQLite store.
// Either (or both) may be empty; the in-process store is always available.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"SQLITE_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"DATABASE_URL"`
}

// UpstreamConfig holds remote proxy target configuration.
// When BaseURL is set the proxy backend takes priority over all local stores.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url" env:"UPSTREAM_URL"`
	Timeout time.Duration `yaml:"-" env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// DigestConfig holds the intelligence digest service endpoint
type DigestConfig struct {
	URL string `yaml:"url" env:"DIGEST_URL" envDefault:"http://localhost:8000"`
}

// KafkaConfig holds optional event publishing configuration
type KafkaConfig struct {
	Broker string `yaml:"broker" env:"KAFKA_BROKER"`
	Topic  string `yaml:"topic" env:"KAFKA_TOPIC" envDefault:"admin-events"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a Config entirely from environment variables.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	return nil
}

// AdminEmailList returns the configured admin addresses, lowercased and trimmed.
func (c *Config) AdminEmailList() []string {
	if c.Auth.AdminEmails == "" {
		return nil
	}

	parts := strings.Split(c.Auth.AdminEmails, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			emails = append(emails, p)
		}
	}
	return emails
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Upstream.TimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream timeout %q: %w", cfg.Upstream.TimeoutRaw, err)
		}
		cfg.Upstream.Timeout = d
	}

	if cfg.Upstream.Timeout == 0 {
		cfg.Upstream.Timeout = 10 * time.Second
	}

	return nil
}
