package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Execution modes. Production hard-rejects mock clients and fails fast
// when the license subsystem cannot initialize.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Config represents the complete application configuration
type Config struct {
	Mode      string          `yaml:"mode" envconfig:"MODE" default:"development"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Database  DatabaseConfig  `yaml:"database" envconfig:"DATABASE"`
	License   LicenseConfig   `yaml:"license" envconfig:"LICENSE"`
	Breaker   BreakerConfig   `yaml:"breaker" envconfig:"BREAKER"`
	Retry     RetryConfig     `yaml:"retry" envconfig:"RETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	TokenSecret    string          `yaml:"token_secret" envconfig:"TOKEN_SECRET" default:"spr-dev-secret-change-me"`
	TokenTTL       time.Duration   `yaml:"token_ttl" envconfig:"TOKEN_TTL" default:"12h"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration for the activation endpoint
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"5"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"10"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"stdout"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/sprd.log"`
}

// DatabaseConfig contains license store database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" envconfig:"DRIVER" default:"sqlite3"`
	DSN    string `yaml:"dsn" envconfig:"DSN" default:"data/licenses.db"`
}

// LicenseConfig contains license authority configuration
type LicenseConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL" default:"5m"`
	CacheMaxSize   int           `yaml:"cache_max_size" envconfig:"CACHE_MAX_SIZE" default:"1000"`
	DefaultClient  string        `yaml:"default_client" envconfig:"DEFAULT_CLIENT" default:"default"`
	ReauthInterval time.Duration `yaml:"reauth_interval" envconfig:"REAUTH_INTERVAL" default:"5m"`
}

// BreakerConfig contains circuit breaker configuration for downstream calls
type BreakerConfig struct {
	FailureThreshold uint32        `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" envconfig:"RECOVERY_TIMEOUT" default:"30s"`
	CallTimeout      time.Duration `yaml:"call_timeout" envconfig:"CALL_TIMEOUT" default:"10s"`
}

// RetryConfig contains retry policy configuration for downstream calls
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `yaml:"base_delay" envconfig:"BASE_DELAY" default:"250ms"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// Load loads configuration from environment variables and config file.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("SPR", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	configFile := getConfigFilePath()
	if configFile != "" {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence)
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.Mode == "" {
		envCfg.Mode = fileCfg.Mode
	}
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Database.DSN == "" {
		envCfg.Database.DSN = fileCfg.Database.DSN
	}
	if envCfg.Security.TokenSecret == "" {
		envCfg.Security.TokenSecret = fileCfg.Security.TokenSecret
	}
	if envCfg.License.CacheTTL == 0 {
		envCfg.License.CacheTTL = fileCfg.License.CacheTTL
	}
	if envCfg.License.ReauthInterval == 0 {
		envCfg.License.ReauthInterval = fileCfg.License.ReauthInterval
	}
	if envCfg.Breaker.FailureThreshold == 0 {
		envCfg.Breaker.FailureThreshold = fileCfg.Breaker.FailureThreshold
	}
	if envCfg.Retry.MaxAttempts == 0 {
		envCfg.Retry.MaxAttempts = fileCfg.Retry.MaxAttempts
	}

	return envCfg
}

// IsProduction reports whether the server runs in production execution mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Mode, ModeProduction)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Mode != ModeProduction && c.Mode != ModeDevelopment {
		return fmt.Errorf("invalid mode: %q (expected %q or %q)", c.Mode, ModeProduction, ModeDevelopment)
	}

	if c.License.CacheTTL <= 0 {
		return fmt.Errorf("license cache TTL must be positive")
	}

	if c.License.ReauthInterval <= 0 {
		return fmt.Errorf("license reauth interval must be positive")
	}

	if c.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("breaker failure threshold must be positive")
	}

	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}

	if c.IsProduction() && c.Security.TokenSecret == "spr-dev-secret-change-me" {
		return fmt.Errorf("token secret must be overridden in production")
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Mode: ModeDevelopment,
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			TokenSecret:    "spr-dev-secret-change-me",
			TokenTTL:       12 * time.Hour,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     5,
				Burst:   10,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			FilePath: "logs/sprd.log",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    "data/licenses.db",
		},
		License: LicenseConfig{
			CacheTTL:       5 * time.Minute,
			CacheMaxSize:   1000,
			DefaultClient:  "default",
			ReauthInterval: 5 * time.Minute,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			CallTimeout:      10 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
