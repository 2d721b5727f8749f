package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snapseal/features"

	"github.com/spf13/viper"
)

// Config holds application configuration for the snapseal services
type Config struct {
	// Service identification
	Service ServiceConfig `mapstructure:"service"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Object storage configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Manifest cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Manifest signing configuration
	Signing SigningConfig `mapstructure:"signing"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Security configuration
	Security SecurityConfig `mapstructure:"security"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig identifies the service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // dev, staging, production
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	GracefulStop time.Duration `mapstructure:"graceful_stop"`
	TLS          TLSConfig     `mapstructure:"tls"`
}

// TLSConfig holds TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
	CAFile   string `mapstructure:"ca_file"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// StorageConfig holds evidence object storage settings
type StorageConfig struct {
	Type string   `mapstructure:"type"` // s3, memory
	S3   S3Config `mapstructure:"s3"`
}

// S3Config holds S3-specific settings. Endpoint and path-style addressing
// support S3-compatible stores such as MinIO and LocalStack.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// CacheConfig holds manifest cache settings
type CacheConfig struct {
	Type  string        `mapstructure:"type"` // memory, redis, none
	TTL   time.Duration `mapstructure:"ttl"`
	Redis RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SigningConfig controls where the manifest signing key is loaded from
type SigningConfig struct {
	Source string          `mapstructure:"source"` // env, file, awsSecretsManager
	EnvVar string          `mapstructure:"env_var"`
	File   string          `mapstructure:"file"`
	AWS    AWSSecretConfig `mapstructure:"aws"`
}

// AWSSecretConfig configures the AWS Secrets Manager signing key lookup
type AWSSecretConfig struct {
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	SecretID       string `mapstructure:"secret_id"`
	SecretKeyField string `mapstructure:"secret_key_field"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
	CORS         CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // Prometheus endpoint
	Path    string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Provider    string `mapstructure:"provider"` // jaeger, zipkin, otlp
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Command line flags (highest priority)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest priority)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set configuration file details
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search for config in multiple locations
		v.SetConfigName("snapseal")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/snapseal/")
		v.AddConfigPath("$HOME/.snapseal")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// Enable environment variable reading
	v.SetEnvPrefix("SNAPSEAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Apply feature flag overrides
	applyFeatureFlags(&cfg)

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables (legacy compatibility)
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.name", "snapseal")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_stop", "30s")
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "snapseal")
	v.SetDefault("database.user", "snapseal")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Storage defaults
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "1h")
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "snapseal:manifest:")

	// Signing defaults
	v.SetDefault("signing.source", "env")
	v.SetDefault("signing.env_var", "SNAPSEAL_SIGNING_KEY")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_min", 100)
	v.SetDefault("security.rate_limiting.burst", 50)
	v.SetDefault("security.cors.enabled", true)
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Authorization", "Content-Type", "X-Organization-ID"})

	// Observability defaults
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.address", ":9090")
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	// Validate service name
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	// Validate server port
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate TLS configuration
	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
		if !fileExists(cfg.Server.TLS.CertFile) {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.Server.TLS.CertFile)
		}
		if !fileExists(cfg.Server.TLS.KeyFile) {
			return fmt.Errorf("TLS key file not found: %s", cfg.Server.TLS.KeyFile)
		}
	}

	// Validate database configuration
	if cfg.Database.Driver != "" {
		if cfg.Database.Host == "" {
			return fmt.Errorf("database.host is required when database is configured")
		}
		if cfg.Database.Database == "" {
			return fmt.Errorf("database.database is required when database is configured")
		}
	}

	// Validate storage configuration
	switch strings.ToLower(cfg.Storage.Type) {
	case "s3":
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when storage type is s3")
		}
	case "memory":
		// No additional settings required
	default:
		return fmt.Errorf("storage.type must be s3 or memory, got %q", cfg.Storage.Type)
	}

	// Validate signing configuration
	switch strings.ToLower(cfg.Signing.Source) {
	case "env", "":
		// Env var name has a default
	case "file":
		if cfg.Signing.File == "" {
			return fmt.Errorf("signing.file is required when signing source is file")
		}
	case "awssecretsmanager":
		if cfg.Signing.AWS.SecretID == "" {
			return fmt.Errorf("signing.aws.secret_id is required when signing source is awsSecretsManager")
		}
		if cfg.Signing.AWS.Region == "" {
			return fmt.Errorf("signing.aws.region is required when signing source is awsSecretsManager")
		}
	default:
		return fmt.Errorf("signing.source must be env, file, or awsSecretsManager, got %q", cfg.Signing.Source)
	}

	return nil
}

// GetDatabaseURL constructs a database connection URL from the config
func (c *Config) GetDatabaseURL() string {
	if c.Database.Driver == "" {
		return ""
	}

	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Driver,
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development" || c.Service.Environment == "dev"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production" || c.Service.Environment == "prod"
}

// MaskSensitive returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitive() *Config {
	masked := *c
	masked.Database.Password = "***"
	masked.Cache.Redis.Password = "***"
	masked.Storage.S3.SecretAccessKey = "***"
	return &masked
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	expandedPath := os.ExpandEnv(path)
	if !filepath.IsAbs(expandedPath) {
		return false
	}
	_, err := os.Stat(expandedPath)
	return err == nil
}

// applyFeatureFlags applies build-time feature flags to override configuration
func applyFeatureFlags(cfg *Config) {
	// Disable metrics if not enabled via feature flag
	if !features.ShouldEnableMetrics() {
		cfg.Observability.Metrics.Enabled = false
	}

	// Disable observability/tracing if not enabled via feature flag
	if !features.ShouldEnableObservability() {
		cfg.Observability.Tracing.Enabled = false
		cfg.Observability.Metrics.Enabled = false
	}

	// Apply rate limiting if enabled
	if features.ShouldEnableRateLimiting() {
		cfg.Security.RateLimiting.Enabled = true
	}

	// Disable caching unless feature flag is enabled
	if !features.ShouldEnableCaching() {
		cfg.Cache.Type = "none" // Disable caching entirely
		cfg.Cache.TTL = 0
		cfg.Cache.Redis.Address = ""
		cfg.Cache.Redis.Password = ""
	}
}
