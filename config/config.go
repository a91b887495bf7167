package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/cognito-gateway/cognito"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Cognito       CognitoConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// CognitoConfig holds the user pool, app client and token verification settings
type CognitoConfig struct {
	Region       string
	UserPoolID   string
	ClientID     string
	ClientSecret string
	Endpoint     string // SDK endpoint override, e.g. a local emulator

	TokenUse     string
	AdminGroup   string // group required by the admin routes
	ClockSkew    time.Duration
	JWKSURL      string
	JWKSCacheTTL time.Duration
	JWKSTimeout  time.Duration
}

// AuditConfig holds the audit trail configuration
type AuditConfig struct {
	Database   *DatabaseConfig // nil means audit events go to the log
	BufferSize int
	Workers    int
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	ConnectionString string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Cognito: loadCognitoConfig(),
		Audit: AuditConfig{
			Database:   loadAuditDatabaseConfig(),
			BufferSize: getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			Workers:    getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
	}
	cfg.Observability.LogFormat = getEnv("LOG_FORMAT", cfg.defaultLogFormat())

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Cognito.UserPoolID == "" {
		return fmt.Errorf("cognito user pool ID is required (COGNITO_USER_POOL_ID)")
	}
	if c.Cognito.ClientID == "" {
		return fmt.Errorf("cognito client ID is required (COGNITO_CLIENT_ID)")
	}
	if c.Cognito.ClientSecret == "" {
		return fmt.Errorf("cognito client secret is required (COGNITO_CLIENT_SECRET)")
	}
	if c.Cognito.Region == "" {
		return fmt.Errorf("cognito region is required: set COGNITO_REGION or use a region-prefixed user pool ID")
	}

	switch c.Cognito.TokenUse {
	case cognito.TokenUseAccess, cognito.TokenUseID:
	default:
		return fmt.Errorf("cognito token use must be %q or %q, got %q", cognito.TokenUseAccess, cognito.TokenUseID, c.Cognito.TokenUse)
	}
	if c.Cognito.ClockSkew < 0 || c.Cognito.ClockSkew > cognito.MaxClockSkew {
		return fmt.Errorf("cognito clock skew must be between 0 and %s", cognito.MaxClockSkew)
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS enabled but certificate or key file is not set")
	}

	// CORS must be explicit in production
	if c.IsProduction() && slices.Contains(c.Server.AllowedOrigins, "*") {
		return fmt.Errorf("wildcard CORS origin is not allowed in production (CORS_ALLOWED_ORIGINS)")
	}

	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("audit buffer size must be positive")
	}
	if c.Audit.Workers <= 0 {
		return fmt.Errorf("audit workers must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// defaultLogFormat is console output in development, JSON elsewhere
func (c *Config) defaultLogFormat() string {
	if c.IsDevelopment() {
		return "console"
	}
	return "json"
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return c.ConnectionString
}

// LogString returns a safe string for logging (no password)
func (c *DatabaseConfig) LogString() string {
	u, err := url.Parse(c.ConnectionString)
	if err != nil || u.Host == "" {
		return "host=<from AUDIT_DATABASE_URL>"
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// loadCognitoConfig reads COGNITO_* variables, falling back to the AWS_* names
// used by earlier deployments.
func loadCognitoConfig() CognitoConfig {
	cfg := CognitoConfig{
		Region:       getEnvFirst("", "COGNITO_REGION", "AWS_REGION"),
		UserPoolID:   getEnvFirst("", "COGNITO_USER_POOL_ID", "AWS_USER_POOL_ID"),
		ClientID:     getEnvFirst("", "COGNITO_CLIENT_ID", "AWS_CLIENT_ID"),
		ClientSecret: getEnvFirst("", "COGNITO_CLIENT_SECRET", "AWS_CLIENT_SECRET"),
		Endpoint:     getEnv("COGNITO_ENDPOINT", ""),
		TokenUse:     getEnv("COGNITO_TOKEN_USE", cognito.TokenUseAccess),
		AdminGroup:   getEnv("COGNITO_ADMIN_GROUP", "admin"),
		ClockSkew:    getEnvAsDuration("COGNITO_CLOCK_SKEW", 0),
		JWKSURL:      getEnv("COGNITO_JWKS_URL", ""),
		JWKSCacheTTL: getEnvAsDuration("COGNITO_JWKS_CACHE_TTL", time.Hour),
		JWKSTimeout:  getEnvAsDuration("COGNITO_JWKS_TIMEOUT", 10*time.Second),
	}
	if cfg.Region == "" {
		cfg.Region = cognito.RegionFromUserPoolID(cfg.UserPoolID)
	}
	return cfg
}

// loadAuditDatabaseConfig returns nil when AUDIT_DATABASE_URL is not set
func loadAuditDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("AUDIT_DATABASE_URL", "")
	if dbURL == "" {
		return nil
	}
	return &DatabaseConfig{
		ConnectionString: dbURL,
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty variable among keys
func getEnvFirst(defaultValue string, keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
