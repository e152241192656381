package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Environment  string
	APIPrefix    string
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint  string
	Password  string
	DB        int
	PoolSize  int
	OpTimeout time.Duration
	KeyPrefix string
}

type JWTConfig struct {
	AccessSecretKey  string
	RefreshSecretKey string
	AccessExpiry     time.Duration
	RefreshExpiry    time.Duration
	Issuer           string
	Audience         string
	Leeway           time.Duration
}

// AuthConfig controls the request authentication middleware.
type AuthConfig struct {
	AccessHeader    string
	RefreshHeader   string
	NewAccessHeader string
	PublicPaths     []string
	AdminScope      string
	// DependencyFailureStatus is the status returned when the token store
	// cannot be reached. Only 401 and 503 are accepted.
	DependencyFailureStatus int
	Debug                   bool
}

type RateLimitConfig struct {
	LoginRequests int
	LoginWindow   time.Duration
	LoginBurst    int
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	env := getEnv("ENVIRONMENT", "local")
	prefix := strings.TrimRight(getEnv("API_PREFIX", "/api"), "/")

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			Environment:  env,
			APIPrefix:    prefix,
			CORSOrigins:  getEnvAsList("CORS_ORIGINS", nil),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "AuthTable"),
		},
		Redis: RedisConfig{
			Endpoint:  getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			PoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 10),
			OpTimeout: getEnvAsDuration("REDIS_OP_TIMEOUT", 500*time.Millisecond),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "auth"),
		},
		JWT: JWTConfig{
			AccessSecretKey:  getEnv("JWT_ACCESS_SECRET_KEY", ""),
			RefreshSecretKey: getEnv("JWT_REFRESH_SECRET_KEY", ""),
			AccessExpiry:     getEnvAsDuration("JWT_ACCESS_EXPIRY", 10*time.Minute),
			RefreshExpiry:    getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
			Issuer:           getEnv("JWT_ISSUER", "authgate"),
			Audience:         getEnv("JWT_AUDIENCE", "authgate-api"),
			Leeway:           getEnvAsDuration("JWT_LEEWAY", 0),
		},
		Auth: AuthConfig{
			AccessHeader:    getEnv("AUTH_ACCESS_HEADER", "Authorization"),
			RefreshHeader:   getEnv("AUTH_REFRESH_HEADER", "Authorization-Refresh"),
			NewAccessHeader: getEnv("AUTH_NEW_ACCESS_HEADER", "Authorization-New"),
			PublicPaths: getEnvAsList("AUTH_PUBLIC_PATHS", []string{
				"/health",
				prefix + "/docs",
			}),
			AdminScope:              getEnv("AUTH_ADMIN_SCOPE", ""),
			DependencyFailureStatus: getEnvAsInt("AUTH_DEPENDENCY_FAILURE_STATUS", http.StatusServiceUnavailable),
			Debug:                   getEnvAsBool("AUTH_DEBUG", false),
		},
		RateLimit: RateLimitConfig{
			LoginRequests: getEnvAsInt("RATELIMIT_LOGIN_REQUESTS", 5),
			LoginWindow:   getEnvAsDuration("RATELIMIT_LOGIN_WINDOW", time.Minute),
			LoginBurst:    getEnvAsInt("RATELIMIT_LOGIN_BURST", 5),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the invariants the token services rely on.
func (c *Config) Validate() error {
	if c.JWT.AccessSecretKey == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET_KEY environment variable is required")
	}
	if c.JWT.RefreshSecretKey == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET_KEY environment variable is required")
	}
	if len(c.JWT.AccessSecretKey) < 32 || len(c.JWT.RefreshSecretKey) < 32 {
		return fmt.Errorf("JWT secret keys must be at least 32 bytes (256 bits)")
	}
	if c.JWT.AccessExpiry <= 0 || c.JWT.RefreshExpiry <= 0 {
		return fmt.Errorf("JWT expiries must be positive")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return fmt.Errorf("JWT_LEEWAY must be between 0 and 2m")
	}
	if c.Redis.OpTimeout <= 0 {
		return fmt.Errorf("REDIS_OP_TIMEOUT must be positive")
	}
	switch c.Auth.DependencyFailureStatus {
	case http.StatusUnauthorized, http.StatusServiceUnavailable:
	default:
		return fmt.Errorf("AUTH_DEPENDENCY_FAILURE_STATUS must be 401 or 503")
	}
	if c.Auth.AccessHeader == "" || c.Auth.RefreshHeader == "" || c.Auth.NewAccessHeader == "" {
		return fmt.Errorf("auth header names must not be empty")
	}
	if c.RateLimit.LoginRequests <= 0 || c.RateLimit.LoginWindow <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("login rate limit must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty entries.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
