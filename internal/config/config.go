package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Google   GoogleConfig
	Store    StoreConfig
	DynamoDB DynamoDBConfig
	Redis    RedisConfig
	Token    TokenConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// AuthSuccessURL is where the callback redirects browser clients after
	// a successful authorization.
	AuthSuccessURL string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// Endpoint overrides, used by tests; empty means Google's endpoints.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

type StoreConfig struct {
	// Backend selects the credential store: "dynamodb" or "redis".
	Backend string
	// SealKey is a hex-encoded 32-byte key. When set, tokens are encrypted
	// before the persistence write.
	SealKey []byte
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type TokenConfig struct {
	// RefreshBuffer is how long before expiry an access token is already
	// treated as expired and refreshed.
	RefreshBuffer time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			AuthSuccessURL: getEnv("AUTH_SUCCESS_URL", "/"),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
			Scopes:       getEnvAsSlice("GOOGLE_SCOPES", []string{"openid", "email", "https://www.googleapis.com/auth/spreadsheets"}),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "dynamodb"),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "SheetlogCredentials"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Token: TokenConfig{
			RefreshBuffer: getEnvAsDuration("TOKEN_REFRESH_BUFFER", 60*time.Second),
		},
	}

	if cfg.Google.ClientID == "" || cfg.Google.ClientSecret == "" {
		return nil, fmt.Errorf("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables are required")
	}

	if cfg.Google.RedirectURL == "" {
		return nil, fmt.Errorf("GOOGLE_REDIRECT_URL environment variable is required")
	}

	if cfg.Store.Backend != "dynamodb" && cfg.Store.Backend != "redis" {
		return nil, fmt.Errorf("STORE_BACKEND must be \"dynamodb\" or \"redis\", got %q", cfg.Store.Backend)
	}

	if sealKey := getEnv("CREDENTIAL_SEAL_KEY", ""); sealKey != "" {
		key, err := hex.DecodeString(sealKey)
		if err != nil {
			return nil, fmt.Errorf("CREDENTIAL_SEAL_KEY must be hex-encoded: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("CREDENTIAL_SEAL_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.Store.SealKey = key
	}

	return cfg, nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
