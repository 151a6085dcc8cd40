package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// FeatureConfig binds a logical AI feature to a driver and model
type FeatureConfig struct {
	Driver string
	Model  string
}

// ProviderConfig holds the credentials for one AI driver
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

// AIConfig configures the AI manager
type AIConfig struct {
	DefaultDriver string
	Features      map[string]FeatureConfig
	Providers     map[string]ProviderConfig
}

// PlatformConfig holds the app credentials for one store platform
type PlatformConfig struct {
	ClientID     string
	ClientSecret string
	APIVersion   string
	Scopes       string
	RedirectURI  string
}

// StoreConfig configures the store manager
type StoreConfig struct {
	DefaultPlatform string
	Platforms       map[string]PlatformConfig
}

// SyncConfig tunes the sync orchestrator and its queue
type SyncConfig struct {
	BatchSize     int
	Timeout       time.Duration
	RetrySchedule []time.Duration
}

// S3Config configures generated-asset storage
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// QdrantConfig configures the optional embedding index
type QdrantConfig struct {
	URL      string
	Password string
}

// Config is the root application configuration, assembled from the
// environment once at startup and passed explicitly into constructors.
type Config struct {
	Port             string
	Env              string
	JWTSecret        string
	EncryptionSecret string
	EncryptionSalt   string
	AI               AIConfig
	Store            StoreConfig
	Sync             SyncConfig
	S3               S3Config
	Qdrant           QdrantConfig
}

// Features the AI manager knows about. A feature absent from the
// environment stays unconfigured and fails fast on use.
var aiFeatures = []string{"chat", "vision", "image_generation"}

// Load assembles the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		Env:              getEnvOrDefault("ENV", "production"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		EncryptionSecret: os.Getenv("TOKEN_ENCRYPTION_SECRET"),
		EncryptionSalt:   getEnvOrDefault("TOKEN_ENCRYPTION_SALT", "magnifiq-tokens"),
		AI: AIConfig{
			DefaultDriver: getEnvOrDefault("AI_DEFAULT_DRIVER", "openai"),
			Features:      map[string]FeatureConfig{},
			Providers: map[string]ProviderConfig{
				"openai": {
					APIKey:  os.Getenv("OPENAI_API_KEY"),
					BaseURL: os.Getenv("OPENAI_BASE_URL"),
				},
				"gemini": {
					APIKey: os.Getenv("GEMINI_API_KEY"),
				},
				"replicate": {
					APIKey:  os.Getenv("REPLICATE_API_TOKEN"),
					BaseURL: getEnvOrDefault("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
				},
			},
		},
		Store: StoreConfig{
			DefaultPlatform: getEnvOrDefault("STORE_DEFAULT_PLATFORM", "shopify"),
			Platforms: map[string]PlatformConfig{
				"shopify": {
					ClientID:     os.Getenv("SHOPIFY_CLIENT_ID"),
					ClientSecret: os.Getenv("SHOPIFY_CLIENT_SECRET"),
					APIVersion:   getEnvOrDefault("SHOPIFY_API_VERSION", "2024-07"),
					Scopes:       getEnvOrDefault("SHOPIFY_SCOPES", "read_products,write_products,read_locales"),
					RedirectURI:  os.Getenv("SHOPIFY_REDIRECT_URI"),
				},
			},
		},
		Sync: SyncConfig{
			BatchSize: getEnvIntOrDefault("SYNC_BATCH_SIZE", 100),
			Timeout:   getEnvDurationOrDefault("SYNC_TIMEOUT", 10*time.Minute),
			RetrySchedule: []time.Duration{
				60 * time.Second,
				300 * time.Second,
				600 * time.Second,
			},
		},
		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    os.Getenv("S3_BUCKET"),
			Region:    getEnvOrDefault("S3_REGION", "us-east-1"),
		},
		Qdrant: QdrantConfig{
			URL:      getEnvOrDefault("QDRANT_URL", "localhost:6334"),
			Password: os.Getenv("QDRANT_PASSWORD"),
		},
	}

	for _, feature := range aiFeatures {
		prefix := "AI_FEATURE_" + strings.ToUpper(feature)
		driver := os.Getenv(prefix + "_DRIVER")
		model := os.Getenv(prefix + "_MODEL")
		if driver == "" && model == "" {
			continue
		}
		if driver == "" || model == "" {
			return nil, fmt.Errorf("config: feature %q needs both %s_DRIVER and %s_MODEL", feature, prefix, prefix)
		}
		cfg.AI.Features[feature] = FeatureConfig{Driver: driver, Model: model}
	}

	return cfg, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
