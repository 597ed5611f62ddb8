package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Providers ProvidersConfig `mapstructure:"providers"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port    string   `mapstructure:"port"`
	Env     string   `mapstructure:"env"`
	APIKeys []string `mapstructure:"api_keys"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig controls how provider-returned assets are re-hosted.
type StorageConfig struct {
	OSS           OSSConfig `mapstructure:"oss"`
	LocalDir      string    `mapstructure:"local_dir"`
	PublicBaseURL string    `mapstructure:"public_base_url"`
}

type OSSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	Endpoint        string `mapstructure:"endpoint"`
	CDNURL          string `mapstructure:"cdn_url"`
}

// GatewayConfig holds the bot-platform connection parameters shared by
// every bot account. Per-account credentials live in the record store.
type GatewayConfig struct {
	SocketURL      string `mapstructure:"socket_url"`
	APIBaseURL     string `mapstructure:"api_base_url"`
	ApplicationID  string `mapstructure:"application_id"`
	CommandID      string `mapstructure:"command_id"`
	CommandVersion string `mapstructure:"command_version"`
}

type ProvidersConfig struct {
	Vidu     ProviderConfig `mapstructure:"vidu"`
	Seedance ProviderConfig `mapstructure:"seedance"`
}

type ProviderConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	PollSeconds  int    `mapstructure:"poll_seconds"`
	PollAttempts int    `mapstructure:"poll_attempts"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Default Values
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("database.dsn", "file:gengate.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("server.api_keys", []string{})
	v.SetDefault("storage.local_dir", "data/uploads")
	v.SetDefault("storage.public_base_url", "http://localhost:8080")
	// Every key needs a default; AutomaticEnv only surfaces keys viper
	// already knows about when unmarshalling.
	v.SetDefault("storage.oss.bucket", "")
	v.SetDefault("storage.oss.region", "")
	v.SetDefault("storage.oss.access_key_id", "")
	v.SetDefault("storage.oss.access_key_secret", "")
	v.SetDefault("storage.oss.endpoint", "")
	v.SetDefault("storage.oss.cdn_url", "")
	v.SetDefault("gateway.socket_url", "wss://gateway.discord.gg/?v=10&encoding=json")
	v.SetDefault("gateway.api_base_url", "https://discord.com/api/v10")
	v.SetDefault("gateway.application_id", "936929561302675456")
	v.SetDefault("gateway.command_id", "938956540159881230")
	v.SetDefault("gateway.command_version", "1237876415471554623")
	v.SetDefault("providers.vidu.base_url", "https://api.vidu.cn/ent/v2")
	v.SetDefault("providers.vidu.poll_seconds", 10)
	v.SetDefault("providers.vidu.poll_attempts", 120)
	v.SetDefault("providers.seedance.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("providers.seedance.poll_seconds", 10)
	v.SetDefault("providers.seedance.poll_attempts", 120)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve secrets referenced as ENV:VAR_NAME
	cfg.Storage.OSS.AccessKeyID = resolveEnvRef(v, cfg.Storage.OSS.AccessKeyID)
	cfg.Storage.OSS.AccessKeySecret = resolveEnvRef(v, cfg.Storage.OSS.AccessKeySecret)

	return &cfg, nil
}

func resolveEnvRef(v *viper.Viper, value string) string {
	if !strings.HasPrefix(value, "ENV:") {
		return value
	}
	envVar := strings.TrimPrefix(value, "ENV:")
	// Process environment wins over viper sources
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v.GetString(envVar)
}
