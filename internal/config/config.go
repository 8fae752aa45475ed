package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Bedrock    BedrockConfig    `mapstructure:"bedrock"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Zoho       ZohoConfig       `mapstructure:"zoho"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig holds receipt file storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	BaseURL string `mapstructure:"base_url"`
}

// BedrockConfig holds AWS Bedrock configuration
type BedrockConfig struct {
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	ModelID         string        `mapstructure:"model_id"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ExtractionConfig holds receipt extraction tuning
type ExtractionConfig struct {
	Provider           string        `mapstructure:"provider"` // bedrock or openai
	MinRequestInterval time.Duration `mapstructure:"min_request_interval"`
	MaxRetries         int           `mapstructure:"max_retries"`
	InitialRetryDelay  time.Duration `mapstructure:"initial_retry_delay"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxFileSize        int           `mapstructure:"max_file_size"`
	PromptsPath        string        `mapstructure:"prompts_path"`
	Image              ImageConfig   `mapstructure:"image"`
}

// ImageConfig controls how uploads are downscaled before extraction
type ImageConfig struct {
	MaxWidth  int  `mapstructure:"max_width"`
	MaxHeight int  `mapstructure:"max_height"`
	Quality   int  `mapstructure:"quality"`
	Grayscale bool `mapstructure:"grayscale"`
}

// LedgerConfig points at the chart-of-accounts text file
type LedgerConfig struct {
	Path           string        `mapstructure:"path"`
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// ZohoConfig holds Zoho Books API configuration
type ZohoConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RefreshToken   string        `mapstructure:"refresh_token"`
	OrganizationID string        `mapstructure:"organization_id"`
	TokenURL       string        `mapstructure:"token_url"`
	APIDomain      string        `mapstructure:"api_domain"`
	RequestsPerMin int           `mapstructure:"requests_per_minute"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from an optional YAML file, a .env file in the
// working directory and environment variables
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment variables: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/receipts.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("storage.base_dir", "data/receipts")
	v.SetDefault("storage.base_url", "/files")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.timeout", 60*time.Second)

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.timeout", 60*time.Second)

	// Extraction defaults
	v.SetDefault("extraction.provider", "bedrock")
	v.SetDefault("extraction.min_request_interval", 2*time.Second)
	v.SetDefault("extraction.max_retries", 3)
	v.SetDefault("extraction.initial_retry_delay", time.Second)
	v.SetDefault("extraction.max_tokens", 4096)
	v.SetDefault("extraction.temperature", 0.1)
	v.SetDefault("extraction.max_file_size", 5*1024*1024)
	v.SetDefault("extraction.image.max_width", 1000)
	v.SetDefault("extraction.image.max_height", 1400)
	v.SetDefault("extraction.image.quality", 70)
	v.SetDefault("extraction.image.grayscale", true)

	v.SetDefault("ledger.path", "configs/accounts.txt")
	v.SetDefault("ledger.reload_interval", 30*time.Second)
	v.SetDefault("ledger.cache_ttl", time.Hour)

	// Zoho defaults
	v.SetDefault("zoho.token_url", "https://accounts.zoho.sa/oauth/v2/token")
	v.SetDefault("zoho.api_domain", "https://www.zohoapis.sa")
	v.SetDefault("zoho.requests_per_minute", 100)
	v.SetDefault("zoho.timeout", 30*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "auto")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"bedrock.region":            "AWS_BEDROCK_REGION",
		"bedrock.access_key_id":     "AWS_BEDROCK_ACCESS_KEY_ID",
		"bedrock.secret_access_key": "AWS_BEDROCK_SECRET_ACCESS_KEY",
		"bedrock.model_id":          "AWS_BEDROCK_MODEL_ID",
		"openai.api_key":            "OPENAI_API_KEY",
		"zoho.client_id":            "ZOHO_BOOKS_CLIENT_ID",
		"zoho.client_secret":        "ZOHO_BOOKS_CLIENT_SECRET",
		"zoho.refresh_token":        "ZOHO_BOOKS_REFRESH_TOKEN",
		"zoho.organization_id":      "ZOHO_BOOKS_ORGANIZATION_ID",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	switch c.Extraction.Provider {
	case "bedrock":
		if c.Bedrock.Region == "" {
			return fmt.Errorf("bedrock.region is required")
		}
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("bedrock.model_id is required")
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required")
		}
	default:
		return fmt.Errorf("extraction.provider must be bedrock or openai, got %q", c.Extraction.Provider)
	}

	if c.Extraction.MaxRetries < 0 {
		return fmt.Errorf("extraction.max_retries must not be negative")
	}
	if c.Extraction.MaxFileSize <= 0 {
		return fmt.Errorf("extraction.max_file_size must be positive")
	}
	if q := c.Extraction.Image.Quality; q < 1 || q > 100 {
		return fmt.Errorf("extraction.image.quality must be between 1 and 100")
	}

	if c.Zoho.Enabled {
		if c.Zoho.ClientID == "" || c.Zoho.ClientSecret == "" || c.Zoho.RefreshToken == "" {
			return fmt.Errorf("zoho client_id, client_secret and refresh_token are required when zoho is enabled")
		}
		if c.Zoho.OrganizationID == "" {
			return fmt.Errorf("zoho.organization_id is required when zoho is enabled")
		}
	}

	return nil
}
