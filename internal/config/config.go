package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig    `mapstructure:"basic_config"`
	Provider    ProviderConfig `mapstructure:"provider"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Tracing     TracingConfig  `mapstructure:"tracing"`
}

type BasicConfig struct {
	ServerAddress            string `mapstructure:"server_address"`
	AllowedOrigin            string `mapstructure:"allowed_origin"`
	UploadDir                string `mapstructure:"upload_dir"`
	MaxUploadBytes           int64  `mapstructure:"max_upload_bytes"`
	TempFileTTL              int    `mapstructure:"temp_file_ttl"`       // minutes
	TempCleanInterval        int    `mapstructure:"temp_clean_interval"` // minutes
	GenerationTimeoutSeconds int    `mapstructure:"generation_timeout_seconds"`
	LogLevel                 string `mapstructure:"log_level"`
}

type ProviderConfig struct {
	Name      string `mapstructure:"name"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether run events should be published to redis.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

const (
	DefaultConfigFile = "config.json"
	DefaultModel      = "claude-3-opus-20240229"
	DefaultMaxTokens  = 1000
	DefaultPort       = "5000"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":"+DefaultPort)
	v.SetDefault("basic_config.allowed_origin", "")
	v.SetDefault("basic_config.upload_dir", "./data/uploads")
	v.SetDefault("basic_config.max_upload_bytes", 25<<20)
	v.SetDefault("basic_config.temp_file_ttl", 60)
	v.SetDefault("basic_config.temp_clean_interval", 10)
	v.SetDefault("basic_config.generation_timeout_seconds", 60)
	v.SetDefault("basic_config.log_level", "info")

	v.SetDefault("provider.name", "claude")
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.model", DefaultModel)
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.max_tokens", DefaultMaxTokens)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "./data/soapscribe.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.db_name", "")
	v.SetDefault("database.params", "parseTime=true")

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "soapscribe")
	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.otlp_insecure", false)
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads configuration from the provided path (defaults to config.json) and applies
// environment overrides. A missing default file is not an error; a missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SOAPSCRIBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// legacy variable names
	_ = v.BindEnv("provider.api_key", "SOAPSCRIBE_PROVIDER_API_KEY", "CLAUDE_API_KEY")
	_ = v.BindEnv("basic_config.allowed_origin", "SOAPSCRIBE_BASIC_CONFIG_ALLOWED_ORIGIN", "ALLOWED_ORIGIN")

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	v.SetConfigFile(absPath)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case explicit:
			return nil, fmt.Errorf("open config %s: %w", absPath, err)
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		cfg.BasicConfig.ServerAddress = ":" + port
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := cfg.BasicConfig.UploadDir; !filepath.IsAbs(dir) && explicit {
		cfg.BasicConfig.UploadDir = filepath.Join(filepath.Dir(absPath), dir)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Provider.Name) {
	case "claude", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported provider: %s", c.Provider.Name)
	}
	if c.Provider.MaxTokens <= 0 {
		return fmt.Errorf("provider.max_tokens must be positive")
	}
	if c.BasicConfig.UploadDir == "" {
		return fmt.Errorf("upload_dir must be configured")
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	switch strings.ToLower(c.Database.Driver) {
	case "", "none", "sqlite", "sqlite3", "mysql":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	return nil
}
