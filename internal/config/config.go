package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Research ResearchConfig `yaml:"research" mapstructure:"research"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Progress ProgressConfig `yaml:"progress" mapstructure:"progress"`
	Contacts ContactsConfig `yaml:"contacts" mapstructure:"contacts"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ResearchConfig holds enrichment provider settings.
type ResearchConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Model       string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	GlobalRPS   float64 `yaml:"global_rps" mapstructure:"global_rps"`
}

// BatchConfig configures the batch scheduler.
type BatchConfig struct {
	Concurrency  int `yaml:"concurrency" mapstructure:"concurrency"`
	GroupDelayMS int `yaml:"group_delay_ms" mapstructure:"group_delay_ms"`
}

// ProgressConfig configures the push/pull progress consumer.
type ProgressConfig struct {
	OpenTimeoutSecs  int `yaml:"open_timeout_secs" mapstructure:"open_timeout_secs"`
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
}

// ContactsConfig configures the backing contact-record store.
type ContactsConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Salesforce  SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
}

// SalesforceConfig holds Salesforce JWT auth settings for the contact store.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("research.provider", "anthropic")
	v.SetDefault("research.model", "claude-haiku-4-5-20251001")
	v.SetDefault("research.timeout_secs", 60)
	v.SetDefault("research.max_attempts", 2)
	v.SetDefault("research.global_rps", 0)
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("batch.group_delay_ms", 2000)
	v.SetDefault("progress.open_timeout_secs", 5)
	v.SetDefault("progress.poll_interval_secs", 2)
	v.SetDefault("contacts.driver", "sqlite")
	v.SetDefault("contacts.database_url", "outreach.db")
	v.SetDefault("contacts.salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
