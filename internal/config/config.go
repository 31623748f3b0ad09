package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Apify     ApifyConfig     `yaml:"apify" mapstructure:"apify"`
	Columns   ColumnsConfig   `yaml:"columns" mapstructure:"columns"`
	Facebook  FacebookConfig  `yaml:"facebook" mapstructure:"facebook"`
	Website   WebsiteConfig   `yaml:"website" mapstructure:"website"`
	Probe     ProbeConfig     `yaml:"probe" mapstructure:"probe"`
	Phone     PhoneConfig     `yaml:"phone" mapstructure:"phone"`
	Partition PartitionConfig `yaml:"partition" mapstructure:"partition"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ApifyConfig holds the scraping service credential and polling limits.
type ApifyConfig struct {
	Token            string `yaml:"token" mapstructure:"token"`
	BaseURL          string `yaml:"base_url" mapstructure:"base_url"`
	FacebookActor    string `yaml:"facebook_actor" mapstructure:"facebook_actor"`
	WaitSecs         int    `yaml:"wait_secs" mapstructure:"wait_secs"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutMins  int    `yaml:"poll_timeout_mins" mapstructure:"poll_timeout_mins"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ColumnsConfig names the input columns holding each channel's identifier.
type ColumnsConfig struct {
	Facebook string `yaml:"facebook" mapstructure:"facebook"`
	Website  string `yaml:"website" mapstructure:"website"`
}

// FacebookConfig configures the Facebook page pipeline.
type FacebookConfig struct {
	BatchSize      int    `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelaySecs int    `yaml:"batch_delay_secs" mapstructure:"batch_delay_secs"`
	Language       string `yaml:"language" mapstructure:"language"`
	Concurrency    int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// WebsiteConfig configures the website pipeline and its extraction engine.
type WebsiteConfig struct {
	// Engine is "apify" (remote actor), "chrome" or "http" (local).
	Engine              string   `yaml:"engine" mapstructure:"engine"`
	Actor               string   `yaml:"actor" mapstructure:"actor"`
	PageFunctionFile    string   `yaml:"page_function_file" mapstructure:"page_function_file"`
	BatchSize           int      `yaml:"batch_size" mapstructure:"batch_size"`
	BatchDelaySecs      int      `yaml:"batch_delay_secs" mapstructure:"batch_delay_secs"`
	MaxConcurrency      int      `yaml:"max_concurrency" mapstructure:"max_concurrency"`
	MaxRetries          int      `yaml:"max_retries" mapstructure:"max_retries"`
	PageTimeoutSecs     int      `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	FunctionTimeoutSecs int      `yaml:"function_timeout_secs" mapstructure:"function_timeout_secs"`
	RequestsPerTarget   int      `yaml:"requests_per_target" mapstructure:"requests_per_target"`
	ProxyGroups         []string `yaml:"proxy_groups" mapstructure:"proxy_groups"`
	ProxyURL            string   `yaml:"proxy_url" mapstructure:"proxy_url"`
	SkipKeywords        []string `yaml:"skip_keywords" mapstructure:"skip_keywords"`
	ChromePath          string   `yaml:"chrome_path" mapstructure:"chrome_path"`
	Headless            bool     `yaml:"headless" mapstructure:"headless"`
}

// ProbeConfig configures website reachability checks.
type ProbeConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency   int     `yaml:"concurrency" mapstructure:"concurrency"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// PhoneConfig configures phone validation.
type PhoneConfig struct {
	BannedCodesFile string `yaml:"banned_codes_file" mapstructure:"banned_codes_file"`
	Strict          bool   `yaml:"strict" mapstructure:"strict"`
}

// PartitionConfig configures the resolved / follow-up split.
type PartitionConfig struct {
	CrossChannelDuplicates bool `yaml:"cross_channel_duplicates" mapstructure:"cross_channel_duplicates"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config file and environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PHONE_ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("apify.token", "")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.facebook_actor", "oJ48ceKNY7ueGPGL0")
	v.SetDefault("apify.wait_secs", 60)
	v.SetDefault("apify.poll_interval_secs", 5)
	v.SetDefault("apify.poll_timeout_mins", 60)
	v.SetDefault("apify.max_attempts", 3)
	v.SetDefault("columns.facebook", "Facebook")
	v.SetDefault("columns.website", "Website")
	v.SetDefault("facebook.batch_size", 500)
	v.SetDefault("facebook.batch_delay_secs", 3)
	v.SetDefault("facebook.language", "en-US")
	v.SetDefault("facebook.concurrency", 3)
	v.SetDefault("website.engine", "chrome")
	v.SetDefault("website.actor", "apify/puppeteer-scraper")
	v.SetDefault("website.page_function_file", "")
	v.SetDefault("website.batch_size", 500)
	v.SetDefault("website.batch_delay_secs", 2)
	v.SetDefault("website.max_concurrency", 3)
	v.SetDefault("website.max_retries", 1)
	v.SetDefault("website.page_timeout_secs", 15)
	v.SetDefault("website.function_timeout_secs", 30)
	v.SetDefault("website.requests_per_target", 2)
	v.SetDefault("website.proxy_groups", []string{"SHADER"})
	v.SetDefault("website.proxy_url", "")
	v.SetDefault("website.skip_keywords", []string{"mycareersfuture", "recordowl", "bizfile"})
	v.SetDefault("website.chrome_path", "")
	v.SetDefault("website.headless", true)
	v.SetDefault("probe.timeout_secs", 10)
	v.SetDefault("probe.concurrency", 8)
	v.SetDefault("probe.rate_per_sec", 0)
	v.SetDefault("probe.cache_ttl_hours", 24)
	v.SetDefault("phone.banned_codes_file", "")
	v.SetDefault("phone.strict", false)
	v.SetDefault("partition.cross_channel_duplicates", false)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "phone-enrich.db")
	v.SetDefault("server.port", 8080)
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

// Validate checks the settings required by mode: "facebook", "website",
// "enrich", "serve" or "runs".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be sqlite, postgres or none, got %q", c.Store.Driver))
	}

	switch mode {
	case "facebook":
		errs = append(errs, c.validateFacebook()...)
	case "website":
		errs = append(errs, c.validateWebsite()...)
	case "enrich":
		errs = append(errs, c.validateFacebook()...)
		errs = append(errs, c.validateWebsite()...)
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "runs":
		if c.Store.Driver == "none" {
			errs = append(errs, "runs require a store; store.driver is none")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateFacebook() []string {
	var errs []string
	if c.Apify.Token == "" {
		errs = append(errs, "apify.token is required")
	}
	if c.Facebook.BatchSize <= 0 {
		errs = append(errs, "facebook.batch_size must be > 0")
	}
	if c.Facebook.Concurrency < 1 || c.Facebook.Concurrency > 50 {
		errs = append(errs, "facebook.concurrency must be between 1 and 50")
	}
	return errs
}

func (c *Config) validateWebsite() []string {
	var errs []string
	switch c.Website.Engine {
	case "apify":
		if c.Apify.Token == "" {
			errs = append(errs, "apify.token is required")
		}
		// The generic actor has no extraction logic of its own.
		if c.Website.PageFunctionFile == "" {
			errs = append(errs, "website.page_function_file is required for the apify engine")
		}
	case "chrome", "http":
	default:
		errs = append(errs, fmt.Sprintf("website.engine must be apify, chrome or http, got %q", c.Website.Engine))
	}
	if c.Website.BatchSize <= 0 {
		errs = append(errs, "website.batch_size must be > 0")
	}
	if c.Website.MaxConcurrency < 1 || c.Website.MaxConcurrency > 50 {
		errs = append(errs, "website.max_concurrency must be between 1 and 50")
	}
	return errs
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
