package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Telegram TelegramConfig    `mapstructure:"telegram"`
	Redis    RedisConfig       `mapstructure:"redis"`
	QuranAPI QuranAPIConfig    `mapstructure:"quran_api"`
	TextAPI  TextAPIConfig     `mapstructure:"text_api"`
	Store    StoreConfig       `mapstructure:"store"`
	App      AppConfig         `mapstructure:"app"`
	Viewport ViewportConfig    `mapstructure:"viewport"`
	Palette  map[string]string `mapstructure:"palette"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type RedisConfig struct {
	URI string `mapstructure:"uri"`
	// TTL bounds how long preferences and cached surahs live
	TTL time.Duration `mapstructure:"ttl"`
}

// QuranAPIConfig points at the highlight REST backend
type QuranAPIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// TextAPIConfig points at the surah text API
type TextAPIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

const (
	DriverSQLite = "sqlite"
	DriverAPI    = "api"
)

type StoreConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type AppConfig struct {
	LocalesDir      string        `mapstructure:"locales_dir"`
	DefaultLanguage string        `mapstructure:"default_language"`
	DefaultScript   string        `mapstructure:"default_script"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	LoadTimeout     time.Duration `mapstructure:"load_timeout"`
	Prefetch        bool          `mapstructure:"prefetch"`
}

type ViewportConfig struct {
	Threshold  float64       `mapstructure:"threshold"`
	Grace      time.Duration `mapstructure:"grace"`
	JumpSettle time.Duration `mapstructure:"jump_settle"`
}

func setDefaults(v *viper.Viper) {
	// empty defaults register the keys so environment overrides reach Unmarshal
	v.SetDefault("telegram.token", "")
	v.SetDefault("redis.uri", "")
	v.SetDefault("quran_api.base_url", "")
	v.SetDefault("quran_api.api_key", "")
	v.SetDefault("redis.ttl", 30*24*time.Hour)
	v.SetDefault("text_api.base_url", "https://api.alquran.cloud/v1")
	v.SetDefault("text_api.timeout", 30*time.Second)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "data/mushaf.db")
	v.SetDefault("app.locales_dir", "locales")
	v.SetDefault("app.default_language", "en")
	v.SetDefault("app.default_script", "quran-uthmani")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")
	v.SetDefault("app.load_timeout", 30*time.Second)
	v.SetDefault("app.prefetch", true)
	v.SetDefault("viewport.threshold", 0.5)
	v.SetDefault("viewport.grace", 100*time.Millisecond)
	v.SetDefault("viewport.jump_settle", 2*time.Second)
}

// Load loads configuration from a YAML file with environment variable overrides.
// A missing file is fine when filename is empty; defaults and the environment still apply.
func Load(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if filename != "" {
		v.SetConfigFile(filename)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields every entry point needs
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	case DriverAPI:
		if c.QuranAPI.BaseURL == "" {
			errs = append(errs, errors.New("quran_api.base_url is required for the api driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverAPI, c.Store.Driver))
	}

	if c.TextAPI.BaseURL == "" {
		errs = append(errs, errors.New("text_api.base_url is required"))
	}
	switch c.App.DefaultScript {
	case "quran-uthmani", "quran-simple":
	default:
		errs = append(errs, fmt.Errorf("app.default_script %q is not supported", c.App.DefaultScript))
	}
	switch c.App.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("app.log_format must be json or console, got %q", c.App.LogFormat))
	}
	if c.Viewport.Threshold <= 0 || c.Viewport.Threshold > 1 {
		errs = append(errs, fmt.Errorf("viewport.threshold must be in (0, 1], got %v", c.Viewport.Threshold))
	}
	if c.App.LoadTimeout <= 0 {
		errs = append(errs, errors.New("app.load_timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ValidateBot checks the fields only the Telegram bot needs
func (c *Config) ValidateBot() error {
	var errs []error
	if c.Telegram.Token == "" {
		errs = append(errs, errors.New("telegram token is required"))
	}
	if c.Redis.URI == "" {
		errs = append(errs, errors.New("redis URI is required"))
	}
	if c.App.LocalesDir == "" {
		errs = append(errs, errors.New("app.locales_dir is required"))
	}
	return errors.Join(errs...)
}
