package conf

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/DevRickLin/feishu-greeter/internal/biz/usecase"
	"github.com/DevRickLin/feishu-greeter/internal/data"
)

// Config represents application configuration
type Config struct {
	// Feishu configuration
	Feishu FeishuConfig

	// Lifecycle engine configuration
	Engine EngineConfig

	// Storage configuration
	Store StoreConfig

	// Feishu send and lookup limits
	Delivery DeliveryConfig

	// HTTP API configuration
	API APIConfig

	// Logging configuration
	Log LogConfig

	// Debug mode
	Debug bool
}

// FeishuConfig contains Feishu configuration
type FeishuConfig struct {
	AppID     string
	AppSecret string
}

// EngineConfig contains engine timeouts
type EngineConfig struct {
	SendTimeout   time.Duration
	DeleteTimeout time.Duration
	SweepInterval time.Duration // how often armed timers are checked against config
}

// StoreConfig contains database configuration
type StoreConfig struct {
	DBPath string
}

// DeliveryConfig contains rate limit and metadata cache settings
type DeliveryConfig struct {
	RatePerSecond   float64
	RateBurst       int
	MetadataTTL     time.Duration
	RulesLinkFormat string
}

// APIConfig contains HTTP API configuration
type APIConfig struct {
	Port int
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Pretty bool
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Database path
	dbPath := os.Getenv("GREETER_DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".feishu-greeter", "greeter.db")
	}

	debug := isTruthy(os.Getenv("DEBUG"))
	level := os.Getenv("LOG_LEVEL")
	if level == "" && debug {
		level = "debug"
	}

	return &Config{
		Feishu: FeishuConfig{
			AppID:     os.Getenv("FEISHU_APP_ID"),
			AppSecret: os.Getenv("FEISHU_APP_SECRET"),
		},
		Engine: EngineConfig{
			SendTimeout:   envDuration("ENGINE_SEND_TIMEOUT", usecase.DefaultEngineConfig.SendTimeout),
			DeleteTimeout: envDuration("ENGINE_DELETE_TIMEOUT", usecase.DefaultEngineConfig.DeleteTimeout),
			SweepInterval: envDuration("SWEEP_INTERVAL", time.Minute),
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Delivery: DeliveryConfig{
			RatePerSecond:   envFloat("SEND_RATE_PER_SECOND", 5),
			RateBurst:       envInt("SEND_RATE_BURST", 5),
			MetadataTTL:     envDuration("METADATA_CACHE_TTL", time.Minute),
			RulesLinkFormat: os.Getenv("RULES_LINK_FORMAT"),
		},
		API: APIConfig{
			Port: envInt("API_PORT", 9876),
		},
		Log: LogConfig{
			Level:  level,
			Pretty: isTruthy(os.Getenv("LOG_PRETTY")),
		},
		Debug: debug,
	}
}

// ToEngineConfig converts to the lifecycle engine configuration
func (c *Config) ToEngineConfig() usecase.EngineConfig {
	return usecase.EngineConfig{
		SendTimeout:   c.Engine.SendTimeout,
		DeleteTimeout: c.Engine.DeleteTimeout,
	}
}

// ToDataOptions converts to repository options
func (c *Config) ToDataOptions() data.Options {
	return data.Options{
		DBPath: c.Store.DBPath,
		Rate: data.RateConfig{
			PerSecond: c.Delivery.RatePerSecond,
			Burst:     c.Delivery.RateBurst,
		},
		Group: data.GroupConfig{
			CacheTTL:        c.Delivery.MetadataTTL,
			RulesLinkFormat: c.Delivery.RulesLinkFormat,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required"}
	}
	return c.ValidateLocal()
}

// ValidateLocal validates everything except Feishu credentials
func (c *Config) ValidateLocal() error {
	if c.Store.DBPath == "" {
		return &ConfigError{Field: "GREETER_DB_PATH", Message: "required"}
	}
	if c.Engine.SendTimeout <= 0 {
		return &ConfigError{Field: "ENGINE_SEND_TIMEOUT", Message: "must be positive"}
	}
	if c.Engine.DeleteTimeout <= 0 {
		return &ConfigError{Field: "ENGINE_DELETE_TIMEOUT", Message: "must be positive"}
	}
	if c.Engine.SweepInterval <= 0 {
		return &ConfigError{Field: "SWEEP_INTERVAL", Message: "must be positive"}
	}
	if c.Delivery.RatePerSecond < 0 {
		return &ConfigError{Field: "SEND_RATE_PER_SECOND", Message: "must not be negative"}
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return &ConfigError{Field: "API_PORT", Message: "out of range"}
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return &ConfigError{Field: "LOG_LEVEL", Message: err.Error()}
	}
	return nil
}

// NewLogger builds the root logger
func (c *Config) NewLogger(w io.Writer) zerolog.Logger {
	if c.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// envDuration accepts Go durations ("30s") or plain seconds
func envDuration(key string, def time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}
