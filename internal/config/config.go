// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Sources   map[string]SourceConfig `mapstructure:"sources"`
	Detector  DetectorConfig          `mapstructure:"detector"`
	Cache     CacheConfig             `mapstructure:"cache"`
	Governor  GovernorConfig          `mapstructure:"governor"`
	Scanner   ScannerConfig           `mapstructure:"scanner"`
	Store     StoreConfig             `mapstructure:"store"`
	Notify    NotifyConfig            `mapstructure:"notify"`
	Telemetry TelemetryConfig         `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// SourceConfig holds per-venue settings. Providers have wildly different
// rate limits, so these are always externally supplied; a venue missing
// from the map falls back to the governor's conservative default.
type SourceConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	Burst       int     `mapstructure:"burst"`
	TakerFeePct float64 `mapstructure:"taker_fee_pct"`
	BaseURL     string  `mapstructure:"base_url"` // override for testing, empty = venue default
}

// DetectorConfig holds opportunity detection thresholds.
type DetectorConfig struct {
	MinProfitPct      float64   `mapstructure:"min_profit_pct"`
	MaxSlippagePct    float64   `mapstructure:"max_slippage_pct"`
	MinLiquidityScore float64   `mapstructure:"min_liquidity_score"`
	SizeLadder        []float64 `mapstructure:"size_ladder"` // candidate trade notionals, quote currency, ascending
	BookDepth         int       `mapstructure:"book_depth"`
	TickerSanityPct   float64   `mapstructure:"ticker_sanity_pct"` // max mid-vs-ticker deviation, 0 disables
}

// CacheConfig holds order book cache settings.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// GovernorConfig holds the shared throttling retry policy.
type GovernorConfig struct {
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// ScannerConfig holds scan orchestration settings.
type ScannerConfig struct {
	Symbols              []string      `mapstructure:"symbols"`
	Interval             time.Duration `mapstructure:"interval"`
	BatchSize            int           `mapstructure:"batch_size"`
	BatchDelay           time.Duration `mapstructure:"batch_delay"`
	SignificantProfitPct float64       `mapstructure:"significant_profit_pct"`
}

// StoreConfig selects and configures the opportunity store.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"` // "memory" or "postgres"
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// NotifyConfig holds alert delivery settings.
type NotifyConfig struct {
	DiscordWebhookURL string `mapstructure:"discord_webhook_url"`
	TelegramBotToken  string `mapstructure:"telegram_bot_token"`
	TelegramChatID    string `mapstructure:"telegram_chat_id"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Exporter       string `mapstructure:"exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool   `mapstructure:"otlp_insecure"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// SizeLadderDecimal returns the size ladder as decimal.Decimal slice.
func (c *DetectorConfig) SizeLadderDecimal() []decimal.Decimal {
	result := make([]decimal.Decimal, len(c.SizeLadder))
	for i, s := range c.SizeLadder {
		result[i] = decimal.NewFromFloat(s)
	}
	return result
}

// TickerSanityPctDecimal returns the ticker deviation cap as decimal.
func (c *DetectorConfig) TickerSanityPctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.TickerSanityPct)
}

// MinProfitPctDecimal returns the minimum profit percent as decimal.
func (c *DetectorConfig) MinProfitPctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinProfitPct)
}

// MaxSlippagePctDecimal returns the slippage cap as decimal.
func (c *DetectorConfig) MaxSlippagePctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxSlippagePct)
}

// MinLiquidityScoreDecimal returns the liquidity floor as decimal.
func (c *DetectorConfig) MinLiquidityScoreDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MinLiquidityScore)
}

// SignificantProfitPctDecimal returns the persistence threshold as decimal.
func (c *ScannerConfig) SignificantProfitPctDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.SignificantProfitPct)
}

// EnabledSources returns the ids of all enabled sources.
func (c *Config) EnabledSources() []string {
	out := make([]string, 0, len(c.Sources))
	for id, src := range c.Sources {
		if src.Enabled {
			out = append(out, id)
		}
	}
	return out
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.health_port", "ARB_HEALTH_PORT")

	// Scanner
	v.BindEnv("scanner.symbols", "ARB_SYMBOLS")
	v.BindEnv("scanner.interval", "ARB_SCAN_INTERVAL")
	v.BindEnv("scanner.significant_profit_pct", "ARB_SIGNIFICANT_PROFIT_PCT")

	// Detector
	v.BindEnv("detector.min_profit_pct", "ARB_MIN_PROFIT_PCT")
	v.BindEnv("detector.max_slippage_pct", "ARB_MAX_SLIPPAGE_PCT")

	// Store
	v.BindEnv("store.driver", "ARB_STORE_DRIVER")
	v.BindEnv("store.dsn", "ARB_STORE_DSN", "DATABASE_URL")

	// Notify
	v.BindEnv("notify.discord_webhook_url", "ARB_DISCORD_WEBHOOK_URL", "DISCORD_WEBHOOK_URL")
	v.BindEnv("notify.telegram_bot_token", "ARB_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("notify.telegram_chat_id", "ARB_TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.exporter", "ARB_OTEL_EXPORTER")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_insecure", "ARB_OTEL_INSECURE")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "arbscan")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	// Source defaults: both reference venues enabled with public-API limits.
	v.SetDefault("sources.binance.enabled", true)
	v.SetDefault("sources.binance.rate_per_sec", 10)
	v.SetDefault("sources.binance.burst", 20)
	v.SetDefault("sources.binance.taker_fee_pct", 0.1)
	v.SetDefault("sources.kraken.enabled", true)
	v.SetDefault("sources.kraken.rate_per_sec", 1)
	v.SetDefault("sources.kraken.burst", 5)
	v.SetDefault("sources.kraken.taker_fee_pct", 0.26)

	// Detector defaults
	v.SetDefault("detector.min_profit_pct", 0.5)
	v.SetDefault("detector.max_slippage_pct", 2.0)
	v.SetDefault("detector.min_liquidity_score", 40)
	v.SetDefault("detector.size_ladder", []float64{100, 250, 500, 1000, 2500, 5000, 10000})
	v.SetDefault("detector.book_depth", 50)
	v.SetDefault("detector.ticker_sanity_pct", 20)

	// Cache defaults: order books go stale in seconds.
	v.SetDefault("cache.ttl", "5s")

	// Governor defaults
	v.SetDefault("governor.base_backoff", "1s")
	v.SetDefault("governor.max_backoff", "60s")
	v.SetDefault("governor.multiplier", 2)
	v.SetDefault("governor.max_retries", 3)

	// Scanner defaults
	v.SetDefault("scanner.symbols", []string{"BTC/USDT", "ETH/USDT"})
	v.SetDefault("scanner.interval", "60s")
	v.SetDefault("scanner.batch_size", 5)
	v.SetDefault("scanner.batch_delay", "500ms")
	v.SetDefault("scanner.significant_profit_pct", 2.0)

	// Store defaults
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.max_conns", 4)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arbscan")
	v.SetDefault("telemetry.exporter", "otlp-grpc")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Scanner.Symbols) == 0 {
		return fmt.Errorf("scanner.symbols cannot be empty")
	}
	if len(c.EnabledSources()) < 2 {
		return fmt.Errorf("at least two enabled sources are required, have %d", len(c.EnabledSources()))
	}
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive")
	}
	if c.Scanner.BatchSize <= 0 {
		return fmt.Errorf("scanner.batch_size must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if len(c.Detector.SizeLadder) == 0 {
		return fmt.Errorf("detector.size_ladder cannot be empty")
	}
	for i := 1; i < len(c.Detector.SizeLadder); i++ {
		if c.Detector.SizeLadder[i] <= c.Detector.SizeLadder[i-1] {
			return fmt.Errorf("detector.size_ladder must be strictly ascending")
		}
	}
	if c.Scanner.SignificantProfitPct < c.Detector.MinProfitPct {
		return fmt.Errorf("scanner.significant_profit_pct must not be below detector.min_profit_pct")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	return nil
}
