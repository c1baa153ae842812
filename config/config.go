// Package config loads analyzer configuration from a YAML file, fills in
// defaults, applies environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"vpa-analyzer/internal/analyzer"
	"vpa-analyzer/internal/candle"
	"vpa-analyzer/internal/logger"
	"vpa-analyzer/internal/percentile"
	"vpa-analyzer/internal/portfolio"
	"vpa-analyzer/internal/regime"
	"vpa-analyzer/internal/strategy"
	"vpa-analyzer/internal/window"
)

// ErrConfiguration wraps every load or validation failure.
var ErrConfiguration = errors.New("configuration error")

var validate = validator.New()

// Config is the full application configuration.
type Config struct {
	Analysis     Analysis             `yaml:"analysis"`
	Source       Source               `yaml:"source"`
	SQLite       SQLite               `yaml:"sqlite"`
	Redis        Redis                `yaml:"redis"`
	Gateway      Gateway              `yaml:"gateway"`
	Metrics      Metrics              `yaml:"metrics"`
	Notification Notification         `yaml:"notification"`
	Sizing       portfolio.RiskLimits `yaml:"sizing"`
	Log          logger.Config        `yaml:"log"`
}

// Analysis configures the analytics core.
type Analysis struct {
	Windows           window.Lengths             `yaml:"windows"`
	Percentile        percentile.Config          `yaml:"percentile"`
	ADXPeriod         int                        `yaml:"adx_period" default:"14" validate:"gte=1"`
	Patterns          candle.PatternConfig       `yaml:"patterns"`
	Regime            regime.Config              `yaml:"regime"`
	Score             strategy.ScoreConfig       `yaml:"score"`
	TradingParameters strategy.TradingParameters `yaml:"trading_parameters"`
	Actionability     strategy.Actionability     `yaml:"actionability"`
}

// Source selects where bars come from.
type Source struct {
	Kind        string `yaml:"kind" default:"csv" validate:"oneof=csv sqlite redis"`
	Path        string `yaml:"path" default:"data/spy_data.csv"`
	Symbol      string `yaml:"symbol" default:"SPY" validate:"required"`
	UseAdjClose bool   `yaml:"use_adj_close"`
	MaxRows     int    `yaml:"max_rows" validate:"gte=0"`
	From        string `yaml:"from" validate:"omitempty,datetime=2006-01-02"`
}

// SQLite configures the bar history and signal journal.
type SQLite struct {
	Path           string `yaml:"path" default:"data/vpa.db" validate:"required"`
	JournalSignals bool   `yaml:"journal_signals"`
	BatchSize      int    `yaml:"batch_size" default:"500" validate:"gte=1"`
}

// Redis configures signal publication and live bar consumption.
type Redis struct {
	Enabled       bool   `yaml:"enabled"`
	Addr          string `yaml:"addr" default:"localhost:6379" validate:"required"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db" validate:"gte=0"`
	StreamMaxLen  int64  `yaml:"stream_max_len" default:"10000" validate:"gte=1"`
	ConsumerGroup string `yaml:"consumer_group" default:"vpa-analyzer"`
	ConsumerName  string `yaml:"consumer_name" default:"analyzer-1"`
}

// Gateway configures the WebSocket broadcast of results.
type Gateway struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8090"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":9102"`
}

// Notification configures alerts for actionable recommendations.
type Notification struct {
	WebhookURL     string        `yaml:"webhook_url" validate:"omitempty,url"`
	TelegramToken  string        `yaml:"telegram_token"`
	TelegramChatID string        `yaml:"telegram_chat_id" validate:"required_with=TelegramToken"`
	Timeout        time.Duration `yaml:"timeout" default:"5s"`
	// OnlyActionable suppresses alerts for HOLD results.
	OnlyActionable bool `yaml:"only_actionable" default:"true"`
}

// Default returns a configuration populated with defaults only.
func Default() (*Config, error) {
	c := &Config{}
	c.Analysis.TradingParameters = strategy.DefaultTradingParameters()
	if err := defaults.Set(c); err != nil {
		return nil, fmt.Errorf("%w: defaults: %w", ErrConfiguration, err)
	}
	return c, nil
}

// Load reads path (empty path means defaults only), applies environment
// overrides and validates. Every failure wraps ErrConfiguration.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read config: %w", ErrConfiguration, err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("%w: parse config: %w", ErrConfiguration, err)
		}
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return c, nil
}

// applyEnv overrides selected fields from VPA_* environment variables.
func (c *Config) applyEnv() {
	c.Source.Kind = getEnv("VPA_SOURCE", c.Source.Kind)
	c.Source.Path = getEnv("VPA_SOURCE_PATH", c.Source.Path)
	c.Source.Symbol = getEnv("VPA_SYMBOL", c.Source.Symbol)
	c.Source.MaxRows = getEnvInt("VPA_MAX_ROWS", c.Source.MaxRows)
	c.SQLite.Path = getEnv("VPA_SQLITE_PATH", c.SQLite.Path)
	c.Redis.Addr = getEnv("VPA_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("VPA_REDIS_PASSWORD", c.Redis.Password)
	c.Metrics.Addr = getEnv("VPA_METRICS_ADDR", c.Metrics.Addr)
	c.Log.Level = getEnv("VPA_LOG_LEVEL", c.Log.Level)
	c.Notification.WebhookURL = getEnv("VPA_WEBHOOK_URL", c.Notification.WebhookURL)
	c.Notification.TelegramToken = getEnv("VPA_TELEGRAM_TOKEN", c.Notification.TelegramToken)
	c.Notification.TelegramChatID = getEnv("VPA_TELEGRAM_CHAT_ID", c.Notification.TelegramChatID)
}

// Validate runs struct tag validation plus the cross-field checks tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if err := c.Analysis.Percentile.Validate(); err != nil {
		return err
	}
	if c.Analysis.Actionability.SellAt >= c.Analysis.Actionability.BuyAt {
		return fmt.Errorf("actionability sell_at (%v) must be below buy_at (%v)",
			c.Analysis.Actionability.SellAt, c.Analysis.Actionability.BuyAt)
	}
	return nil
}

// FromTime parses Source.From (zero time when unset).
func (c *Config) FromTime() time.Time {
	if c.Source.From == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.DateOnly, c.Source.From)
	return t
}

// AnalyzerConfig projects the analysis section onto the core's config.
func (c *Config) AnalyzerConfig() analyzer.Config {
	a := c.Analysis
	return analyzer.Config{
		Windows:    a.Windows,
		Percentile: a.Percentile,
		ADXPeriod:  a.ADXPeriod,
		Patterns:   a.Patterns,
		Regime:     a.Regime,
		Strategy: strategy.Config{
			Params:        a.TradingParameters,
			Score:         a.Score,
			Actionability: a.Actionability,
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
