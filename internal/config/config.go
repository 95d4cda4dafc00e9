// Package config provides configuration management for the arbitration
// pipeline. Configuration is read once at construction and treated as
// immutable afterwards; components receive the structs by value.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"signal-arbiter/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	Quant         QuantConfig        `mapstructure:"quant"`
	Policy        PolicyConfig       `mapstructure:"policy"`
	Debate        DebateConfig       `mapstructure:"debate"`
	Panel         PanelConfig        `mapstructure:"panel"`
	Arbiter       ArbiterConfig      `mapstructure:"arbiter"`
	Risk          RiskLimits         `mapstructure:"risk"`
	PreTrade      OrderRules         `mapstructure:"pretrade"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// QuantConfig holds quant ensemble configuration.
type QuantConfig struct {
	DispersionThreshold float64       `mapstructure:"dispersion_threshold"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
}

// PolicyConfig holds policy gate configuration.
type PolicyConfig struct {
	VetoFloor   float64       `mapstructure:"veto_floor"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// DebateConfig holds adversarial debate configuration.
type DebateConfig struct {
	MaxRebuttalRounds int           `mapstructure:"max_rebuttal_rounds"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
}

// PanelConfig holds voting panel configuration.
type PanelConfig struct {
	Size          int           `mapstructure:"size"`
	MemberTimeout time.Duration `mapstructure:"member_timeout"`
}

// ArbiterConfig holds final arbitration configuration.
type ArbiterConfig struct {
	MaxPosition float64 `mapstructure:"max_position"`
}

// RiskLimits holds the risk gate's configuration. It is disjoint from
// OrderRules: the two gates never share a config section.
type RiskLimits struct {
	MinCashReserve           float64 `mapstructure:"min_cash_reserve"`
	CorrelationThreshold     float64 `mapstructure:"correlation_threshold"`
	SectorConcentrationLimit float64 `mapstructure:"sector_concentration_limit"`
	MaxOpenPositions         int     `mapstructure:"max_open_positions"`
}

// OrderRules holds the pre-trade gate's configuration, disjoint from
// RiskLimits.
type OrderRules struct {
	MinNotional      float64 `mapstructure:"min_notional"`
	MaxNotional      float64 `mapstructure:"max_notional"`
	PriceBandPercent float64 `mapstructure:"price_band_percent"`
	MaxOpenOrders    int     `mapstructure:"max_open_orders"`
}

// NotificationConfig holds escalation notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Credentials holds external service credentials. The bull side and the
// judge run against the primary source; the bear side runs against the
// secondary. The binding is fixed at construction.
type Credentials struct {
	Primary   LLMCredentials  `mapstructure:"primary"`
	Secondary LLMCredentials  `mapstructure:"secondary"`
	Quant     ServiceEndpoint `mapstructure:"quant"`
	Portfolio ServiceEndpoint `mapstructure:"portfolio"`
}

// LLMCredentials holds one reasoning provider's credentials.
type LLMCredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// ServiceEndpoint holds an HTTP collaborator endpoint.
type ServiceEndpoint struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/signal-arbiter"
	}
	return filepath.Join(home, ".config", "signal-arbiter")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadPipelineConfig(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading pipeline.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadPipelineConfig(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("pipeline")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplatePipelineConfig(configDir); err != nil {
				return err
			}
			// Template written; proceed with defaults.
			return v.Unmarshal(cfg)
		}
		return err
	}

	return v.Unmarshal(cfg)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("quant.dispersion_threshold", 0.50)
	v.SetDefault("quant.call_timeout", 10*time.Second)
	v.SetDefault("policy.veto_floor", 0.80)
	v.SetDefault("policy.call_timeout", 30*time.Second)
	v.SetDefault("debate.max_rebuttal_rounds", 2)
	v.SetDefault("debate.call_timeout", 45*time.Second)
	v.SetDefault("panel.size", 10)
	v.SetDefault("panel.member_timeout", 30*time.Second)
	v.SetDefault("arbiter.max_position", 0.12)
	v.SetDefault("risk.min_cash_reserve", 0.10)
	v.SetDefault("risk.correlation_threshold", 0.85)
	v.SetDefault("risk.sector_concentration_limit", 0.30)
	v.SetDefault("risk.max_open_positions", 12)
	v.SetDefault("pretrade.min_notional", 0.005)
	v.SetDefault("pretrade.max_notional", 0.12)
	v.SetDefault("pretrade.price_band_percent", 5.0)
	v.SetDefault("pretrade.max_open_orders", 20)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARBITER_PRIMARY_API_KEY"); v != "" {
		cfg.Credentials.Primary.APIKey = v
	}
	if v := os.Getenv("ARBITER_SECONDARY_API_KEY"); v != "" {
		cfg.Credentials.Secondary.APIKey = v
	}
	if v := os.Getenv("ARBITER_QUANT_URL"); v != "" {
		cfg.Credentials.Quant.URL = v
	}
	if v := os.Getenv("ARBITER_PORTFOLIO_URL"); v != "" {
		cfg.Credentials.Portfolio.URL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Quant.DispersionThreshold < 0 || c.Quant.DispersionThreshold > 1 {
		return fmt.Errorf("quant.dispersion_threshold must be in [0,1]: %w", errors.ErrConfigInvalid)
	}
	if c.Policy.VetoFloor < 0 || c.Policy.VetoFloor > 1 {
		return fmt.Errorf("policy.veto_floor must be in [0,1]: %w", errors.ErrConfigInvalid)
	}
	if c.Debate.MaxRebuttalRounds < 0 || c.Debate.MaxRebuttalRounds > 2 {
		return fmt.Errorf("debate.max_rebuttal_rounds must be in [0,2], total rounds may not exceed 3: %w", errors.ErrConfigInvalid)
	}
	if c.Panel.Size < 3 {
		return fmt.Errorf("panel.size must be at least 3: %w", errors.ErrConfigInvalid)
	}
	if c.Arbiter.MaxPosition <= 0 || c.Arbiter.MaxPosition > 1 {
		return fmt.Errorf("arbiter.max_position must be in (0,1]: %w", errors.ErrConfigInvalid)
	}
	if c.Risk.MinCashReserve < 0 || c.Risk.MinCashReserve > 1 {
		return fmt.Errorf("risk.min_cash_reserve must be in [0,1]: %w", errors.ErrConfigInvalid)
	}
	if c.PreTrade.MinNotional < 0 || c.PreTrade.MaxNotional < c.PreTrade.MinNotional {
		return fmt.Errorf("pretrade notional bounds are inverted: %w", errors.ErrConfigInvalid)
	}
	return nil
}
