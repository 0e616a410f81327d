// Package config loads the engine's configuration from a YAML file layered
// with DERIV_-prefixed environment variable overrides, via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the fully-resolved engine configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level"`

	Deriv DerivConfig `mapstructure:"deriv"`

	DefaultStake    decimal.Decimal `mapstructure:"-"`
	DefaultStakeStr string          `mapstructure:"default_stake"`
	DefaultDuration int             `mapstructure:"default_duration"`
	DefaultUnit     string          `mapstructure:"default_duration_unit"`
	DefaultSymbol   string          `mapstructure:"default_symbol"`

	Martingale MartingaleConfig `mapstructure:"martingale"`
	Risk       RiskConfig       `mapstructure:"risk"`

	// ExtremeVolatilityBlocksTrading mirrors the original implementation's
	// flag and defaults to false. It is loaded but not read by any
	// component: the entry filter blocks EXTREME_HIGH and EXTREME_LOW
	// volatility zones regardless of its value.
	ExtremeVolatilityBlocksTrading bool `mapstructure:"extreme_volatility_blocks_trading"`

	PaperTrading bool `mapstructure:"paper_trading"`

	RecoveryDir string `mapstructure:"recovery_dir"`
	TokenKeyEnv string `mapstructure:"token_key_env"`

	HTTPAddr string `mapstructure:"http_addr"`
}

// DerivConfig holds exchange connection parameters.
type DerivConfig struct {
	AppID         string `mapstructure:"app_id"`
	Endpoint      string `mapstructure:"endpoint"`
	Token         string `mapstructure:"token"`
	FallbackToken string `mapstructure:"fallback_token"`
}

// MartingaleConfig parameterizes the recovery multiplier and ceiling.
type MartingaleConfig struct {
	Multiplier    float64 `mapstructure:"multiplier"`
	MaxLevel      int     `mapstructure:"max_level"`
}

// RiskConfig parameterizes the Trade Manager's risk-preflight thresholds.
type RiskConfig struct {
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`
	DailyLossCapStr      string  `mapstructure:"daily_loss_cap"`
	ProjectedRiskWarnPct float64 `mapstructure:"projected_risk_warn_pct"`
	ProjectedRiskAutoStop bool   `mapstructure:"projected_risk_auto_stop"`
	CircuitBreakerFailures int   `mapstructure:"circuit_breaker_failures"`
	CircuitBreakerWindow  time.Duration `mapstructure:"circuit_breaker_window"`
	CircuitBreakerPause   time.Duration `mapstructure:"circuit_breaker_pause"`
}

// Default returns the spec-authoritative default configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Deriv: DerivConfig{
			AppID:    "1089",
			Endpoint: "wss://ws.derivws.com/websockets/v3",
		},
		DefaultStakeStr: "1.00",
		DefaultDuration: 5,
		DefaultUnit:     "t",
		DefaultSymbol:   "R_100",
		Martingale: MartingaleConfig{
			Multiplier: 2.0,
			MaxLevel:   5,
		},
		Risk: RiskConfig{
			MaxConsecutiveLosses:  5,
			DailyLossCapStr:       "0",
			ProjectedRiskWarnPct:  0.20,
			ProjectedRiskAutoStop: false,
			CircuitBreakerFailures: 3,
			CircuitBreakerWindow:   60 * time.Second,
			CircuitBreakerPause:    120 * time.Second,
		},
		ExtremeVolatilityBlocksTrading: false,
		RecoveryDir:                    "./data/recovery",
		TokenKeyEnv:                    "DERIV_TOKEN_KEY",
		HTTPAddr:                       ":8090",
	}
}

// Load reads configPath (if it exists) merged with DERIV_-prefixed
// environment overrides, falling back to Default() for anything unset.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("DERIV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setViperDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}

	stake, err := decimal.NewFromString(cfg.DefaultStakeStr)
	if err != nil {
		return cfg, fmt.Errorf("default_stake: %w", err)
	}
	cfg.DefaultStake = stake

	return cfg, nil
}

func setViperDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("deriv.app_id", cfg.Deriv.AppID)
	v.SetDefault("deriv.endpoint", cfg.Deriv.Endpoint)
	v.SetDefault("default_stake", cfg.DefaultStakeStr)
	v.SetDefault("default_duration", cfg.DefaultDuration)
	v.SetDefault("default_duration_unit", cfg.DefaultUnit)
	v.SetDefault("default_symbol", cfg.DefaultSymbol)
	v.SetDefault("martingale.multiplier", cfg.Martingale.Multiplier)
	v.SetDefault("martingale.max_level", cfg.Martingale.MaxLevel)
	v.SetDefault("risk.max_consecutive_losses", cfg.Risk.MaxConsecutiveLosses)
	v.SetDefault("risk.daily_loss_cap", cfg.Risk.DailyLossCapStr)
	v.SetDefault("risk.projected_risk_warn_pct", cfg.Risk.ProjectedRiskWarnPct)
	v.SetDefault("risk.projected_risk_auto_stop", cfg.Risk.ProjectedRiskAutoStop)
	v.SetDefault("risk.circuit_breaker_failures", cfg.Risk.CircuitBreakerFailures)
	v.SetDefault("risk.circuit_breaker_window", cfg.Risk.CircuitBreakerWindow)
	v.SetDefault("risk.circuit_breaker_pause", cfg.Risk.CircuitBreakerPause)
	v.SetDefault("extreme_volatility_blocks_trading", cfg.ExtremeVolatilityBlocksTrading)
	v.SetDefault("paper_trading", cfg.PaperTrading)
	v.SetDefault("recovery_dir", cfg.RecoveryDir)
	v.SetDefault("token_key_env", cfg.TokenKeyEnv)
	v.SetDefault("http_addr", cfg.HTTPAddr)
}
