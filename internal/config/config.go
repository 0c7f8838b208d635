// Package config loads the riskcore configuration via viper with sane
// defaults for every knob.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/unifex/riskcore/internal/market"
)

// PairConfig configures one correlated symbol pair.
type PairConfig struct {
	A        string  `mapstructure:"a" yaml:"a" json:"a"`
	B        string  `mapstructure:"b" yaml:"b" json:"b"`
	Expected float64 `mapstructure:"expected" yaml:"expected" json:"expected"`
}

// Config is the full riskcore configuration.
type Config struct {
	Server struct {
		Host string `mapstructure:"host" yaml:"host" json:"host"`
		Port int    `mapstructure:"port" yaml:"port" json:"port"`
	} `mapstructure:"server" yaml:"server" json:"server"`

	Log struct {
		Level string `mapstructure:"level" yaml:"level" json:"level"`
	} `mapstructure:"log" yaml:"log" json:"log"`

	Market struct {
		HistorySize               int           `mapstructure:"history_size" yaml:"history_size" json:"history_size"`
		PriceSpikeThreshold       float64       `mapstructure:"price_spike_threshold" yaml:"price_spike_threshold" json:"price_spike_threshold"`
		VolumeSpikeThreshold      float64       `mapstructure:"volume_spike_threshold" yaml:"volume_spike_threshold" json:"volume_spike_threshold"`
		SpreadThreshold           float64       `mapstructure:"spread_threshold" yaml:"spread_threshold" json:"spread_threshold"`
		StaleAfter                time.Duration `mapstructure:"stale_after" yaml:"stale_after" json:"stale_after"`
		CorrelationBreakThreshold float64       `mapstructure:"correlation_break_threshold" yaml:"correlation_break_threshold" json:"correlation_break_threshold"`
	} `mapstructure:"market" yaml:"market" json:"market"`

	Circuit struct {
		RecoveryDuration  time.Duration       `mapstructure:"recovery_duration" yaml:"recovery_duration" json:"recovery_duration"`
		CorrelatedSymbols map[string][]string `mapstructure:"correlated_symbols" yaml:"correlated_symbols" json:"correlated_symbols"`
	} `mapstructure:"circuit" yaml:"circuit" json:"circuit"`

	Risk struct {
		AnnualVolatility  float64 `mapstructure:"annual_volatility" yaml:"annual_volatility" json:"annual_volatility"`
		DefaultMarginRate float64 `mapstructure:"default_margin_rate" yaml:"default_margin_rate" json:"default_margin_rate"`
		OptionMarginRate  float64 `mapstructure:"option_margin_rate" yaml:"option_margin_rate" json:"option_margin_rate"`
		WarningRatio      float64 `mapstructure:"warning_ratio" yaml:"warning_ratio" json:"warning_ratio"`
		LiquidationRatio  float64 `mapstructure:"liquidation_ratio" yaml:"liquidation_ratio" json:"liquidation_ratio"`
		DrawdownWindow    int     `mapstructure:"drawdown_window" yaml:"drawdown_window" json:"drawdown_window"`
	} `mapstructure:"risk" yaml:"risk" json:"risk"`

	Execution struct {
		MaxSlippagePercent float64       `mapstructure:"max_slippage_percent" yaml:"max_slippage_percent" json:"max_slippage_percent"`
		PollInterval       time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
		TimeLimit          time.Duration `mapstructure:"time_limit" yaml:"time_limit" json:"time_limit"`
	} `mapstructure:"execution" yaml:"execution" json:"execution"`

	Monitor struct {
		Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
		Symbols  []string      `mapstructure:"symbols" yaml:"symbols" json:"symbols"`
	} `mapstructure:"monitor" yaml:"monitor" json:"monitor"`

	Pairs []PairConfig `mapstructure:"pairs" yaml:"pairs" json:"pairs"`
}

// Load reads configuration from the given yaml file (optional) and RISKCORE_*
// environment variables, over built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("RISKCORE")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// MarketPairs converts the configured pairs into detector pairs.
func (c *Config) MarketPairs() []market.Pair {
	pairs := make([]market.Pair, 0, len(c.Pairs))
	for _, p := range c.Pairs {
		pairs = append(pairs, market.Pair{A: p.A, B: p.B, Expected: p.Expected})
	}
	return pairs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("log.level", "info")

	v.SetDefault("market.history_size", 60)
	v.SetDefault("market.price_spike_threshold", 0.10)
	v.SetDefault("market.volume_spike_threshold", 2.0)
	v.SetDefault("market.spread_threshold", 0.02)
	v.SetDefault("market.stale_after", time.Minute)
	v.SetDefault("market.correlation_break_threshold", 0.3)

	v.SetDefault("circuit.recovery_duration", 5*time.Minute)
	v.SetDefault("circuit.correlated_symbols", map[string][]string{
		"BTC": {"ETH", "SOL"},
		"ETH": {"BTC", "SOL"},
		"SPY": {"QQQ", "IVV"},
		"QQQ": {"SPY", "IVV"},
		"EUR": {"GBP", "JPY"},
	})

	v.SetDefault("risk.annual_volatility", 0.15)
	v.SetDefault("risk.default_margin_rate", 0.05)
	v.SetDefault("risk.option_margin_rate", 1.0)
	v.SetDefault("risk.warning_ratio", 0.7)
	v.SetDefault("risk.liquidation_ratio", 0.8)
	v.SetDefault("risk.drawdown_window", 252)

	v.SetDefault("execution.max_slippage_percent", 0.5)
	v.SetDefault("execution.poll_interval", 100*time.Millisecond)
	v.SetDefault("execution.time_limit", 5*time.Second)

	v.SetDefault("monitor.interval", 5*time.Second)
	v.SetDefault("monitor.symbols", []string{})

	v.SetDefault("pairs", []map[string]interface{}{
		{"a": "BTC", "b": "ETH", "expected": 0.75},
		{"a": "SPY", "b": "QQQ", "expected": 0.75},
		{"a": "EUR", "b": "GBP", "expected": 0.75},
		{"a": "AAPL", "b": "MSFT", "expected": 0.75},
	})
}
