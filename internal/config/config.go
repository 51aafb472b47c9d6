// Package config loads runtime configuration with viper. Values come from an
// optional YAML file and EXEC_-prefixed environment variables, with defaults
// suitable for local development.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/finai-nexus/execution-core/internal/types"
)

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RouterConfig struct {
	SubmitTimeout time.Duration `mapstructure:"submit_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	PollTimeout   time.Duration `mapstructure:"poll_timeout"`
	PollWorkers   int           `mapstructure:"poll_workers"`
}

type HealthConfig struct {
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type VenueSelectionConfig struct {
	FailoverThreshold int     `mapstructure:"failover_threshold"`
	FeeWeightFactor   float64 `mapstructure:"fee_weight_factor"`
}

// VenueConfig declares one venue account registered at startup.
type VenueConfig struct {
	VenueID     string   `mapstructure:"venue_id"`
	DisplayName string   `mapstructure:"display_name"`
	Pairs       []string `mapstructure:"pairs"`
	MakerFee    float64  `mapstructure:"maker_fee"`
	TakerFee    float64  `mapstructure:"taker_fee"`
	MinQuantity float64  `mapstructure:"min_quantity"`
	MaxQuantity float64  `mapstructure:"max_quantity"`
}

// RiskConfig is the global risk limit set applied to every client.
type RiskConfig struct {
	MaxPositionSize     float64 `mapstructure:"max_position_size"`
	MaxDailyLoss        float64 `mapstructure:"max_daily_loss"`
	MaxLeverage         float64 `mapstructure:"max_leverage"`
	CorrelationLimit    float64 `mapstructure:"correlation_limit"`
	VolatilityThreshold float64 `mapstructure:"volatility_threshold"`
	LiquidityThreshold  float64 `mapstructure:"liquidity_threshold"`
}

type AuditConfig struct {
	Buffer int `mapstructure:"buffer"`
}

type Config struct {
	Server   ServerConfig         `mapstructure:"server"`
	Database DatabaseConfig       `mapstructure:"database"`
	Router   RouterConfig         `mapstructure:"router"`
	Health   HealthConfig         `mapstructure:"health"`
	Venue    VenueSelectionConfig `mapstructure:"venue"`
	Venues   []VenueConfig        `mapstructure:"venues"`
	Risk     RiskConfig           `mapstructure:"risk"`
	Audit    AuditConfig          `mapstructure:"audit"`
}

// Load reads configuration from the optional file at path (searched in the
// working directory when empty) and the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("EXEC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.path", "execution.db")

	v.SetDefault("router.submit_timeout", 30*time.Second)
	v.SetDefault("router.retry_attempts", 3)
	v.SetDefault("router.retry_backoff", time.Second)
	v.SetDefault("router.poll_interval", 5*time.Second)
	v.SetDefault("router.poll_timeout", 10*time.Second)
	v.SetDefault("router.poll_workers", 4)

	v.SetDefault("health.probe_interval", 30*time.Second)
	v.SetDefault("health.probe_timeout", 10*time.Second)

	v.SetDefault("venue.failover_threshold", 3)
	v.SetDefault("venue.fee_weight_factor", 10000.0)

	v.SetDefault("risk.max_position_size", 1000000.0)
	v.SetDefault("risk.max_daily_loss", 50000.0)
	v.SetDefault("risk.max_leverage", 10.0)
	v.SetDefault("risk.correlation_limit", 0.8)
	v.SetDefault("risk.volatility_threshold", 0.5)
	v.SetDefault("risk.liquidity_threshold", 0.2)

	v.SetDefault("audit.buffer", 1024)

	v.SetDefault("venues", []map[string]interface{}{
		{
			"venue_id":     "VEN-ALPHA",
			"display_name": "Alpha Exchange",
			"pairs":        []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"},
			"maker_fee":    0.0008,
			"taker_fee":    0.0010,
			"min_quantity": 0.0001,
			"max_quantity": 1000.0,
		},
		{
			"venue_id":     "VEN-BETA",
			"display_name": "Beta Markets",
			"pairs":        []string{"BTC/USDT", "ETH/USDT"},
			"maker_fee":    0.0004,
			"taker_fee":    0.0006,
			"min_quantity": 0.001,
			"max_quantity": 500.0,
		},
		{
			"venue_id":     "VEN-GAMMA",
			"display_name": "Gamma Dark Pool",
			"pairs":        []string{"BTC/USDT"},
			"maker_fee":    0.0002,
			"taker_fee":    0.0003,
			"min_quantity": 0.01,
			"max_quantity": 5000.0,
		},
	})
}

// Limits converts the configured risk values into the domain limit set.
func (c *RiskConfig) Limits() types.RiskLimitSet {
	return types.RiskLimitSet{
		MaxPositionSize:     decimal.NewFromFloat(c.MaxPositionSize),
		MaxDailyLoss:        decimal.NewFromFloat(c.MaxDailyLoss),
		MaxLeverage:         decimal.NewFromFloat(c.MaxLeverage),
		CorrelationLimit:    decimal.NewFromFloat(c.CorrelationLimit),
		VolatilityThreshold: decimal.NewFromFloat(c.VolatilityThreshold),
		LiquidityThreshold:  decimal.NewFromFloat(c.LiquidityThreshold),
	}
}

// StaticLimitSource serves one global limit set for every client.
type StaticLimitSource struct {
	limits types.RiskLimitSet
}

func NewStaticLimitSource(limits types.RiskLimitSet) *StaticLimitSource {
	return &StaticLimitSource{limits: limits}
}

func (s *StaticLimitSource) LimitsFor(string) types.RiskLimitSet {
	return s.limits
}
