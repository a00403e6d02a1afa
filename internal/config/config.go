// Package config loads the deployment configuration shared by the
// tradepilot processes. Secrets are never written to the YAML file; they
// come from the environment and override whatever the file holds.
package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/stackmesh/tradepilot/internal/types"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// Environment variable overrides. Set, they win over the file.
const (
	EnvRedisAddr        = "TRADEPILOT_REDIS_ADDR"
	EnvBinanceAPIKey    = "TRADEPILOT_BINANCE_API_KEY"
	EnvBinanceSecretKey = "TRADEPILOT_BINANCE_SECRET_KEY"
	EnvPolygonAPIKey    = "TRADEPILOT_POLYGON_API_KEY"
)

// StoreConfig selects and configures the shared store.
type StoreConfig struct {
	// RedisAddr is the host:port of the Redis instance.
	RedisAddr string `yaml:"redis_addr" validate:"required"`
	// RedisDB is the logical database number.
	RedisDB int `yaml:"redis_db" validate:"gte=0"`
	// RedisPassword is optional and normally empty.
	RedisPassword string `yaml:"redis_password"`
}

// ManagerConfig configures the strategy manager process.
type ManagerConfig struct {
	// PollInterval is the strategy poll cadence.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`
	// TieBreak selects how equal-confidence signals resolve.
	TieBreak string `yaml:"tie_break" validate:"omitempty,oneof=highest_confidence registration_order"`
	// RSIOverbought and RSIOversold configure the bundled RSI strategy.
	RSIOverbought float64 `yaml:"rsi_overbought"`
	RSIOversold   float64 `yaml:"rsi_oversold"`
}

// ExecutorConfig configures the trade executor process.
type ExecutorConfig struct {
	// SweepInterval is the executor poll cadence.
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`
	// Sizing derives order notional from the account.
	Sizing types.SizingConfig `yaml:"sizing"`
	// EnforcePDT toggles the pattern-day-trade check for equities.
	EnforcePDT bool `yaml:"enforce_pdt"`
}

// CollectorConfig configures the market data collector process.
type CollectorConfig struct {
	// FetchInterval is the market data poll cadence.
	FetchInterval time.Duration `yaml:"fetch_interval" validate:"gt=0"`
	// RSIPeriod is the indicator lookback in bars.
	RSIPeriod int `yaml:"rsi_period" validate:"gte=0"`
	// PolygonAPIKey is normally supplied via TRADEPILOT_POLYGON_API_KEY.
	PolygonAPIKey string `yaml:"polygon_api_key"`
}

// BrokerConfig configures the order venue.
type BrokerConfig struct {
	// Kind selects the venue adapter: binance or paper.
	Kind string `yaml:"kind" validate:"required,oneof=binance paper"`
	// APIKey and SecretKey are normally supplied via the environment.
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	// QuoteCurrency is the venue quote asset, e.g. USDT.
	QuoteCurrency string `yaml:"quote_currency"`
	// UseTestnet points the binance adapter at the test venue.
	UseTestnet bool `yaml:"use_testnet"`
	// PaperStartingCash seeds the paper venue.
	PaperStartingCash float64 `yaml:"paper_starting_cash"`
}

// APIConfig configures the operator HTTP server.
type APIConfig struct {
	// ListenAddr is the host:port the server binds, e.g. :8080.
	ListenAddr string `yaml:"listen_addr" validate:"required"`
}

// Config is the root configuration document.
type Config struct {
	// Symbols is the instrument universe shared by every process.
	Symbols []string `yaml:"symbols" validate:"required,min=1"`
	// LogLevel filters process logging: debug, info, warn or error.
	LogLevel  string          `yaml:"log_level" validate:"required,oneof=debug info warn error"`
	Store     StoreConfig     `yaml:"store"`
	Manager   ManagerConfig   `yaml:"manager"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Collector CollectorConfig `yaml:"collector"`
	Broker    BrokerConfig    `yaml:"broker"`
	API       APIConfig       `yaml:"api"`
}

// Default returns the configuration used when the file omits a section.
func Default() Config {
	return Config{
		LogLevel: "info",
		Store: StoreConfig{
			RedisAddr: "localhost:6379",
		},
		Manager: ManagerConfig{
			PollInterval:  60 * time.Second,
			TieBreak:      "highest_confidence",
			RSIOverbought: 70,
			RSIOversold:   30,
		},
		Executor: ExecutorConfig{
			SweepInterval: 10 * time.Second,
			EnforcePDT:    true,
		},
		Collector: CollectorConfig{
			FetchInterval: 60 * time.Second,
			RSIPeriod:     14,
		},
		Broker: BrokerConfig{
			Kind:              "paper",
			QuoteCurrency:     "USDT",
			PaperStartingCash: 100000,
		},
		API: APIConfig{
			ListenAddr: ":8080",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. An empty path returns the defaults with
// environment overrides applied.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(raw, &config); err != nil {
			return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config file", err)
		}
	}

	applyEnv(&config)

	if err := Validate(config); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks the configuration, including the sizing sub-config.
func Validate(config Config) error {
	validate := validator.New()

	if err := validate.Struct(config); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	if config.Executor.Sizing.Mode != "" {
		if err := config.Executor.Sizing.Validate(); err != nil {
			return err
		}
	}

	return nil
}

func applyEnv(config *Config) {
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		config.Store.RedisAddr = addr
	}

	if key := os.Getenv(EnvBinanceAPIKey); key != "" {
		config.Broker.APIKey = key
	}

	if key := os.Getenv(EnvBinanceSecretKey); key != "" {
		config.Broker.SecretKey = key
	}

	if key := os.Getenv(EnvPolygonAPIKey); key != "" {
		config.Collector.PolygonAPIKey = key
	}
}
