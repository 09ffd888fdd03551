package infra

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"trader-sim/internal/domain"
)

// Config holds every tunable of the simulator. Values from the yaml file are
// layered over defaults, then sensitive/deploy-specific fields can be
// overridden through environment variables.
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Market struct {
		Room           string               `yaml:"room"`
		TickIntervalMS int                  `yaml:"tick_interval_ms"`
		StartingCash   float64              `yaml:"starting_cash"`
		Stocks         []domain.StockConfig `yaml:"stocks"`
	} `yaml:"market"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
}

// Default returns a runnable configuration with the three stock presets:
// BLUE is the stable safety pick, CPTO the responsive day-trader stock, and
// MEME the low-liquidity chaos stock that decays when ignored.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Market.Room = "main"
	cfg.Market.TickIntervalMS = 1000
	cfg.Market.StartingCash = 10000
	cfg.Market.Stocks = []domain.StockConfig{
		{Symbol: "BLUE", InitialPrice: 300.00, Volatility: 0.0004, Liquidity: 250000, Drift: 0.00002},
		{Symbol: "CPTO", InitialPrice: 45.50, Volatility: 0.006, Liquidity: 15000, Drift: 0.0001},
		{Symbol: "MEME", InitialPrice: 4.20, Volatility: 0.035, Liquidity: 2000, Drift: -0.0004},
	}
	cfg.Storage.Path = "data/trader.db"
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/trader.log"
	return cfg
}

// LoadConfig reads and validates the yaml config at path, layered over
// Default and the environment.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if c.Market.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive")
	}
	if c.Market.StartingCash <= 0 {
		return fmt.Errorf("starting cash must be positive")
	}
	if len(c.Market.Stocks) == 0 {
		return fmt.Errorf("at least one stock is required")
	}
	seen := make(map[string]struct{}, len(c.Market.Stocks))
	for _, stock := range c.Market.Stocks {
		if err := stock.Validate(); err != nil {
			return err
		}
		if _, dup := seen[stock.Symbol]; dup {
			return fmt.Errorf("duplicate stock symbol %s", stock.Symbol)
		}
		seen[stock.Symbol] = struct{}{}
	}
	return nil
}

// TickInterval returns the scheduler period as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Market.TickIntervalMS) * time.Millisecond
}

// overrideWithEnv applies environment overrides for deploy-specific values.
func overrideWithEnv(cfg *Config) {
	if addr := os.Getenv("TRADER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if path := os.Getenv("TRADER_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("TRADER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
