package domain

import "fmt"

// StockConfig describes one tradable instrument. Immutable after load.
type StockConfig struct {
	Symbol       string  `yaml:"symbol" json:"symbol"`
	Volatility   float64 `yaml:"volatility" json:"volatility"`
	Liquidity    float64 `yaml:"liquidity" json:"liquidity"`
	Drift        float64 `yaml:"drift" json:"drift"`
	InitialPrice float64 `yaml:"initial_price" json:"initialPrice"`
}

// Validate checks the configuration invariants.
func (c StockConfig) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("stock symbol is required")
	}
	if c.Volatility <= 0 {
		return fmt.Errorf("stock %s: volatility must be positive, got %g", c.Symbol, c.Volatility)
	}
	if c.Liquidity <= 0 {
		return fmt.Errorf("stock %s: liquidity must be positive, got %g", c.Symbol, c.Liquidity)
	}
	if c.InitialPrice <= 0 {
		return fmt.Errorf("stock %s: initial price must be positive, got %g", c.Symbol, c.InitialPrice)
	}
	return nil
}

// SideVolume is the executed per-side volume of one symbol during one tick.
type SideVolume struct {
	Buy  int64 `json:"BUY"`
	Sell int64 `json:"SELL"`
}

// MarketHistoryEntry is one retained tick of market data. The history buffer
// is the system's only persisted time series, capped at MaxHistoryEntries.
type MarketHistoryEntry struct {
	Clock   int64                 `json:"clock"`
	Prices  map[string]float64    `json:"prices"`
	Volumes map[string]SideVolume `json:"volumes"`
}

// MaxHistoryEntries bounds the rolling market history (oldest evicted first).
const MaxHistoryEntries = 365
