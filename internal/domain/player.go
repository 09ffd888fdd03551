package domain

// PortfolioItem is one held position. The entry is removed from the portfolio
// when shares reach zero; AverageBuyPrice is only meaningful while shares > 0.
type PortfolioItem struct {
	Symbol          string  `json:"symbol"`
	Shares          int64   `json:"shares"`
	AverageBuyPrice float64 `json:"averageBuyPrice"`
}

// PlayerState is the wire projection of one player's ledger.
type PlayerState struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Cash      float64         `json:"cash"`
	Portfolio []PortfolioItem `json:"portfolio"`
}

// LeaderboardEntry ranks one player by mark-to-market net worth.
type LeaderboardEntry struct {
	PlayerID string  `json:"playerId"`
	Username string  `json:"username"`
	NetWorth float64 `json:"netWorth"`
}
