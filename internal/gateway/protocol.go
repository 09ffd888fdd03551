package gateway

import (
	"trader-sim/internal/domain"
	"trader-sim/internal/engine"
)

// Message types on the wire. Clients send place_order and update_username;
// the server sends market_init on connect, order_placed as a direct reply,
// and market_update every tick.
const (
	MsgPlaceOrder     = "place_order"
	MsgUpdateUsername = "update_username"
	MsgMarketInit     = "market_init"
	MsgMarketUpdate   = "market_update"
	MsgOrderPlaced    = "order_placed"
)

// ClientMessage is the envelope for every client-to-server message. Fields
// are populated according to Type.
type ClientMessage struct {
	Type     string           `json:"type"`
	Symbol   string           `json:"symbol,omitempty"`
	Side     domain.OrderSide `json:"side,omitempty"`
	Quantity int64            `json:"quantity,omitempty"`
	Username string           `json:"username,omitempty"`
}

// MarketInit seeds a newly connected client with the bounded history replay
// and a current per-player snapshot.
type MarketInit struct {
	Type        string                      `json:"type"`
	History     []domain.MarketHistoryEntry `json:"history"`
	MarketState engine.MarketState          `json:"marketState"`
}

// MarketUpdate is the per-connection tick broadcast: shared tick fields plus
// this player's own state and settlement reports.
type MarketUpdate struct {
	Type        string                       `json:"type"`
	Clock       int64                        `json:"clock"`
	Prices      map[string]float64           `json:"prices"`
	Volumes     map[string]domain.SideVolume `json:"volumes"`
	Reports     []domain.OrderResult         `json:"reports"`
	PlayerState domain.PlayerState           `json:"playerState"`
	Leaderboard []domain.LeaderboardEntry    `json:"leaderboard"`
}

// OrderPlaced is the synchronous validity reply to place_order.
type OrderPlaced struct {
	Type   string `json:"type"`
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}
