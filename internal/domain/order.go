package domain

// OrderSide is the direction of a market order.
type OrderSide string

// OrderStatus is the settlement outcome of an order.
type OrderStatus string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"

	StatusFilled OrderStatus = "FILLED"
	StatusFailed OrderStatus = "FAILED"
)

// Valid reports whether the side is one of the two known values.
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderRequest is a market order as submitted by a player. Requests are
// ephemeral: they live in the per-tick queue and are dropped after settlement.
type OrderRequest struct {
	PlayerID string    `json:"playerId"`
	Symbol   string    `json:"symbol"`
	Side     OrderSide `json:"side"`
	Quantity int64     `json:"quantity"`
}

// OrderResult is the settlement outcome for one queued order. Emitted once in
// the tick broadcast, never persisted.
type OrderResult struct {
	OrderRequest
	Price  float64     `json:"price"`
	Status OrderStatus `json:"status"`
	Reason string      `json:"reason,omitempty"`
}

// OrderAck is the synchronous validity reply to a placed order. Fill or
// failure is only known at the next tick.
type OrderAck struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// GroupReports partitions results by player id. Within each group the
// settlement order is preserved.
func GroupReports(results []OrderResult) map[string][]OrderResult {
	grouped := make(map[string][]OrderResult)
	for _, r := range results {
		grouped[r.PlayerID] = append(grouped[r.PlayerID], r)
	}
	return grouped
}
