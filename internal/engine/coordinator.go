package engine

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"trader-sim/internal/domain"
)

const maxUsernameLen = 15

// TickReport is the outcome of one simulation step, shared by every
// connected client. Per-player slices live in Reports, keyed by player id.
type TickReport struct {
	Clock       int64
	Prices      map[string]float64
	Volumes     map[string]domain.SideVolume
	Reports     map[string][]domain.OrderResult
	Leaderboard []domain.LeaderboardEntry
}

// MarketState is a zero-effect snapshot of the market for one player,
// used to initialize newly joined clients.
type MarketState struct {
	Clock       int64                        `json:"clock"`
	Prices      map[string]float64           `json:"prices"`
	Volumes     map[string]domain.SideVolume `json:"volumes"`
	PlayerState domain.PlayerState           `json:"playerState"`
	Leaderboard []domain.LeaderboardEntry    `json:"leaderboard"`
}

// MarketCoordinator orchestrates the stock engines and player ledgers: it
// queues orders between ticks and settles them as a batch at each tick
// boundary, so every order received in one tick window executes at the same
// per-symbol price, in arrival order.
//
// None of its methods are safe for concurrent use. A single owner (the room
// actor) must serialize every call, including Tick; readers only ever receive
// copies.
type MarketCoordinator struct {
	engines map[string]*StockEngine
	symbols []string // sorted; fixes engine iteration order

	players     map[string]*PlayerLedger
	playerOrder []string // join order; keeps leaderboard ties stable

	queue   []domain.OrderRequest
	clock   int64
	history []domain.MarketHistoryEntry
}

// NewMarketCoordinator builds one engine per configured stock. Engines live
// for the process lifetime; players come and go with their connections.
func NewMarketCoordinator(stocks []domain.StockConfig, rng *rand.Rand) *MarketCoordinator {
	c := &MarketCoordinator{
		engines: make(map[string]*StockEngine, len(stocks)),
		players: make(map[string]*PlayerLedger),
	}
	for _, cfg := range stocks {
		c.engines[cfg.Symbol] = NewStockEngine(cfg, rng)
		c.symbols = append(c.symbols, cfg.Symbol)
	}
	sort.Strings(c.symbols)
	return c
}

// AddPlayer creates a fresh ledger for the id, replacing any existing one.
func (c *MarketCoordinator) AddPlayer(id, username string, startingCash float64) {
	if _, exists := c.players[id]; !exists {
		c.playerOrder = append(c.playerOrder, id)
	}
	c.players[id] = NewPlayerLedger(id, username, startingCash)
}

// RemovePlayer deletes the ledger immediately. Orders already queued for the
// id are left in place and fail defensively at settlement.
func (c *MarketCoordinator) RemovePlayer(id string) {
	if _, ok := c.players[id]; !ok {
		return
	}
	delete(c.players, id)
	for i, pid := range c.playerOrder {
		if pid == id {
			c.playerOrder = append(c.playerOrder[:i], c.playerOrder[i+1:]...)
			break
		}
	}
}

// PrunePlayers removes every ledger whose id is not in the active set. Used
// after a cold start to discard ledgers for connections that no longer exist.
func (c *MarketCoordinator) PrunePlayers(activeIDs map[string]struct{}) {
	kept := c.playerOrder[:0]
	for _, id := range c.playerOrder {
		if _, active := activeIDs[id]; active {
			kept = append(kept, id)
		} else {
			delete(c.players, id)
		}
	}
	c.playerOrder = kept
}

// PlaceOrder validates a request and, if valid, queues it for the next tick.
// The engine learns the signed volume immediately so the batch feeds the next
// price computation; the fill itself is decided at settlement. The checks run
// in a fixed order so rejection messages are deterministic.
func (c *MarketCoordinator) PlaceOrder(req domain.OrderRequest) domain.OrderAck {
	if _, ok := c.players[req.PlayerID]; !ok {
		return domain.OrderAck{Valid: false, Reason: "Invalid player."}
	}
	engine, ok := c.engines[req.Symbol]
	if !ok {
		return domain.OrderAck{Valid: false, Reason: "Invalid stock symbol."}
	}
	if req.Quantity <= 0 {
		return domain.OrderAck{Valid: false, Reason: "Quantity must be a positive number."}
	}

	engine.AddVolume(req.Side, req.Quantity)
	c.queue = append(c.queue, req)
	return domain.OrderAck{Valid: true}
}

// UpdateUsername trims and truncates the candidate name, then enforces
// uniqueness against every other current player by appending an incrementing
// numeric suffix. Absent players and empty results are ignored.
func (c *MarketCoordinator) UpdateUsername(playerID, rawName string) {
	name := strings.TrimSpace(rawName)
	if runes := []rune(name); len(runes) > maxUsernameLen {
		name = string(runes[:maxUsernameLen])
	}

	player, ok := c.players[playerID]
	if !ok || name == "" {
		return
	}

	taken := make(map[string]struct{}, len(c.players))
	for id, p := range c.players {
		if id != playerID {
			taken[p.Username()] = struct{}{}
		}
	}

	candidate := name
	for counter := 1; ; counter++ {
		if _, used := taken[candidate]; !used {
			break
		}
		candidate = fmt.Sprintf("%s%d", name, counter)
	}
	player.SetUsername(candidate)
}

// Tick advances the simulation one step: price discovery first, then FIFO
// settlement of the queued orders at the midpoint of each symbol's pre- and
// post-tick price. The queue is cleared unconditionally; nothing is retried.
func (c *MarketCoordinator) Tick() TickReport {
	c.clock++

	oldPrices := make(map[string]float64, len(c.symbols))
	prices := make(map[string]float64, len(c.symbols))
	volumes := make(map[string]domain.SideVolume, len(c.symbols))
	for _, symbol := range c.symbols {
		engine := c.engines[symbol]
		oldPrices[symbol] = engine.Price()
		prices[symbol] = engine.ProcessTick()
		volumes[symbol] = domain.SideVolume{}
	}

	results := make([]domain.OrderResult, 0, len(c.queue))
	for _, order := range c.queue {
		executionPrice := (oldPrices[order.Symbol] + prices[order.Symbol]) / 2
		results = append(results, c.settle(order, executionPrice, volumes))
	}
	c.queue = c.queue[:0]

	c.history = append(c.history, domain.MarketHistoryEntry{
		Clock:   c.clock,
		Prices:  prices,
		Volumes: volumes,
	})
	if len(c.history) > domain.MaxHistoryEntries {
		c.history = c.history[1:]
	}

	return TickReport{
		Clock:       c.clock,
		Prices:      prices,
		Volumes:     volumes,
		Reports:     domain.GroupReports(results),
		Leaderboard: c.leaderboard(prices),
	}
}

// settle applies one queued order against its owner's ledger. An order whose
// player was removed after queueing is reported as failed rather than
// crashing the tick. Executed volume is recorded only for actual fills. The
// reported price is rounded to cents; the ledger settles at the raw midpoint.
func (c *MarketCoordinator) settle(order domain.OrderRequest, executionPrice float64, volumes map[string]domain.SideVolume) domain.OrderResult {
	result := domain.OrderResult{
		OrderRequest: order,
		Price:        domain.RoundTo(executionPrice, 2),
		Status:       domain.StatusFailed,
	}

	player, ok := c.players[order.PlayerID]
	if !ok {
		result.Reason = "Invalid player."
		return result
	}

	var filled bool
	if order.Side == domain.SideBuy {
		filled = player.Buy(order.Symbol, order.Quantity, executionPrice)
		if !filled {
			total := float64(order.Quantity) * executionPrice
			result.Reason = fmt.Sprintf("Insufficient funds for order of %s", domain.FormatUSD(total))
		}
	} else {
		filled = player.Sell(order.Symbol, order.Quantity, executionPrice)
		if !filled {
			result.Reason = "Insufficient shares."
		}
	}

	if filled {
		result.Status = domain.StatusFilled
		result.Reason = ""
		v := volumes[order.Symbol]
		if order.Side == domain.SideBuy {
			v.Buy += order.Quantity
		} else {
			v.Sell += order.Quantity
		}
		volumes[order.Symbol] = v
	}
	return result
}

// leaderboard ranks every player by net worth, descending. The sort is
// stable, so equal net worths keep join order.
func (c *MarketCoordinator) leaderboard(prices map[string]float64) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(c.playerOrder))
	for _, id := range c.playerOrder {
		player := c.players[id]
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: id,
			Username: player.Username(),
			NetWorth: player.NetWorth(prices),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].NetWorth > entries[j].NetWorth })
	return entries
}

// GetPlayerState returns a copy of one player's ledger projection. Unknown
// ids get a zero-valued state so joining clients always render something.
func (c *MarketCoordinator) GetPlayerState(id string) domain.PlayerState {
	player, ok := c.players[id]
	if !ok {
		return domain.PlayerState{ID: id, Portfolio: []domain.PortfolioItem{}}
	}
	return player.State()
}

// GetCurrentState returns a zero-effect market snapshot for one player:
// current prices, empty volumes, and the leaderboard as of now. It never
// mutates ticking state.
func (c *MarketCoordinator) GetCurrentState(id string) MarketState {
	prices := make(map[string]float64, len(c.symbols))
	volumes := make(map[string]domain.SideVolume, len(c.symbols))
	for _, symbol := range c.symbols {
		prices[symbol] = c.engines[symbol].Price()
		volumes[symbol] = domain.SideVolume{}
	}
	return MarketState{
		Clock:       c.clock,
		Prices:      prices,
		Volumes:     volumes,
		PlayerState: c.GetPlayerState(id),
		Leaderboard: c.leaderboard(prices),
	}
}

// GetHistory returns a copy of the bounded market history, oldest first.
func (c *MarketCoordinator) GetHistory() []domain.MarketHistoryEntry {
	out := make([]domain.MarketHistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}
