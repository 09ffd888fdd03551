package engine

import (
	"sort"

	"trader-sim/internal/domain"
)

// PlayerLedger tracks one player's cash and share positions. Every mutation
// is all-or-nothing: a trade that would leave cash or shares negative is
// rejected without touching state. Not safe for concurrent use.
type PlayerLedger struct {
	id        string
	username  string
	cash      float64
	portfolio map[string]*domain.PortfolioItem
}

// NewPlayerLedger creates a ledger with the given starting cash and no positions.
func NewPlayerLedger(id, username string, startingCash float64) *PlayerLedger {
	return &PlayerLedger{
		id:        id,
		username:  username,
		cash:      startingCash,
		portfolio: make(map[string]*domain.PortfolioItem),
	}
}

func (l *PlayerLedger) ID() string       { return l.id }
func (l *PlayerLedger) Username() string { return l.username }
func (l *PlayerLedger) Cash() float64    { return l.cash }

// SetUsername replaces the display name. Uniqueness is the coordinator's job.
func (l *PlayerLedger) SetUsername(name string) { l.username = name }

// Buy debits cash and folds the purchase into the position at a
// weighted-average cost basis. Returns false without mutation when cash
// cannot cover the full cost.
func (l *PlayerLedger) Buy(symbol string, quantity int64, price float64) bool {
	cost := float64(quantity) * price
	if l.cash < cost {
		return false
	}

	l.cash -= cost
	item, ok := l.portfolio[symbol]
	if !ok {
		item = &domain.PortfolioItem{Symbol: symbol}
		l.portfolio[symbol] = item
	}

	newShares := item.Shares + quantity
	item.AverageBuyPrice = (float64(item.Shares)*item.AverageBuyPrice + cost) / float64(newShares)
	item.Shares = newShares
	return true
}

// Sell credits cash and decrements the position. Returns false without
// mutation when the position is missing or too small. A position sold down
// to exactly zero shares is deleted; cost basis means nothing at zero holding.
func (l *PlayerLedger) Sell(symbol string, quantity int64, price float64) bool {
	item, ok := l.portfolio[symbol]
	if !ok || item.Shares < quantity {
		return false
	}

	l.cash += float64(quantity) * price
	item.Shares -= quantity
	if item.Shares == 0 {
		delete(l.portfolio, symbol)
	}
	return true
}

// Position returns a copy of the held position for a symbol, if any.
func (l *PlayerLedger) Position(symbol string) (domain.PortfolioItem, bool) {
	item, ok := l.portfolio[symbol]
	if !ok {
		return domain.PortfolioItem{}, false
	}
	return *item, true
}

// NetWorth is cash plus the mark-to-market value of every position. Symbols
// missing from the price map contribute nothing.
func (l *PlayerLedger) NetWorth(prices map[string]float64) float64 {
	worth := l.cash
	for symbol, item := range l.portfolio {
		worth += float64(item.Shares) * prices[symbol]
	}
	return worth
}

// State returns a copy-out projection of the ledger with the portfolio
// sorted by symbol for stable output.
func (l *PlayerLedger) State() domain.PlayerState {
	items := make([]domain.PortfolioItem, 0, len(l.portfolio))
	for _, item := range l.portfolio {
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Symbol < items[j].Symbol })

	return domain.PlayerState{
		ID:        l.id,
		Username:  l.username,
		Cash:      l.cash,
		Portfolio: items,
	}
}

// Snapshot captures the full ledger for persistence.
func (l *PlayerLedger) Snapshot() PlayerSnapshot {
	state := l.State()
	return PlayerSnapshot{
		ID:        state.ID,
		Username:  state.Username,
		Cash:      state.Cash,
		Portfolio: state.Portfolio,
	}
}

// Restore overwrites the ledger from a snapshot. Entries with non-positive
// share counts are discarded rather than trusted.
func (l *PlayerLedger) Restore(snap PlayerSnapshot) {
	l.id = snap.ID
	l.username = snap.Username
	l.cash = snap.Cash
	l.portfolio = make(map[string]*domain.PortfolioItem, len(snap.Portfolio))
	for _, item := range snap.Portfolio {
		if item.Shares <= 0 {
			continue
		}
		copied := item
		l.portfolio[item.Symbol] = &copied
	}
}
