package engine

import (
	"encoding/json"
	"fmt"
	"sort"

	"trader-sim/internal/domain"
)

// SnapshotVersion tags the serialized coordinator schema. Hydration rejects
// unknown versions instead of guessing at field meanings.
const SnapshotVersion = 1

// EngineSnapshot round-trips one stock engine's mutable state.
type EngineSnapshot struct {
	Price       float64 `json:"price"`
	VolumeBatch int64   `json:"volume_batch"`
}

// PlayerSnapshot round-trips one full player ledger.
type PlayerSnapshot struct {
	ID        string                 `json:"id"`
	Username  string                 `json:"username"`
	Cash      float64                `json:"cash"`
	Portfolio []domain.PortfolioItem `json:"portfolio"`
}

// CoordinatorSnapshot is the versioned persistence schema for the whole
// simulation: clock, history, every engine, every ledger.
type CoordinatorSnapshot struct {
	Version int                         `json:"version"`
	Clock   int64                       `json:"clock"`
	History []domain.MarketHistoryEntry `json:"history"`
	Engines map[string]EngineSnapshot   `json:"engines"`
	Players map[string]PlayerSnapshot   `json:"players"`
}

// Snapshot deep-copies the coordinator into its persistence schema.
func (c *MarketCoordinator) Snapshot() CoordinatorSnapshot {
	snap := CoordinatorSnapshot{
		Version: SnapshotVersion,
		Clock:   c.clock,
		History: c.GetHistory(),
		Engines: make(map[string]EngineSnapshot, len(c.engines)),
		Players: make(map[string]PlayerSnapshot, len(c.players)),
	}
	for symbol, engine := range c.engines {
		snap.Engines[symbol] = engine.Snapshot()
	}
	for id, player := range c.players {
		snap.Players[id] = player.Snapshot()
	}
	return snap
}

// Restore hydrates the coordinator from a snapshot, fully replacing the
// in-memory ledgers (not merging). Engine state is applied only for symbols
// that still exist in the configuration; missing fields keep their defaults.
// Only safe while no tick is in flight.
func (c *MarketCoordinator) Restore(snap CoordinatorSnapshot) {
	c.clock = snap.Clock
	c.history = nil
	if len(snap.History) > 0 {
		c.history = make([]domain.MarketHistoryEntry, len(snap.History))
		copy(c.history, snap.History)
		if len(c.history) > domain.MaxHistoryEntries {
			c.history = c.history[len(c.history)-domain.MaxHistoryEntries:]
		}
	}

	for symbol, engineSnap := range snap.Engines {
		if engine, ok := c.engines[symbol]; ok {
			engine.Restore(engineSnap)
		}
	}

	c.players = make(map[string]*PlayerLedger, len(snap.Players))
	c.playerOrder = nil
	ids := make([]string, 0, len(snap.Players))
	for id := range snap.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids) // JSON maps carry no order; fix one
	for _, id := range ids {
		ledger := NewPlayerLedger(id, "", 0)
		ledger.Restore(snap.Players[id])
		c.players[id] = ledger
		c.playerOrder = append(c.playerOrder, id)
	}
}

// MarshalSnapshot serializes the coordinator to an opaque blob for the store.
func (c *MarketCoordinator) MarshalSnapshot() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// UnmarshalSnapshot hydrates from a stored blob. A nil/empty blob is a cold
// start and leaves defaults in place; malformed data or an unknown version
// returns an error with state untouched, so callers can log and continue
// with a fresh simulation.
func (c *MarketCoordinator) UnmarshalSnapshot(blob []byte) error {
	if len(blob) == 0 {
		return nil
	}
	var snap CoordinatorSnapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	c.Restore(snap)
	return nil
}
