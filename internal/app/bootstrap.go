package app

import (
	"log/slog"

	"trader-sim/internal/engine"
	"trader-sim/internal/gateway"
	"trader-sim/internal/infra"
	"trader-sim/internal/infra/storage"
)

// Bootstrap orchestrates the startup sequence: config, logger, storage,
// coordinator hydration, room.
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.Store
	Room   *gateway.Room
}

// NewBootstrap creates an empty Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize wires the whole system. After it returns, the room is hydrated
// and ready to Run; no order traffic has been accepted yet, so swapping in
// the persisted state here is safe.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("snapshot store ready", slog.String("path", cfg.Storage.Path))

	coord := engine.NewMarketCoordinator(cfg.Market.Stocks, nil)
	blob, err := store.LoadSnapshot(cfg.Market.Room)
	if err != nil {
		slog.Warn("snapshot load failed, starting fresh", slog.Any("error", err))
	} else if err := coord.UnmarshalSnapshot(blob); err != nil {
		// Malformed state is discarded rather than fatal; the simulation
		// restarts from the configured initial prices.
		slog.Warn("snapshot rejected, starting fresh", slog.Any("error", err))
	} else if len(blob) > 0 {
		slog.Info("market state hydrated", slog.Int("bytes", len(blob)))
	}

	metrics := infra.NewMetrics()
	b.Room = gateway.NewRoom(
		cfg.Market.Room,
		coord,
		store,
		cfg.TickInterval(),
		cfg.Market.StartingCash,
		metrics,
		logger,
	)
	return nil
}
