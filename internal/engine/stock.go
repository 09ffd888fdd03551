package engine

import (
	"math"
	"math/rand"
	"time"

	"trader-sim/internal/domain"
)

const (
	// priceFloor is the hard lower bound on any price; the multiplicative
	// process can otherwise drive a price to zero and strand it there.
	priceFloor = 0.01

	// impactDamping scales the square-root market impact so player batches
	// move prices visibly without producing runaway multiplicative swings.
	impactDamping = 0.1
)

// StockEngine is the per-symbol price process. It owns the current price and
// the net order volume queued since the last tick. Not safe for concurrent
// use; the coordinator is its single owner.
type StockEngine struct {
	cfg         domain.StockConfig
	price       float64
	volumeBatch int64
	rng         *rand.Rand
}

// NewStockEngine creates an engine at the configured initial price. A nil rng
// gets a time-seeded source; tests inject a seeded one for determinism.
func NewStockEngine(cfg domain.StockConfig, rng *rand.Rand) *StockEngine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &StockEngine{
		cfg:   cfg,
		price: cfg.InitialPrice,
		rng:   rng,
	}
}

// Symbol returns the instrument key.
func (e *StockEngine) Symbol() string { return e.cfg.Symbol }

// Price returns the current price without side effects.
func (e *StockEngine) Price() float64 { return e.price }

// AddVolume accumulates signed quantity into the pending batch. It has no
// immediate price effect; the batch is consumed by the next ProcessTick.
func (e *StockEngine) AddVolume(side domain.OrderSide, quantity int64) {
	if side == domain.SideBuy {
		e.volumeBatch += quantity
	} else {
		e.volumeBatch -= quantity
	}
}

// ProcessTick advances the price one step and returns the new price. The move
// combines a stochastic return (drift + volatility * N(0,1)) with damped
// square-root impact from the pending volume batch, then resets the batch.
// This is the only mutator of price.
func (e *StockEngine) ProcessTick() float64 {
	randomMove := e.cfg.Drift + e.cfg.Volatility*e.randomNormal()

	direction := float64(0)
	if e.volumeBatch > 0 {
		direction = 1
	} else if e.volumeBatch < 0 {
		direction = -1
	}
	impact := direction * math.Sqrt(math.Abs(float64(e.volumeBatch))/e.cfg.Liquidity) * impactDamping

	e.price = math.Max(priceFloor, e.price*(1+randomMove+impact))
	e.volumeBatch = 0
	return e.price
}

// randomNormal draws a standard-normal sample via Box-Muller. The uniforms
// are resampled away from exactly zero to keep the log finite.
func (e *StockEngine) randomNormal() float64 {
	var u, v float64
	for u == 0 {
		u = e.rng.Float64()
	}
	for v == 0 {
		v = e.rng.Float64()
	}
	return math.Sqrt(-2*math.Log(u)) * math.Cos(2*math.Pi*v)
}

// Snapshot captures the engine's mutable state for persistence.
func (e *StockEngine) Snapshot() EngineSnapshot {
	return EngineSnapshot{Price: e.price, VolumeBatch: e.volumeBatch}
}

// Restore overwrites the engine state from a snapshot. Only valid while no
// tick is in flight.
func (e *StockEngine) Restore(snap EngineSnapshot) {
	e.price = math.Max(priceFloor, snap.Price)
	e.volumeBatch = snap.VolumeBatch
}
