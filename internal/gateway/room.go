package gateway

import (
	"context"
	"log/slog"
	"time"

	"trader-sim/internal/domain"
	"trader-sim/internal/engine"
	"trader-sim/internal/infra"
)

// defaultUsername seeds new players; the coordinator's uniqueness suffix
// turns it into Trader, Trader1, Trader2, ...
const defaultUsername = "Trader"

// SnapshotStore persists the opaque coordinator blob between runs.
type SnapshotStore interface {
	SaveSnapshot(room string, blob []byte) error
}

// session is the room's view of a connection: a stable id and a non-blocking
// outbound path. *Client satisfies it; tests use fakes.
type session interface {
	ID() string
	Send(payload []byte)
	SendJSON(v any)
}

type command interface{}

type joinCmd struct{ s session }
type leaveCmd struct{ s session }
type orderCmd struct {
	s   session
	msg ClientMessage
}
type usernameCmd struct {
	s    session
	name string
}

// Room is the single-owner actor for one market instance. Its Run goroutine
// is the only writer of the coordinator: connection goroutines post commands
// to the inbox and the tick scheduler fires in the same select loop, so every
// state mutation is serialized without locks.
//
// The scheduler runs only while players are connected: it starts on the first
// join after a cold start or idle period, and stops (persisting state) when
// the last connection closes.
type Room struct {
	name  string
	coord *engine.MarketCoordinator
	store SnapshotStore

	tickInterval time.Duration
	startingCash float64

	inbox    chan command
	sessions map[string]session

	ticker *time.Ticker
	tickC  <-chan time.Time // nil while the scheduler is stopped

	pruned bool // stale hydrated ledgers pruned once, on first join

	metrics *infra.Metrics
	log     *slog.Logger
	done    chan struct{}
}

// NewRoom creates a room around an already-hydrated coordinator. Run must be
// started before any client joins.
func NewRoom(name string, coord *engine.MarketCoordinator, store SnapshotStore, tickInterval time.Duration, startingCash float64, metrics *infra.Metrics, log *slog.Logger) *Room {
	return &Room{
		name:         name,
		coord:        coord,
		store:        store,
		tickInterval: tickInterval,
		startingCash: startingCash,
		inbox:        make(chan command, 256),
		sessions:     make(map[string]session),
		metrics:      metrics,
		log:          log.With(slog.String("room", name)),
		done:         make(chan struct{}),
	}
}

// Join attaches a connection to the room.
func (r *Room) Join(s session) { r.post(joinCmd{s: s}) }

// Leave detaches a connection; its player is removed immediately and any of
// its queued orders fail defensively at the next settlement.
func (r *Room) Leave(s session) { r.post(leaveCmd{s: s}) }

// HandleMessage routes one decoded client message into the actor.
func (r *Room) HandleMessage(s session, msg ClientMessage) {
	switch msg.Type {
	case MsgPlaceOrder:
		r.post(orderCmd{s: s, msg: msg})
	case MsgUpdateUsername:
		r.post(usernameCmd{s: s, name: msg.Username})
	default:
		r.log.Warn("unknown message type", slog.String("type", msg.Type))
	}
}

// post delivers a command unless the actor has already stopped, so connection
// goroutines draining after shutdown never block on a dead inbox.
func (r *Room) post(cmd command) {
	select {
	case r.inbox <- cmd:
	case <-r.done:
	}
}

// Done is closed once Run has persisted state and exited.
func (r *Room) Done() <-chan struct{} { return r.done }

// Run is the room's event loop. It MUST be the only goroutine touching the
// coordinator. Returns after persisting state when ctx is canceled.
func (r *Room) Run(ctx context.Context) {
	r.log.Info("room started", slog.Duration("tick_interval", r.tickInterval))
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			r.stopScheduler()
			r.persist()
			r.log.Info("room stopped")
			return
		case cmd := <-r.inbox:
			r.handleCommand(cmd)
		case <-r.tickC:
			r.handleTick()
		}
	}
}

func (r *Room) handleCommand(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		r.handleJoin(c.s)
	case leaveCmd:
		r.handleLeave(c.s)
	case orderCmd:
		r.handleOrder(c.s, c.msg)
	case usernameCmd:
		r.coord.UpdateUsername(c.s.ID(), c.name)
	default:
		r.log.Warn("unknown command", slog.Any("command", cmd))
	}
}

func (r *Room) handleJoin(s session) {
	// A hydrated snapshot can carry ledgers for connections that died with
	// the previous process. Discard them once, before the first real player
	// is registered.
	if !r.pruned {
		active := make(map[string]struct{}, len(r.sessions))
		for id := range r.sessions {
			active[id] = struct{}{}
		}
		r.coord.PrunePlayers(active)
		r.pruned = true
	}

	r.sessions[s.ID()] = s
	r.coord.AddPlayer(s.ID(), defaultUsername, r.startingCash)
	r.coord.UpdateUsername(s.ID(), defaultUsername)

	s.SendJSON(MarketInit{
		Type:        MsgMarketInit,
		History:     r.coord.GetHistory(),
		MarketState: r.coord.GetCurrentState(s.ID()),
	})

	if len(r.sessions) == 1 {
		r.startScheduler()
	}
	r.metrics.IncrementConnections()
	r.log.Info("player joined", slog.String("player", s.ID()), slog.Int("connections", len(r.sessions)))
}

func (r *Room) handleLeave(s session) {
	if _, ok := r.sessions[s.ID()]; !ok {
		return
	}
	delete(r.sessions, s.ID())
	r.coord.RemovePlayer(s.ID())
	r.metrics.DecrementConnections()
	r.log.Info("player left", slog.String("player", s.ID()), slog.Int("connections", len(r.sessions)))

	if len(r.sessions) == 0 {
		r.stopScheduler()
		r.persist()
	}
}

func (r *Room) handleOrder(s session, msg ClientMessage) {
	if !msg.Side.Valid() {
		s.SendJSON(OrderPlaced{Type: MsgOrderPlaced, Valid: false, Reason: "Invalid order side."})
		return
	}

	ack := r.coord.PlaceOrder(domain.OrderRequest{
		PlayerID: s.ID(),
		Symbol:   msg.Symbol,
		Side:     msg.Side,
		Quantity: msg.Quantity,
	})
	r.metrics.RecordOrderPlaced(ack.Valid)
	s.SendJSON(OrderPlaced{Type: MsgOrderPlaced, Valid: ack.Valid, Reason: ack.Reason})
}

// handleTick advances the simulation once and fans the result out: shared
// fields for everyone, plus each connection's own player state and report
// slice. Orders queued while this runs land in the next batch.
func (r *Room) handleTick() {
	start := time.Now()
	report := r.coord.Tick()

	for id, s := range r.sessions {
		reports := report.Reports[id]
		if reports == nil {
			// Clients iterate reports unconditionally; never send null.
			reports = []domain.OrderResult{}
		}
		s.SendJSON(MarketUpdate{
			Type:        MsgMarketUpdate,
			Clock:       report.Clock,
			Prices:      report.Prices,
			Volumes:     report.Volumes,
			Reports:     reports,
			PlayerState: r.coord.GetPlayerState(id),
			Leaderboard: report.Leaderboard,
		})
	}
	r.metrics.RecordTick(time.Since(start).Nanoseconds(), len(r.sessions))
}

func (r *Room) startScheduler() {
	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.tickInterval)
	r.tickC = r.ticker.C
	r.log.Info("tick scheduler started")
}

func (r *Room) stopScheduler() {
	if r.ticker == nil {
		return
	}
	r.ticker.Stop()
	r.ticker = nil
	r.tickC = nil
	r.log.Info("tick scheduler stopped")
}

func (r *Room) persist() {
	blob, err := r.coord.MarshalSnapshot()
	if err != nil {
		r.log.Error("snapshot marshal failed", slog.Any("error", err))
		return
	}
	if err := r.store.SaveSnapshot(r.name, blob); err != nil {
		r.log.Error("snapshot save failed", slog.Any("error", err))
		return
	}
	r.log.Info("state persisted", slog.Int("bytes", len(blob)))
}
