package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"trader-sim/internal/domain"
	"trader-sim/internal/engine"
	"trader-sim/internal/infra"
)

// testStock barely moves and is deep enough that test orders fill at
// effectively the initial price.
var testStock = domain.StockConfig{
	Symbol:       "STBL",
	Volatility:   1e-12,
	Liquidity:    1e12,
	Drift:        0,
	InitialPrice: 5.00,
}

type fakeSession struct {
	id string
	ch chan []byte
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id, ch: make(chan []byte, 64)}
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(payload []byte) {
	select {
	case f.ch <- payload:
	default:
	}
}

func (f *fakeSession) SendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.Send(payload)
}

type fakeStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
	saves int
}

func (f *fakeStore) SaveSnapshot(room string, blob []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	f.blobs[room] = blob
	f.saves++
	return nil
}

func (f *fakeStore) snapshot(room string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobs[room]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startTestRoom(t *testing.T, store SnapshotStore) *Room {
	t.Helper()
	coord := engine.NewMarketCoordinator([]domain.StockConfig{testStock}, rand.New(rand.NewSource(1)))
	room := NewRoom("test", coord, store, 15*time.Millisecond, 1000, infra.NewMetrics(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-room.Done()
	})
	go room.Run(ctx)
	return room
}

// nextOfType reads frames from a fake session until one with the wanted type
// arrives, skipping everything else.
func nextOfType(t *testing.T, s *fakeSession, msgType string) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-s.ch:
			var envelope struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(payload, &envelope); err != nil {
				t.Fatalf("unparseable frame: %v", err)
			}
			if envelope.Type == msgType {
				return payload
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", msgType)
		}
	}
}

func TestRoom_JoinSendsInit(t *testing.T) {
	room := startTestRoom(t, &fakeStore{})

	s1 := newFakeSession("p1")
	room.Join(s1)

	var init MarketInit
	if err := json.Unmarshal(nextOfType(t, s1, MsgMarketInit), &init); err != nil {
		t.Fatalf("bad market_init: %v", err)
	}
	if init.MarketState.PlayerState.ID != "p1" {
		t.Errorf("init not personalized: %+v", init.MarketState.PlayerState)
	}
	if init.MarketState.PlayerState.Cash != 1000 {
		t.Errorf("expected starting cash 1000, got %v", init.MarketState.PlayerState.Cash)
	}
	if init.MarketState.PlayerState.Username != "Trader" {
		t.Errorf("expected default username Trader, got %q", init.MarketState.PlayerState.Username)
	}
	if _, ok := init.MarketState.Prices["STBL"]; !ok {
		t.Errorf("init missing prices: %+v", init.MarketState.Prices)
	}

	t.Run("Second Join Gets Deduplicated Name", func(t *testing.T) {
		s2 := newFakeSession("p2")
		room.Join(s2)

		var init2 MarketInit
		json.Unmarshal(nextOfType(t, s2, MsgMarketInit), &init2)
		if init2.MarketState.PlayerState.Username != "Trader1" {
			t.Errorf("expected Trader1, got %q", init2.MarketState.PlayerState.Username)
		}
	})
}

func TestRoom_TickBroadcast(t *testing.T) {
	room := startTestRoom(t, &fakeStore{})
	s1 := newFakeSession("p1")
	room.Join(s1)
	nextOfType(t, s1, MsgMarketInit)

	payload := nextOfType(t, s1, MsgMarketUpdate)

	// Clients iterate the reports array unconditionally, so an order-free
	// tick must serialize it as [] rather than null.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("bad market_update: %v", err)
	}
	if string(raw["reports"]) != "[]" {
		t.Errorf("order-free tick reports = %s, want []", raw["reports"])
	}

	var update MarketUpdate
	json.Unmarshal(payload, &update)
	if update.Clock < 1 {
		t.Errorf("expected running clock, got %d", update.Clock)
	}
	if update.PlayerState.ID != "p1" {
		t.Errorf("broadcast not personalized: %+v", update.PlayerState)
	}
	if len(update.Leaderboard) != 1 || update.Leaderboard[0].PlayerID != "p1" {
		t.Errorf("unexpected leaderboard: %+v", update.Leaderboard)
	}
}

func TestRoom_OrderFlow(t *testing.T) {
	room := startTestRoom(t, &fakeStore{})
	s1 := newFakeSession("p1")
	room.Join(s1)
	nextOfType(t, s1, MsgMarketInit)

	room.HandleMessage(s1, ClientMessage{Type: MsgPlaceOrder, Symbol: "STBL", Side: domain.SideBuy, Quantity: 5})

	var ack OrderPlaced
	json.Unmarshal(nextOfType(t, s1, MsgOrderPlaced), &ack)
	if !ack.Valid {
		t.Fatalf("expected valid order, got %+v", ack)
	}

	// The fill arrives with the next broadcast, not the ack.
	deadline := time.After(2 * time.Second)
	for {
		var update MarketUpdate
		json.Unmarshal(nextOfType(t, s1, MsgMarketUpdate), &update)
		if len(update.Reports) == 0 {
			select {
			case <-deadline:
				t.Fatal("no settlement report arrived")
			default:
				continue
			}
		}
		if update.Reports[0].Status != domain.StatusFilled {
			t.Fatalf("expected FILLED, got %+v", update.Reports[0])
		}
		if update.PlayerState.Cash >= 1000 {
			t.Errorf("cash should have been debited, got %v", update.PlayerState.Cash)
		}
		break
	}

	t.Run("Invalid Side Rejected At Gateway", func(t *testing.T) {
		room.HandleMessage(s1, ClientMessage{Type: MsgPlaceOrder, Symbol: "STBL", Side: "HOLD", Quantity: 5})
		var bad OrderPlaced
		json.Unmarshal(nextOfType(t, s1, MsgOrderPlaced), &bad)
		if bad.Valid || bad.Reason != "Invalid order side." {
			t.Errorf("unexpected ack: %+v", bad)
		}
	})

	t.Run("Unknown Symbol Rejected By Coordinator", func(t *testing.T) {
		room.HandleMessage(s1, ClientMessage{Type: MsgPlaceOrder, Symbol: "NOPE", Side: domain.SideBuy, Quantity: 5})
		var bad OrderPlaced
		json.Unmarshal(nextOfType(t, s1, MsgOrderPlaced), &bad)
		if bad.Valid || bad.Reason != "Invalid stock symbol." {
			t.Errorf("unexpected ack: %+v", bad)
		}
	})
}

func TestRoom_UsernameUpdateReflectedInBroadcast(t *testing.T) {
	room := startTestRoom(t, &fakeStore{})
	s1 := newFakeSession("p1")
	room.Join(s1)
	nextOfType(t, s1, MsgMarketInit)

	room.HandleMessage(s1, ClientMessage{Type: MsgUpdateUsername, Username: "  gordon gekko  "})

	deadline := time.After(2 * time.Second)
	for {
		var update MarketUpdate
		json.Unmarshal(nextOfType(t, s1, MsgMarketUpdate), &update)
		if update.PlayerState.Username == "gordon gekko" {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("rename never reflected, last state %+v", update.PlayerState)
		default:
		}
	}
}

func TestRoom_LastLeavePersists(t *testing.T) {
	store := &fakeStore{}
	room := startTestRoom(t, store)

	s1 := newFakeSession("p1")
	room.Join(s1)
	nextOfType(t, s1, MsgMarketInit)
	room.Leave(s1)

	deadline := time.After(2 * time.Second)
	for store.snapshot("test") == nil {
		select {
		case <-deadline:
			t.Fatal("no snapshot persisted after last leave")
		case <-time.After(5 * time.Millisecond):
		}
	}

	var snap struct {
		Version int                        `json:"version"`
		Players map[string]json.RawMessage `json:"players"`
	}
	if err := json.Unmarshal(store.snapshot("test"), &snap); err != nil {
		t.Fatalf("persisted blob unparseable: %v", err)
	}
	if snap.Version != engine.SnapshotVersion {
		t.Errorf("unexpected snapshot version %d", snap.Version)
	}
	if len(snap.Players) != 0 {
		t.Errorf("departed player should not be persisted: %v", snap.Players)
	}
}

func TestRoom_ShutdownPersists(t *testing.T) {
	store := &fakeStore{}
	coord := engine.NewMarketCoordinator([]domain.StockConfig{testStock}, rand.New(rand.NewSource(1)))
	room := NewRoom("test", coord, store, 15*time.Millisecond, 1000, infra.NewMetrics(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go room.Run(ctx)

	s1 := newFakeSession("p1")
	room.Join(s1)
	nextOfType(t, s1, MsgMarketInit)

	cancel()
	select {
	case <-room.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("room did not stop")
	}
	if store.snapshot("test") == nil {
		t.Error("no snapshot persisted on shutdown")
	}

	t.Run("Commands After Shutdown Do Not Block", func(t *testing.T) {
		// A connection draining after the actor exits still posts its
		// deferred leave; it must return instead of hanging on the inbox.
		returned := make(chan struct{})
		go func() {
			for i := 0; i < cap(room.inbox)+1; i++ {
				room.Leave(s1)
			}
			room.HandleMessage(s1, ClientMessage{Type: MsgPlaceOrder, Symbol: "STBL", Side: domain.SideBuy, Quantity: 1})
			close(returned)
		}()
		select {
		case <-returned:
		case <-time.After(2 * time.Second):
			t.Fatal("post-shutdown command blocked")
		}
	})
}

func TestRoom_PrunesHydratedLedgersOnFirstJoin(t *testing.T) {
	store := &fakeStore{}
	coord := engine.NewMarketCoordinator([]domain.StockConfig{testStock}, rand.New(rand.NewSource(1)))
	// Simulate a hydrated snapshot carrying a ledger from a dead connection.
	coord.AddPlayer("dead-conn", "zombie", 9999)

	room := NewRoom("test", coord, store, 15*time.Millisecond, 1000, infra.NewMetrics(), discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-room.Done()
	})
	go room.Run(ctx)

	s1 := newFakeSession("p1")
	room.Join(s1)

	var init MarketInit
	json.Unmarshal(nextOfType(t, s1, MsgMarketInit), &init)
	if len(init.MarketState.Leaderboard) != 1 || init.MarketState.Leaderboard[0].PlayerID != "p1" {
		t.Errorf("stale ledger survived wake-up prune: %+v", init.MarketState.Leaderboard)
	}
}
