package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cricketauction/internal/auction"
)

type fakeStore struct {
	mu   sync.Mutex
	ops  []string
	fail error
}

func (f *fakeStore) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.ops = append(f.ops, op)
	return nil
}

func (f *fakeStore) failWith(err error) {
	f.mu.Lock()
	f.fail = err
	f.mu.Unlock()
}

func (f *fakeStore) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

func (f *fakeStore) SaveConfig(context.Context, *auction.Auction) error { return f.record("config") }
func (f *fakeStore) SaveStatus(context.Context, *auction.Auction) error { return f.record("status") }
func (f *fakeStore) SavePoolOrder(context.Context, *auction.Auction) error {
	return f.record("pool_order")
}
func (f *fakeStore) AppendBid(context.Context, uuid.UUID, int, uuid.UUID, auction.Bid) error {
	return f.record("bid")
}
func (f *fakeStore) SaveSale(context.Context, *auction.Auction, *auction.Player) error {
	return f.record("sale")
}
func (f *fakeStore) SaveUnsold(context.Context, *auction.Auction, *auction.Player) error {
	return f.record("unsold")
}
func (f *fakeStore) SaveTrade(context.Context, uuid.UUID, *auction.Trade) error {
	return f.record("trade")
}
func (f *fakeStore) SaveTradeExecution(context.Context, *auction.Auction, *auction.Trade) error {
	return f.record("trade_execution")
}

type fakePub struct{ events chan Delta }

func newFakePub() *fakePub { return &fakePub{events: make(chan Delta, 64)} }

func (f *fakePub) Publish(_ context.Context, _ *auction.Auction, d Delta) error {
	f.events <- d
	return nil
}

func waitEvent(t *testing.T, ch <-chan Delta, event string, within time.Duration) Delta {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case d := <-ch:
			if d.Event == event {
				return d
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", event)
			return Delta{}
		}
	}
}

func expectNoEvent(t *testing.T, ch <-chan Delta, within time.Duration) {
	t.Helper()
	select {
	case d := <-ch:
		t.Fatalf("expected no event within %v, got %q", within, d.Event)
	case <-time.After(within):
	}
}

// testClock is advanced between commands; the actor reads it serially.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testAggregate(t *testing.T, players int, cfgEdit func(*auction.Config)) (*auction.Auction, []uuid.UUID) {
	t.Helper()
	a := auction.New(uuid.New(), "league")
	teamIDs := []uuid.UUID{uuid.New(), uuid.New()}
	for i, id := range teamIDs {
		a.Teams[id] = &auction.Team{ID: id, Name: []string{"Strikers", "Titans"}[i], PurseValue: 500_000, Token: "tok"}
	}
	for i := 0; i < players; i++ {
		p := &auction.Player{ID: uuid.New(), Name: "Player", Status: auction.PlayerPool}
		a.Players[p.ID] = p
		a.PoolOrder = append(a.PoolOrder, p.ID)
	}
	cfg := auction.Config{
		BasePrice:          10_000,
		PurseValue:         500_000,
		MinSquadSize:       1,
		MaxSquadSize:       5,
		BidIncrementPreset: "classic",
		TradeWindowHours:   24,
		MaxTradesPerTeam:   2,
		UnsoldReentry:      auction.ReentryEndOfPool,
		BidTimer:           15 * time.Second,
		WarnTimer:          5 * time.Second,
	}
	if cfgEdit != nil {
		cfgEdit(&cfg)
	}
	require.NoError(t, a.Configure(cfg))
	return a, teamIDs
}

func startActor(t *testing.T, a *auction.Auction, store Store, pub Publisher, clock func() time.Time) *Actor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	act := newActor(ctx, a, Deps{Store: store, Pub: pub, Clock: clock}, nil)
	t.Cleanup(act.Stop)
	return act
}

func send(t *testing.T, act *Actor, cmd Command) Result {
	t.Helper()
	cmd.Reply = make(chan Result, 1)
	act.Send(cmd)
	select {
	case res := <-cmd.Reply:
		return res
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s result", cmd.Type)
		return Result{}
	}
}

func TestActorSerializesBidsAndVersions(t *testing.T) {
	a, teams := testAggregate(t, 1, nil)
	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	res := send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	require.Nil(t, res.Reject)
	require.Equal(t, "auction/live", res.Delta.Event)

	res = send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[0]})
	require.Nil(t, res.Reject)
	assert.Equal(t, int64(10_000), res.Delta.Body.(map[string]any)["amount"])

	res = send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[1]})
	require.Nil(t, res.Reject)
	assert.Equal(t, int64(11_000), res.Delta.Body.(map[string]any)["amount"])

	// A team cannot outbid itself; state is untouched.
	res = send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[1]})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeBidRejected, res.Reject.Code)

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.Equal(t, int64(11_000), snap.Round.CurrentBid)
	assert.Equal(t, teams[1], *snap.Round.CurrentBidTeam)
	assert.Equal(t, 3, snap.Version) // live + two accepted bids; the rejection did not count

	// Every durable write happened before its broadcast was emitted.
	assert.Equal(t, []string{"status", "bid", "bid"}, store.Ops())
}

func TestActorRejectsWrongRole(t *testing.T) {
	a, teams := testAggregate(t, 1, nil)
	act := startActor(t, a, &fakeStore{}, newFakePub(), nil)

	res := send(t, act, Command{Type: CmdGoLive, Role: RoleTeam, TeamID: teams[0]})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeForbidden, res.Reject.Code)

	res = send(t, act, Command{Type: CmdBid, Role: RoleSpectator})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeForbidden, res.Reject.Code)
}

func TestActorTimerResolvesUnsoldRound(t *testing.T) {
	a, _ := testAggregate(t, 2, func(cfg *auction.Config) {
		cfg.BidTimer = 30 * time.Millisecond
		cfg.WarnTimer = 20 * time.Millisecond
		cfg.UnsoldReentry = auction.ReentryDrop
	})
	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	res := send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	waitEvent(t, pub.events, "round/phase", time.Second)  // going_once
	waitEvent(t, pub.events, "round/phase", time.Second)  // going_twice
	waitEvent(t, pub.events, "round/unsold", time.Second) // nobody bid
	waitEvent(t, pub.events, "round/opened", time.Second) // next player up

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.CurrentRound)
}

func TestActorTimerSellsToHighestBidder(t *testing.T) {
	a, teams := testAggregate(t, 1, func(cfg *auction.Config) {
		cfg.BidTimer = 30 * time.Millisecond
		cfg.WarnTimer = 20 * time.Millisecond
	})
	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	res := send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[0]})
	require.Nil(t, res.Reject)

	waitEvent(t, pub.events, "round/sold", time.Second)
	waitEvent(t, pub.events, "auction/completed", time.Second)

	snap, err := act.SnapshotFor(context.Background(), RoleTeam, teams[0])
	require.NoError(t, err)
	assert.Equal(t, auction.StatusCompleted, snap.Status)
	require.NotNil(t, snap.You)
	assert.Equal(t, int64(500_000-10_000), snap.You.PurseRemaining)
	assert.Equal(t, 1, snap.You.SquadSize)
}

// Pause then resume after a frozen duration d must yield
// timerExpiresAt = resumeTime + d, no matter how long the pause lasted.
func TestActorPauseFreezesRemainingTime(t *testing.T) {
	clock := &testClock{t: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)}
	a, _ := testAggregate(t, 1, nil) // 15s bid timer, never fires in this test
	act := startActor(t, a, &fakeStore{}, newFakePub(), clock.Now)

	send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})

	clock.Advance(6 * time.Second)
	res := send(t, act, Command{Type: CmdPause, Role: RoleAdmin, Reason: "drinks break"})
	require.Nil(t, res.Reject)
	assert.Equal(t, int64(9000), res.Delta.Body.(map[string]any)["remaining_millis"])

	// The auction stays paused for an hour; none of it counts.
	clock.Advance(time.Hour)
	resumeAt := clock.Now()
	res = send(t, act, Command{Type: CmdResume, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.Equal(t, resumeAt.Add(9*time.Second), snap.Round.TimerExpiresAt)
}

func TestActorDropsStaleTimer(t *testing.T) {
	a, teams := testAggregate(t, 1, nil)
	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[0]})
	for len(pub.events) > 0 {
		<-pub.events
	}

	// Generation zero predates every schedule; the guard must drop it.
	act.inbox <- timerMsg{Gen: 0}
	expectNoEvent(t, pub.events, 100*time.Millisecond)

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.Equal(t, auction.RoundOpen, snap.Round.Phase)
	assert.Equal(t, int64(10_000), snap.Round.CurrentBid)
}

func TestActorDegradesWhenPersistenceFails(t *testing.T) {
	a, _ := testAggregate(t, 1, nil)
	store, pub := &fakeStore{fail: errors.New("pg down")}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	res := send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeDegraded, res.Reject.Code)
	expectNoEvent(t, pub.events, 50*time.Millisecond)

	// Mutations stay suspended until an operator steps in.
	res = send(t, act, Command{Type: CmdPause, Role: RoleAdmin})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeDegraded, res.Reject.Code)

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.True(t, snap.Degraded)
}

// A countdown armed by resume must die with the degraded latch: when the
// resume persist fails, the round may not keep advancing (or sell the player)
// off a timer while every command is being rejected as degraded.
func TestActorDegradedCancelsRoundTimer(t *testing.T) {
	a, teams := testAggregate(t, 1, func(cfg *auction.Config) {
		cfg.BidTimer = 50 * time.Millisecond
		cfg.WarnTimer = 20 * time.Millisecond
	})
	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	send(t, act, Command{Type: CmdGoLive, Role: RoleAdmin})
	res := send(t, act, Command{Type: CmdBid, Role: RoleTeam, TeamID: teams[0]})
	require.Nil(t, res.Reject)
	res = send(t, act, Command{Type: CmdPause, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	store.failWith(errors.New("pg down"))
	res = send(t, act, Command{Type: CmdResume, Role: RoleAdmin})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeDegraded, res.Reject.Code)

	for len(pub.events) > 0 {
		<-pub.events
	}
	expectNoEvent(t, pub.events, 300*time.Millisecond)

	snap, err := act.SnapshotFor(context.Background(), RoleSpectator, uuid.UUID{})
	require.NoError(t, err)
	assert.True(t, snap.Degraded)
	assert.Equal(t, auction.RoundOpen, snap.Round.Phase)
	assert.NotContains(t, store.Ops(), "sale")
}

func TestActorTradeFlow(t *testing.T) {
	a, teams := testAggregate(t, 0, func(cfg *auction.Config) {
		cfg.TradeSettlementEnabled = true
	})
	init, cp := teams[0], teams[1]
	p1, p2 := uuid.New(), uuid.New()
	owner1, owner2 := init, cp
	a.Players[p1] = &auction.Player{ID: p1, Status: auction.PlayerSold, SoldTo: &owner1}
	a.Players[p2] = &auction.Player{ID: p2, Status: auction.PlayerSold, SoldTo: &owner2}
	a.Teams[init].Squad = []auction.SquadEntry{{PlayerID: p1, Price: 50_000}}
	a.Teams[init].Spent = 50_000
	a.Teams[cp].Squad = []auction.SquadEntry{{PlayerID: p2, Price: 30_000}}
	a.Teams[cp].Spent = 30_000
	a.Status = auction.StatusCompleted

	store, pub := &fakeStore{}, newFakePub()
	act := startActor(t, a, store, pub, nil)

	res := send(t, act, Command{Type: CmdOpenTradeWindow, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	res = send(t, act, Command{
		Type: CmdProposeTrade, Role: RoleTeam, TeamID: init,
		Counterparty: cp, Offer: []uuid.UUID{p1}, Want: []uuid.UUID{p2}, Message: "swap?",
	})
	require.Nil(t, res.Reject)
	tr := res.Delta.Body.(map[string]any)["trade"].(*auction.Trade)
	assert.Equal(t, int64(20_000), tr.SettlementAmount)
	assert.Equal(t, auction.SettleCounterpartyPays, tr.SettlementDirection)

	res = send(t, act, Command{Type: CmdAcceptTrade, Role: RoleTeam, TeamID: cp, TradeID: tr.ID})
	require.Nil(t, res.Reject)
	assert.Equal(t, "trade/accepted", res.Delta.Event)

	res = send(t, act, Command{Type: CmdApproveTrade, Role: RoleAdmin, TradeID: tr.ID, Message: "ok"})
	require.Nil(t, res.Reject)
	assert.Equal(t, "trade/executed", res.Delta.Event)
	assert.Contains(t, store.Ops(), "trade_execution")

	// Declining an already-executed trade fails without moving anything.
	res = send(t, act, Command{Type: CmdDeclineTrade, Role: RoleTeam, TeamID: cp, TradeID: tr.ID})
	require.NotNil(t, res.Reject)
	assert.Equal(t, CodeTradeValidationFailed, res.Reject.Code)
}

func TestActorFinalizeRunsTeardownHook(t *testing.T) {
	a, _ := testAggregate(t, 0, nil)
	a.Status = auction.StatusCompleted

	var torn uuid.UUID
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	act := newActor(ctx, a, Deps{Store: &fakeStore{}, Pub: newFakePub()}, func(id uuid.UUID) {
		torn = id
		close(done)
	})

	res := send(t, act, Command{Type: CmdOpenTradeWindow, Role: RoleAdmin})
	require.Nil(t, res.Reject)
	res = send(t, act, Command{Type: CmdFinalize, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	select {
	case <-done:
		assert.Equal(t, a.ID, torn)
	case <-time.After(time.Second):
		t.Fatal("finalize hook never ran")
	}
}
