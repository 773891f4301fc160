package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cricketauction/internal/auction"
)

// Store is the durable side the actor writes to before anything is broadcast.
// Implementations must be strongly consistent per auction aggregate; there is
// no cross-auction requirement.
type Store interface {
	SaveConfig(ctx context.Context, a *auction.Auction) error
	SaveStatus(ctx context.Context, a *auction.Auction) error
	SavePoolOrder(ctx context.Context, a *auction.Auction) error
	AppendBid(ctx context.Context, auctionID uuid.UUID, round int, playerID uuid.UUID, b auction.Bid) error
	SaveSale(ctx context.Context, a *auction.Auction, p *auction.Player) error
	SaveUnsold(ctx context.Context, a *auction.Auction, p *auction.Player) error
	SaveTrade(ctx context.Context, auctionID uuid.UUID, t *auction.Trade) error
	SaveTradeExecution(ctx context.Context, a *auction.Auction, t *auction.Trade) error
}

// Publisher fans an applied delta out to subscribers of the auction.
type Publisher interface {
	Publish(ctx context.Context, a *auction.Auction, d Delta) error
}

// Deps bundles what an actor needs besides its aggregate.
type Deps struct {
	Store Store
	Pub   Publisher
	Clock func() time.Time
	Log   *zap.Logger
}

// Actor owns one auction. All mutating commands flow through its inbox and
// are applied strictly serially; commands for different auctions run in
// parallel on their own actors.
type Actor struct {
	id    uuid.UUID
	inbox chan msg
	state *auction.Auction

	version  int
	gen      uint64
	timer    *time.Timer
	frozen   time.Duration
	degraded bool
	halted   bool

	store Store
	pub   Publisher
	clock func() time.Time
	log   *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	onFinalize func(uuid.UUID)
}

const persistAttempts = 3

func newActor(parent context.Context, a *auction.Auction, deps Deps, onFinalize func(uuid.UUID)) *Actor {
	ctx, cancel := context.WithCancel(parent)
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Log
	if log == nil {
		log = zap.L()
	}
	act := &Actor{
		id:         a.ID,
		inbox:      make(chan msg, 256),
		state:      a,
		store:      deps.Store,
		pub:        deps.Pub,
		clock:      clock,
		log:        log.With(zap.String("auction_id", a.ID.String())),
		ctx:        ctx,
		cancel:     cancel,
		onFinalize: onFinalize,
	}
	go act.loop()
	return act
}

// Send queues a command. The reply channel (if any) receives exactly one
// Result once the command has been applied or rejected.
func (act *Actor) Send(cmd Command) {
	select {
	case act.inbox <- cmdMsg{Cmd: cmd}:
	case <-act.ctx.Done():
		if cmd.Reply != nil {
			cmd.Reply <- reject(CodeInvalidTransition, errors.New("auction is shut down"))
		}
	}
}

// SnapshotFor builds a role-scoped full snapshot, synchronously with the
// command stream so it can never observe a half-applied mutation.
func (act *Actor) SnapshotFor(ctx context.Context, role Role, teamID uuid.UUID) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case act.inbox <- snapshotMsg{Role: role, TeamID: teamID, Reply: reply}:
	case <-act.ctx.Done():
		return Snapshot{}, errors.New("auction is shut down")
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Stop tears the actor down. Safe to call from any goroutine, including the
// actor's own finalize hook.
func (act *Actor) Stop() {
	act.cancel()
}

func (act *Actor) loop() {
	for {
		select {
		case <-act.ctx.Done():
			act.shutdown()
			return
		case m := <-act.inbox:
			switch v := m.(type) {
			case cmdMsg:
				res := act.apply(v.Cmd)
				if v.Cmd.Reply != nil {
					select {
					case v.Cmd.Reply <- res:
					default: // caller went away; result is not owed to anyone else
					}
				}
			case timerMsg:
				if v.Gen != act.gen {
					// Stale timer from a superseded schedule; the generation
					// guard makes it a no-op.
					act.log.Debug("stale timer dropped", zap.Uint64("gen", v.Gen), zap.Uint64("current", act.gen))
					continue
				}
				act.onTimer()
			case snapshotMsg:
				v.Reply <- buildSnapshot(act.state, act.version, act.clock(), v.Role, v.TeamID, act.degraded)
			}
		}
	}
}

func (act *Actor) shutdown() {
	act.cancelTimer()
	act.cancel()
}

// schedule arms the round countdown. Every reschedule bumps the generation so
// a previously armed timer that still fires is ignored.
func (act *Actor) schedule(d time.Duration) {
	act.gen++
	gen := act.gen
	if act.timer != nil {
		act.timer.Stop()
	}
	act.timer = time.AfterFunc(d, func() {
		select {
		case act.inbox <- timerMsg{Gen: gen}:
		case <-act.ctx.Done():
		}
	})
}

func (act *Actor) cancelTimer() {
	act.gen++
	if act.timer != nil {
		act.timer.Stop()
		act.timer = nil
	}
}

// persist retries transient store failures with backoff. A write that still
// fails flips the degraded latch: the in-memory state is ahead of storage, so
// no further mutation is accepted until an operator steps in.
func (act *Actor) persist(op string, fn func(context.Context) error) error {
	backoff := 100 * time.Millisecond
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(act.ctx, 2*time.Second)
		err = fn(ctx)
		cancel()
		if err == nil {
			return nil
		}
		act.log.Warn("persist retry", zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
	}
	act.degraded = true
	// An already armed countdown must not keep advancing the round while
	// mutations are suspended; its state would never reach storage.
	act.cancelTimer()
	act.log.Error("persistence unavailable, auction degraded", zap.String("op", op), zap.Error(err))
	return err
}

// broadcast publishes an applied delta. Persistence has already completed (or
// been durably queued) by the time this runs.
func (act *Actor) broadcast(event string, body any) *Delta {
	act.version++
	d := Delta{Event: event, Body: body, Version: act.version}
	ctx, cancel := context.WithTimeout(act.ctx, 2*time.Second)
	defer cancel()
	if err := act.pub.Publish(ctx, act.state, d); err != nil {
		act.log.Warn("broadcast failed", zap.String("event", event), zap.Error(err))
	}
	return &d
}

func (act *Actor) halt(err error) Result {
	act.halted = true
	act.cancelTimer()
	act.log.Error("auction halted", zap.Error(err))
	return reject(CodeInconsistentExecution, err)
}

func (act *Actor) apply(cmd Command) Result {
	if need, ok := requiredRole[cmd.Type]; !ok || need != cmd.Role {
		return reject(CodeForbidden, errors.New("command not permitted for this role"))
	}
	if act.halted {
		return reject(CodeInconsistentExecution, errors.New("auction halted, operator intervention required"))
	}
	if act.degraded {
		return reject(CodeDegraded, errors.New("persistence degraded, mutations suspended"))
	}

	now := act.clock()
	switch cmd.Type {
	case CmdConfigure:
		if cmd.Config == nil {
			return reject(CodeInvalidTransition, errors.New("missing configuration"))
		}
		if err := act.state.Configure(*cmd.Config); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if err := act.persist("save_config", func(ctx context.Context) error {
			return act.store.SaveConfig(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("auction/configured", map[string]any{"config": act.state.Config})}

	case CmdGoLive:
		if err := act.state.GoLive(now); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		d := act.broadcast("auction/live", roundBody(act.state))
		act.schedule(act.state.Config.BidTimer)
		return Result{Delta: d}

	case CmdPause:
		if err := act.state.Pause(); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if act.state.RoundActive() {
			act.frozen = act.state.Round.TimerExpiresAt.Sub(now)
			if act.frozen < 0 {
				act.frozen = 0
			}
		}
		act.cancelTimer()
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("auction/paused", map[string]any{
			"reason":           cmd.Reason,
			"remaining_millis": act.frozen.Milliseconds(),
		})}

	case CmdResume:
		if err := act.state.Resume(); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if act.state.RoundActive() {
			// The round resumes with exactly the time it had left when it was
			// frozen, not a fresh countdown.
			act.state.Round.TimerExpiresAt = now.Add(act.frozen)
			act.schedule(act.frozen)
		}
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("auction/resumed", roundBody(act.state))}

	case CmdComplete:
		if err := act.state.Complete(cmd.Force); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		act.cancelTimer()
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("auction/completed", map[string]any{"reason": cmd.Reason})}

	case CmdOpenTradeWindow:
		if err := act.state.OpenTradeWindow(now); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("auction/trade_window", map[string]any{
			"ends_at": act.state.TradeWindowEndsAt,
		})}

	case CmdFinalize:
		if err := act.state.Finalize(); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if err := act.persist("save_status", func(ctx context.Context) error {
			return act.store.SaveStatus(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		d := act.broadcast("auction/finalized", map[string]any{})
		if act.onFinalize != nil {
			act.onFinalize(act.id)
		}
		return Result{Delta: d}

	case CmdReorderPool:
		if err := act.state.ReorderPool(cmd.PoolOrder); err != nil {
			return reject(CodeInvalidTransition, err)
		}
		if err := act.persist("save_pool_order", func(ctx context.Context) error {
			return act.store.SavePoolOrder(ctx, act.state)
		}); err != nil {
			return reject(CodeDegraded, err)
		}
		return Result{Delta: act.broadcast("pool/reordered", map[string]any{"order": act.state.PoolOrder})}

	case CmdBid:
		return act.applyBid(cmd, now)

	case CmdProposeTrade, CmdAcceptTrade, CmdDeclineTrade, CmdWithdrawTrade, CmdApproveTrade, CmdRejectTrade:
		return act.applyTrade(cmd, now)
	}
	return reject(CodeForbidden, errors.New("unknown command"))
}

func (act *Actor) applyBid(cmd Command, now time.Time) Result {
	amount, err := act.state.SubmitBid(cmd.TeamID, now)
	if err != nil {
		if errors.Is(err, auction.ErrInconsistentExecution) {
			return act.halt(err)
		}
		return reject(CodeBidRejected, err)
	}
	r := act.state.Round
	bid := r.History[len(r.History)-1]
	// The stream append is the durable queue for this bid; the broadcast may
	// only go out after it succeeds.
	if err := act.persist("append_bid", func(ctx context.Context) error {
		return act.store.AppendBid(ctx, act.id, r.Number, r.PlayerID, bid)
	}); err != nil {
		return reject(CodeDegraded, err)
	}
	d := act.broadcast("round/bid", map[string]any{
		"round":            r.Number,
		"player_id":        r.PlayerID,
		"team_id":          cmd.TeamID,
		"amount":           amount,
		"phase":            r.Phase,
		"timer_expires_at": r.TimerExpiresAt,
	})
	act.schedule(act.state.Config.BidTimer)
	return Result{Delta: d}
}

func (act *Actor) applyTrade(cmd Command, now time.Time) Result {
	var (
		tr  *auction.Trade
		err error
	)
	event := ""
	executed := false

	switch cmd.Type {
	case CmdProposeTrade:
		tr, err = act.state.ProposeTrade(uuid.New(), cmd.TeamID, cmd.Counterparty, cmd.Offer, cmd.Want, cmd.Message, now)
		event = "trade/proposed"
	case CmdAcceptTrade:
		tr, err = act.state.AcceptTrade(cmd.TradeID, cmd.TeamID, now)
		event = "trade/accepted"
	case CmdDeclineTrade:
		tr, err = act.state.RejectTrade(cmd.TradeID, cmd.TeamID, now)
		event = "trade/rejected"
	case CmdWithdrawTrade:
		tr, err = act.state.WithdrawTrade(cmd.TradeID, cmd.TeamID, now)
		event = "trade/withdrawn"
	case CmdApproveTrade:
		tr, err = act.state.AdminApproveTrade(cmd.TradeID, cmd.Message, now)
		event = "trade/executed"
	case CmdRejectTrade:
		tr, err = act.state.AdminRejectTrade(cmd.TradeID, cmd.Reason, now)
		event = "trade/admin_rejected"
	}
	if err != nil {
		if errors.Is(err, auction.ErrInconsistentExecution) {
			return act.halt(err)
		}
		return reject(CodeTradeValidationFailed, err)
	}
	if tr.Status == auction.TradeExecuted {
		executed = true
		event = "trade/executed"
	}

	persistOp := "save_trade"
	persistFn := func(ctx context.Context) error { return act.store.SaveTrade(ctx, act.id, tr) }
	if executed {
		persistOp = "save_trade_execution"
		persistFn = func(ctx context.Context) error { return act.store.SaveTradeExecution(ctx, act.state, tr) }
	}
	if err := act.persist(persistOp, persistFn); err != nil {
		return reject(CodeDegraded, err)
	}
	return Result{Delta: act.broadcast(event, map[string]any{"trade": tr})}
}

// onTimer advances the round after a countdown expires.
func (act *Actor) onTimer() {
	if act.halted || act.degraded {
		return
	}
	now := act.clock()
	phase, err := act.state.AdvancePhase(now)
	if err != nil {
		if errors.Is(err, auction.ErrInconsistentExecution) {
			act.halt(err)
			return
		}
		// A round that no longer exists (paused races, completion) is fine.
		act.log.Debug("timer advance skipped", zap.Error(err))
		return
	}

	switch phase {
	case auction.RoundGoingOnce, auction.RoundGoingTwice:
		act.broadcast("round/phase", map[string]any{
			"round":            act.state.Round.Number,
			"phase":            phase,
			"timer_expires_at": act.state.Round.TimerExpiresAt,
		})
		act.schedule(act.state.Config.WarnTimer)

	case auction.RoundSold:
		r := act.state.Round
		p := act.state.Players[r.PlayerID]
		if err := act.persist("save_sale", func(ctx context.Context) error {
			return act.store.SaveSale(ctx, act.state, p)
		}); err != nil {
			return
		}
		act.broadcast("round/sold", map[string]any{
			"round":     r.Number,
			"player_id": r.PlayerID,
			"team_id":   *r.CurrentBidTeam,
			"amount":    r.CurrentBid,
		})
		act.openNext(now)

	case auction.RoundUnsold:
		r := act.state.Round
		p := act.state.Players[r.PlayerID]
		if err := act.persist("save_unsold", func(ctx context.Context) error {
			return act.store.SaveUnsold(ctx, act.state, p)
		}); err != nil {
			return
		}
		act.broadcast("round/unsold", map[string]any{
			"round":     r.Number,
			"player_id": r.PlayerID,
			"reentry":   act.state.Config.UnsoldReentry,
		})
		act.openNext(now)
	}
}

func (act *Actor) openNext(now time.Time) {
	opened, err := act.state.OpenNextRound(now)
	if err != nil {
		if errors.Is(err, auction.ErrInconsistentExecution) {
			act.halt(err)
		}
		return
	}
	if err := act.persist("save_status", func(ctx context.Context) error {
		return act.store.SaveStatus(ctx, act.state)
	}); err != nil {
		return
	}
	if !opened {
		act.broadcast("auction/completed", map[string]any{"reason": "pool exhausted"})
		return
	}
	act.broadcast("round/opened", roundBody(act.state))
	act.schedule(act.state.Config.BidTimer)
}

func roundBody(a *auction.Auction) map[string]any {
	body := map[string]any{"status": a.Status}
	if a.Round != nil {
		body["round"] = a.Round.Number
		body["player_id"] = a.Round.PlayerID
		body["phase"] = a.Round.Phase
		body["timer_expires_at"] = a.Round.TimerExpiresAt
		body["current_bid"] = a.Round.CurrentBid
		if a.Round.CurrentBidTeam != nil {
			body["current_bid_team"] = *a.Round.CurrentBidTeam
		}
	}
	return body
}
