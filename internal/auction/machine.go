package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Configure validates the config and moves draft -> configured.
func (a *Auction) Configure(cfg Config) error {
	if a.Status != StatusDraft && a.Status != StatusConfigured {
		return fmt.Errorf("%w: configure from %s", ErrInvalidTransition, a.Status)
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}
	if cfg.UnsoldReentry == "" {
		cfg.UnsoldReentry = ReentryEndOfPool
	}
	a.Config = cfg
	a.Status = StatusConfigured
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.BasePrice <= 0:
		return fmt.Errorf("%w: base price", ErrConfigIncomplete)
	case cfg.PurseValue < cfg.BasePrice:
		return fmt.Errorf("%w: purse below base price", ErrConfigIncomplete)
	case cfg.MinSquadSize < 1 || cfg.MaxSquadSize < cfg.MinSquadSize:
		return fmt.Errorf("%w: squad sizes", ErrConfigIncomplete)
	case cfg.BidTimer <= 0 || cfg.WarnTimer <= 0:
		return fmt.Errorf("%w: timers", ErrConfigIncomplete)
	case cfg.TradeWindowHours < 0 || cfg.MaxTradesPerTeam < 0:
		return fmt.Errorf("%w: trade settings", ErrConfigIncomplete)
	case cfg.RetentionEnabled && cfg.MaxRetentions < 1:
		return fmt.Errorf("%w: max retentions", ErrConfigIncomplete)
	}
	if _, ok := PresetByName(cfg.BidIncrementPreset); !ok {
		return fmt.Errorf("%w: unknown increment preset %q", ErrConfigIncomplete, cfg.BidIncrementPreset)
	}
	switch cfg.UnsoldReentry {
	case "", ReentryEndOfPool, ReentryDrop:
	default:
		return fmt.Errorf("%w: unsold reentry %q", ErrConfigIncomplete, cfg.UnsoldReentry)
	}
	return nil
}

// GoLive moves configured -> live and puts the first pool player on the block.
func (a *Auction) GoLive(now time.Time) error {
	if a.Status != StatusConfigured {
		return fmt.Errorf("%w: go-live from %s", ErrInvalidTransition, a.Status)
	}
	if len(a.PoolOrder) == 0 {
		return fmt.Errorf("%w: empty player pool", ErrConfigIncomplete)
	}
	if len(a.Teams) < 2 {
		return fmt.Errorf("%w: need at least two teams", ErrConfigIncomplete)
	}
	a.Status = StatusLive
	_, err := a.OpenNextRound(now)
	return err
}

// Pause freezes a live auction. The actor owns freezing the round timer; the
// round itself is kept as-is so resume can restore the remaining countdown.
func (a *Auction) Pause() error {
	if a.Status != StatusLive {
		return fmt.Errorf("%w: pause from %s", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusPaused
	return nil
}

func (a *Auction) Resume() error {
	if a.Status != StatusPaused {
		return fmt.Errorf("%w: resume from %s", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusLive
	return nil
}

// Complete ends the live part of the auction. Without force the pool has to
// be exhausted and no round may still be running.
func (a *Auction) Complete(force bool) error {
	if a.Status != StatusLive && a.Status != StatusPaused {
		return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, a.Status)
	}
	if !force {
		if len(a.PoolOrder) > 0 || a.RoundActive() {
			return ErrPoolNotExhausted
		}
	}
	a.Round = nil
	a.Status = StatusCompleted
	return nil
}

func (a *Auction) OpenTradeWindow(now time.Time) error {
	if a.Status != StatusCompleted {
		return fmt.Errorf("%w: open-trade-window from %s", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusTradeWindow
	a.TradeWindowEndsAt = now.Add(time.Duration(a.Config.TradeWindowHours) * time.Hour)
	return nil
}

// Finalize is irreversible; team and player state lock here.
func (a *Auction) Finalize() error {
	if a.Status != StatusTradeWindow {
		return fmt.Errorf("%w: finalize from %s", ErrInvalidTransition, a.Status)
	}
	a.Status = StatusFinalized
	return nil
}

// ReorderPool replaces the pool order. The new order must be a permutation of
// the current one; admins may reorder while live or paused.
func (a *Auction) ReorderPool(ids []uuid.UUID) error {
	if a.Status != StatusLive && a.Status != StatusPaused {
		return fmt.Errorf("%w: reorder-pool from %s", ErrInvalidTransition, a.Status)
	}
	if len(ids) != len(a.PoolOrder) {
		return fmt.Errorf("%w: reorder must cover the whole pool", ErrUnknownPlayer)
	}
	current := make(map[uuid.UUID]bool, len(a.PoolOrder))
	for _, id := range a.PoolOrder {
		current[id] = true
	}
	for _, id := range ids {
		if !current[id] {
			return fmt.Errorf("%w: %s is not in the pool", ErrUnknownPlayer, id)
		}
		delete(current, id)
	}
	a.PoolOrder = append([]uuid.UUID(nil), ids...)
	return nil
}

// RoundActive reports whether a round is still running (not yet resolved).
func (a *Auction) RoundActive() bool {
	if a.Round == nil {
		return false
	}
	switch a.Round.Phase {
	case RoundSold, RoundUnsold:
		return false
	}
	return true
}

// OpenNextRound takes the next pool player onto the block. When the pool is
// empty the auction auto-completes and opened is false.
func (a *Auction) OpenNextRound(now time.Time) (opened bool, err error) {
	if a.Status != StatusLive {
		return false, fmt.Errorf("%w: open round from %s", ErrInvalidTransition, a.Status)
	}
	if a.RoundActive() {
		return false, fmt.Errorf("%w: a round is already active", ErrInvalidTransition)
	}
	if len(a.PoolOrder) == 0 {
		a.Round = nil
		a.Status = StatusCompleted
		return false, nil
	}
	playerID := a.PoolOrder[0]
	a.PoolOrder = a.PoolOrder[1:]
	a.CurrentRound++
	a.Round = &BiddingRound{
		Number:         a.CurrentRound,
		PlayerID:       playerID,
		Phase:          RoundOpen,
		TimerExpiresAt: now.Add(a.Config.BidTimer),
	}
	return true, nil
}

// AdvancePhase is driven by timer expiry: open -> going_once -> going_twice,
// then resolution to sold or unsold.
func (a *Auction) AdvancePhase(now time.Time) (RoundPhase, error) {
	if a.Status != StatusLive || a.Round == nil {
		return "", fmt.Errorf("%w: no round to advance", ErrInvalidTransition)
	}
	r := a.Round
	switch r.Phase {
	case RoundOpen:
		r.Phase = RoundGoingOnce
		r.TimerExpiresAt = now.Add(a.Config.WarnTimer)
	case RoundGoingOnce:
		r.Phase = RoundGoingTwice
		r.TimerExpiresAt = now.Add(a.Config.WarnTimer)
	case RoundGoingTwice:
		if r.CurrentBidTeam != nil {
			if err := a.resolveSold(now); err != nil {
				return r.Phase, err
			}
		} else if err := a.resolveUnsold(); err != nil {
			return r.Phase, err
		}
	default:
		return r.Phase, fmt.Errorf("%w: advance from %s", ErrInvalidTransition, r.Phase)
	}
	return r.Phase, nil
}

// resolveSold transfers ownership and debits the purse in one step.
func (a *Auction) resolveSold(now time.Time) error {
	r := a.Round
	team, ok := a.Teams[*r.CurrentBidTeam]
	if !ok {
		return fmt.Errorf("%w: winning team missing", ErrInconsistentExecution)
	}
	player, ok := a.Players[r.PlayerID]
	if !ok {
		return fmt.Errorf("%w: sold player missing", ErrInconsistentExecution)
	}
	if team.PurseRemaining() < r.CurrentBid {
		return fmt.Errorf("%w: sale would overdraw purse", ErrInconsistentExecution)
	}
	team.Spent += r.CurrentBid
	team.Squad = append(team.Squad, SquadEntry{PlayerID: player.ID, Price: r.CurrentBid})
	winner := *r.CurrentBidTeam
	player.Status = PlayerSold
	player.SoldTo = &winner
	player.SoldAmount = r.CurrentBid
	player.SoldInRound = r.Number
	r.Phase = RoundSold
	return nil
}

// resolveUnsold returns the player to the pool tail or drops it, per config.
func (a *Auction) resolveUnsold() error {
	r := a.Round
	player, ok := a.Players[r.PlayerID]
	if !ok {
		return fmt.Errorf("%w: player missing at resolution", ErrInconsistentExecution)
	}
	player.Status = PlayerUnsold
	if a.Config.UnsoldReentry == ReentryEndOfPool {
		a.PoolOrder = append(a.PoolOrder, player.ID)
		player.Status = PlayerPool
	}
	r.Phase = RoundUnsold
	return nil
}

// SubmitBid arbitrates one bid attempt. The amount is always computed server
// side; validation short-circuits at the first failure and leaves every piece
// of state untouched on rejection.
func (a *Auction) SubmitBid(teamID uuid.UUID, now time.Time) (int64, error) {
	if a.Status != StatusLive || a.Round == nil {
		return 0, ErrRoundNotOpen
	}
	r := a.Round
	switch r.Phase {
	case RoundOpen, RoundGoingOnce, RoundGoingTwice:
	default:
		return 0, ErrRoundNotOpen
	}
	if r.CurrentBidTeam != nil && *r.CurrentBidTeam == teamID {
		return 0, ErrSelfOutbid
	}
	team, ok := a.Teams[teamID]
	if !ok {
		return 0, ErrUnknownTeam
	}
	preset, _ := PresetByName(a.Config.BidIncrementPreset)
	next := preset.Next(a.Config, r)
	if err := CanBid(team, a.Config, next); err != nil {
		return 0, err
	}
	r.CurrentBid = next
	bidder := teamID
	r.CurrentBidTeam = &bidder
	r.History = append(r.History, Bid{TeamID: teamID, Amount: next, At: now})
	r.Phase = RoundOpen
	r.TimerExpiresAt = now.Add(a.Config.BidTimer)
	return next, nil
}
