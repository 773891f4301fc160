package registry

import (
	"time"

	"github.com/google/uuid"

	"cricketauction/internal/auction"
)

// TeamView is the public face of a team: no credential, squad and purse are
// public knowledge in a live auction room.
type TeamView struct {
	ID             uuid.UUID            `json:"id"`
	Name           string               `json:"name"`
	PurseValue     int64                `json:"purse_value"`
	PurseRemaining int64                `json:"purse_remaining"`
	SquadSize      int                  `json:"squad_size"`
	Squad          []auction.SquadEntry `json:"squad"`
}

// SelfView is appended only to the owning team's snapshot.
type SelfView struct {
	TeamID         uuid.UUID `json:"team_id"`
	PurseRemaining int64     `json:"purse_remaining"`
	MaxBid         int64     `json:"max_bid"`
	SquadSize      int       `json:"squad_size"`
}

// Snapshot is the full resynchronization state sent on every (re)connect.
// Reconnecting clients always get this, never a delta replay.
type Snapshot struct {
	Version           int                    `json:"version"`
	AuctionID         uuid.UUID              `json:"auction_id"`
	Slug              string                 `json:"slug"`
	Status            auction.Status         `json:"status"`
	Config            auction.Config         `json:"config"`
	CurrentRound      int                    `json:"current_round"`
	TradeWindowEndsAt time.Time              `json:"trade_window_ends_at,omitempty"`
	Round             *auction.BiddingRound  `json:"round,omitempty"`
	RemainingMillis   int64                  `json:"remaining_millis,omitempty"`
	Teams             []TeamView             `json:"teams"`
	Players           []*auction.Player      `json:"players"`
	PoolOrder         []uuid.UUID            `json:"pool_order"`
	Trades            []*auction.Trade       `json:"trades,omitempty"`
	You               *SelfView              `json:"you,omitempty"`
	Degraded          bool                   `json:"degraded,omitempty"`
}

func buildSnapshot(a *auction.Auction, version int, now time.Time, role Role, teamID uuid.UUID, degraded bool) Snapshot {
	snap := Snapshot{
		Version:           version,
		AuctionID:         a.ID,
		Slug:              a.Slug,
		Status:            a.Status,
		Config:            a.Config,
		CurrentRound:      a.CurrentRound,
		TradeWindowEndsAt: a.TradeWindowEndsAt,
		PoolOrder:         append([]uuid.UUID(nil), a.PoolOrder...),
		Degraded:          degraded,
	}
	for _, t := range a.Teams {
		snap.Teams = append(snap.Teams, TeamView{
			ID:             t.ID,
			Name:           t.Name,
			PurseValue:     t.PurseValue,
			PurseRemaining: t.PurseRemaining(),
			SquadSize:      t.SquadSize(),
			Squad:          append([]auction.SquadEntry(nil), t.Squad...),
		})
	}
	for _, p := range a.Players {
		cp := *p
		snap.Players = append(snap.Players, &cp)
	}
	if a.Round != nil {
		r := *a.Round
		r.History = append([]auction.Bid(nil), a.Round.History...)
		snap.Round = &r
		if a.Status == auction.StatusLive && !r.TimerExpiresAt.IsZero() {
			if rem := r.TimerExpiresAt.Sub(now); rem > 0 {
				snap.RemainingMillis = rem.Milliseconds()
			}
		}
	}
	if a.Status == auction.StatusTradeWindow || a.Status == auction.StatusFinalized {
		for _, tr := range a.Trades {
			cp := *tr
			snap.Trades = append(snap.Trades, &cp)
		}
	}
	if role == RoleTeam {
		if team, ok := a.Teams[teamID]; ok {
			snap.You = &SelfView{
				TeamID:         team.ID,
				PurseRemaining: team.PurseRemaining(),
				MaxBid:         auction.MaxBid(team, a.Config),
				SquadSize:      team.SquadSize(),
			}
		}
	}
	return snap
}
