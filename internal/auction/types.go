package auction

import (
	"time"

	"github.com/google/uuid"
)

// Status is the auction lifecycle state.
type Status string

const (
	StatusDraft       Status = "draft"
	StatusConfigured  Status = "configured"
	StatusLive        Status = "live"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusTradeWindow Status = "trade_window"
	StatusFinalized   Status = "finalized"
)

// RoundPhase is the state of the bidding round for the player on the block.
type RoundPhase string

// Player selection and round opening happen in one step, so a round is
// never observable before "open".
const (
	RoundOpen       RoundPhase = "open"
	RoundGoingOnce  RoundPhase = "going_once"
	RoundGoingTwice RoundPhase = "going_twice"
	RoundSold       RoundPhase = "sold"
	RoundUnsold     RoundPhase = "unsold"
)

// PlayerStatus tracks where a player sits relative to the pool.
type PlayerStatus string

const (
	PlayerPool         PlayerStatus = "pool"
	PlayerSold         PlayerStatus = "sold"
	PlayerUnsold       PlayerStatus = "unsold"
	PlayerDisqualified PlayerStatus = "disqualified"
)

// UnsoldReentry controls what happens to a player nobody bid on.
type UnsoldReentry string

const (
	ReentryEndOfPool UnsoldReentry = "end_of_pool"
	ReentryDrop      UnsoldReentry = "drop"
)

// Config is the per-auction configuration fixed at configure time.
type Config struct {
	BasePrice              int64         `json:"base_price"`
	PurseValue             int64         `json:"purse_value"`
	MinSquadSize           int           `json:"min_squad_size"`
	MaxSquadSize           int           `json:"max_squad_size"`
	BidIncrementPreset     string        `json:"bid_increment_preset"`
	RetentionEnabled       bool          `json:"retention_enabled"`
	MaxRetentions          int           `json:"max_retentions"`
	TradeWindowHours       int           `json:"trade_window_hours"`
	MaxTradesPerTeam       int           `json:"max_trades_per_team"`
	TradeSettlementEnabled bool          `json:"trade_settlement_enabled"`
	UnsoldReentry          UnsoldReentry `json:"unsold_reentry"`
	BidTimer               time.Duration `json:"bid_timer"`
	WarnTimer              time.Duration `json:"warn_timer"`
}

// SquadEntry is one owned player, tagged retained or bought.
type SquadEntry struct {
	PlayerID uuid.UUID `json:"player_id"`
	Retained bool      `json:"retained"`
	Price    int64     `json:"price"` // 0 for retained entries
}

type Team struct {
	ID         uuid.UUID    `json:"id"`
	Name       string       `json:"name"`
	PurseValue int64        `json:"purse_value"`
	Spent      int64        `json:"spent"`
	Squad      []SquadEntry `json:"squad"`
	Token      string       `json:"-"` // opaque bidding credential, never serialized outward
}

// PurseRemaining is derived, recomputed on every sale and trade.
func (t *Team) PurseRemaining() int64 { return t.PurseValue - t.Spent }

func (t *Team) SquadSize() int { return len(t.Squad) }

func (t *Team) Owns(playerID uuid.UUID) bool {
	for _, e := range t.Squad {
		if e.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (t *Team) squadValue(ids []uuid.UUID) int64 {
	var total int64
	for _, e := range t.Squad {
		for _, id := range ids {
			if e.PlayerID == id {
				total += e.Price
			}
		}
	}
	return total
}

type Player struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Role        string       `json:"role,omitempty"` // batter, bowler, all-rounder, keeper
	Status      PlayerStatus `json:"status"`
	SoldTo      *uuid.UUID   `json:"sold_to,omitempty"`
	SoldAmount  int64        `json:"sold_amount,omitempty"`
	SoldInRound int          `json:"sold_in_round,omitempty"`
}

// Bid is one accepted entry in a round's history.
type Bid struct {
	TeamID uuid.UUID `json:"team_id"`
	Amount int64     `json:"amount"`
	At     time.Time `json:"at"`
}

// BiddingRound exists only while a player is on the block. At most one is
// active per auction; only the state machine mutates it.
type BiddingRound struct {
	Number         int        `json:"number"`
	PlayerID       uuid.UUID  `json:"player_id"`
	Phase          RoundPhase `json:"phase"`
	CurrentBid     int64      `json:"current_bid"`
	CurrentBidTeam *uuid.UUID `json:"current_bid_team,omitempty"`
	TimerExpiresAt time.Time  `json:"timer_expires_at"`
	History        []Bid      `json:"history"`
}

// Auction is the root aggregate. Teams, players, rounds and trades belong to
// it and do not outlive it.
type Auction struct {
	ID                uuid.UUID
	Slug              string
	Config            Config
	Status            Status
	CurrentRound      int
	TradeWindowEndsAt time.Time

	Teams     map[uuid.UUID]*Team
	Players   map[uuid.UUID]*Player
	PoolOrder []uuid.UUID
	Round     *BiddingRound
	Trades    map[uuid.UUID]*Trade
}

func New(id uuid.UUID, slug string) *Auction {
	return &Auction{
		ID:      id,
		Slug:    slug,
		Status:  StatusDraft,
		Teams:   make(map[uuid.UUID]*Team),
		Players: make(map[uuid.UUID]*Player),
		Trades:  make(map[uuid.UUID]*Trade),
	}
}

func (a *Auction) Team(id uuid.UUID) (*Team, bool) {
	t, ok := a.Teams[id]
	return t, ok
}

func (a *Auction) Player(id uuid.UUID) (*Player, bool) {
	p, ok := a.Players[id]
	return p, ok
}

// RetainedCount counts squad entries tagged retained.
func (t *Team) RetainedCount() int {
	n := 0
	for _, e := range t.Squad {
		if e.Retained {
			n++
		}
	}
	return n
}
