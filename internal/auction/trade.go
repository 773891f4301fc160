package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TradeStatus string

const (
	TradeProposed      TradeStatus = "proposed"
	TradeAccepted      TradeStatus = "accepted"
	TradeRejected      TradeStatus = "rejected"
	TradeWithdrawn     TradeStatus = "withdrawn"
	TradeAdminApproved TradeStatus = "admin_approved"
	TradeAdminRejected TradeStatus = "admin_rejected"
	TradeExecuted      TradeStatus = "executed"
)

type SettlementDirection string

const (
	SettleEven             SettlementDirection = "even"
	SettleInitiatorPays    SettlementDirection = "initiator_pays"
	SettleCounterpartyPays SettlementDirection = "counterparty_pays"
)

// Trade is a proposal between two teams during the trade window. Squads and
// purses move only at execution, and only once.
type Trade struct {
	ID                  uuid.UUID           `json:"id"`
	InitiatorTeam       uuid.UUID           `json:"initiator_team"`
	CounterpartyTeam    uuid.UUID           `json:"counterparty_team"`
	InitiatorPlayers    []uuid.UUID         `json:"initiator_players"`
	CounterpartyPlayers []uuid.UUID         `json:"counterparty_players"`
	InitiatorValue      int64               `json:"initiator_value"`
	CounterpartyValue   int64               `json:"counterparty_value"`
	SettlementAmount    int64               `json:"settlement_amount"`
	SettlementDirection SettlementDirection `json:"settlement_direction"`
	Status              TradeStatus         `json:"status"`
	Message             string              `json:"message,omitempty"`
	AdminNote           string              `json:"admin_note,omitempty"`
	ProposedAt          time.Time           `json:"proposed_at"`
	ResolvedAt          time.Time           `json:"resolved_at,omitempty"`
}

// ExecutedTrades counts executed trades the team took part in, either side.
func (a *Auction) ExecutedTrades(teamID uuid.UUID) int {
	n := 0
	for _, t := range a.Trades {
		if t.Status != TradeExecuted {
			continue
		}
		if t.InitiatorTeam == teamID || t.CounterpartyTeam == teamID {
			n++
		}
	}
	return n
}

// ProposeTrade validates and records a new trade in proposed state.
func (a *Auction) ProposeTrade(id, initiator, counterparty uuid.UUID, give, want []uuid.UUID, message string, now time.Time) (*Trade, error) {
	if a.Status != StatusTradeWindow || !now.Before(a.TradeWindowEndsAt) {
		return nil, ErrTradeWindowClosed
	}
	if initiator == counterparty {
		return nil, ErrTradeSelf
	}
	initTeam, ok := a.Teams[initiator]
	if !ok {
		return nil, ErrUnknownTeam
	}
	cpTeam, ok := a.Teams[counterparty]
	if !ok {
		return nil, ErrUnknownTeam
	}
	if len(give) == 0 || len(want) == 0 {
		return nil, ErrTradeEmpty
	}
	if err := ownsAll(initTeam, give); err != nil {
		return nil, err
	}
	if err := ownsAll(cpTeam, want); err != nil {
		return nil, err
	}
	if a.ExecutedTrades(initiator) >= a.Config.MaxTradesPerTeam {
		return nil, ErrTradeCapExceeded
	}
	if err := a.checkSquadBounds(initTeam, cpTeam, give, want); err != nil {
		return nil, err
	}

	t := &Trade{
		ID:                  id,
		InitiatorTeam:       initiator,
		CounterpartyTeam:    counterparty,
		InitiatorPlayers:    append([]uuid.UUID(nil), give...),
		CounterpartyPlayers: append([]uuid.UUID(nil), want...),
		InitiatorValue:      initTeam.squadValue(give),
		CounterpartyValue:   cpTeam.squadValue(want),
		Status:              TradeProposed,
		Message:             message,
		ProposedAt:          now,
	}
	if a.Config.TradeSettlementEnabled {
		t.SettlementAmount, t.SettlementDirection = settlement(t.InitiatorValue, t.CounterpartyValue)
		if err := a.checkSettlementPurse(t); err != nil {
			return nil, err
		}
	} else {
		t.SettlementDirection = SettleEven
	}
	a.Trades[t.ID] = t
	return t, nil
}

// settlement: the side sending out the lower player value pays the difference.
func settlement(initValue, cpValue int64) (int64, SettlementDirection) {
	switch {
	case initValue > cpValue:
		return initValue - cpValue, SettleCounterpartyPays
	case cpValue > initValue:
		return cpValue - initValue, SettleInitiatorPays
	default:
		return 0, SettleEven
	}
}

func ownsAll(team *Team, ids []uuid.UUID) error {
	for _, id := range ids {
		if !team.Owns(id) {
			return fmt.Errorf("%w: team %s does not own %s", ErrTradeOwnership, team.ID, id)
		}
	}
	return nil
}

func (a *Auction) checkSquadBounds(initTeam, cpTeam *Team, give, want []uuid.UUID) error {
	initSize := initTeam.SquadSize() - len(give) + len(want)
	cpSize := cpTeam.SquadSize() - len(want) + len(give)
	if initSize > a.Config.MaxSquadSize || cpSize > a.Config.MaxSquadSize ||
		initSize < a.Config.MinSquadSize || cpSize < a.Config.MinSquadSize {
		return ErrTradeSquadOverflow
	}
	return nil
}

func (a *Auction) checkSettlementPurse(t *Trade) error {
	if t.SettlementAmount == 0 {
		return nil
	}
	payer := a.Teams[t.InitiatorTeam]
	if t.SettlementDirection == SettleCounterpartyPays {
		payer = a.Teams[t.CounterpartyTeam]
	}
	if payer.PurseRemaining() < t.SettlementAmount {
		return ErrTradePurse
	}
	return nil
}

func (a *Auction) trade(id uuid.UUID) (*Trade, error) {
	t, ok := a.Trades[id]
	if !ok {
		return nil, ErrTradeNotFound
	}
	return t, nil
}

// AcceptTrade is the counterparty's move. With settlement review enabled the
// trade parks in accepted until an admin decides; otherwise it executes here.
func (a *Auction) AcceptTrade(tradeID, teamID uuid.UUID, now time.Time) (*Trade, error) {
	t, err := a.trade(tradeID)
	if err != nil {
		return nil, err
	}
	if t.CounterpartyTeam != teamID {
		return nil, ErrTradeWrongTeam
	}
	if t.Status != TradeProposed {
		return nil, ErrTradeWrongState
	}
	if a.Status != StatusTradeWindow || !now.Before(a.TradeWindowEndsAt) {
		return nil, ErrTradeWindowClosed
	}
	if a.Config.TradeSettlementEnabled {
		t.Status = TradeAccepted
		return t, nil
	}
	if err := a.executeTrade(t, now); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *Auction) RejectTrade(tradeID, teamID uuid.UUID, now time.Time) (*Trade, error) {
	t, err := a.trade(tradeID)
	if err != nil {
		return nil, err
	}
	if t.CounterpartyTeam != teamID {
		return nil, ErrTradeWrongTeam
	}
	if t.Status != TradeProposed {
		return nil, ErrTradeWrongState
	}
	t.Status = TradeRejected
	t.ResolvedAt = now
	return t, nil
}

func (a *Auction) WithdrawTrade(tradeID, teamID uuid.UUID, now time.Time) (*Trade, error) {
	t, err := a.trade(tradeID)
	if err != nil {
		return nil, err
	}
	if t.InitiatorTeam != teamID {
		return nil, ErrTradeWrongTeam
	}
	if t.Status != TradeProposed {
		return nil, ErrTradeWrongState
	}
	t.Status = TradeWithdrawn
	t.ResolvedAt = now
	return t, nil
}

// AdminApproveTrade clears an accepted trade and executes it.
func (a *Auction) AdminApproveTrade(tradeID uuid.UUID, note string, now time.Time) (*Trade, error) {
	t, err := a.trade(tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != TradeAccepted {
		return nil, ErrTradeWrongState
	}
	// admin_approved is transient: execution follows in the same step, and a
	// failed revalidation leaves the trade in accepted.
	if err := a.executeTrade(t, now); err != nil {
		return nil, err
	}
	t.AdminNote = note
	return t, nil
}

func (a *Auction) AdminRejectTrade(tradeID uuid.UUID, reason string, now time.Time) (*Trade, error) {
	t, err := a.trade(tradeID)
	if err != nil {
		return nil, err
	}
	if t.Status != TradeAccepted {
		return nil, ErrTradeWrongState
	}
	t.AdminNote = reason
	t.Status = TradeAdminRejected
	t.ResolvedAt = now
	return t, nil
}

// executeTrade applies the swap atomically: every check runs before the first
// mutation, and the mutation itself cannot fail. A violation surfacing after
// checks passed means torn state and comes back as ErrInconsistentExecution.
func (a *Auction) executeTrade(t *Trade, now time.Time) error {
	initTeam := a.Teams[t.InitiatorTeam]
	cpTeam := a.Teams[t.CounterpartyTeam]
	if initTeam == nil || cpTeam == nil {
		return fmt.Errorf("%w: trade party missing", ErrInconsistentExecution)
	}
	// Ownership can have changed between proposal and execution.
	if err := ownsAll(initTeam, t.InitiatorPlayers); err != nil {
		return err
	}
	if err := ownsAll(cpTeam, t.CounterpartyPlayers); err != nil {
		return err
	}
	if err := a.checkSettlementPurse(t); err != nil {
		return err
	}

	outInit, keptInit := splitSquad(initTeam.Squad, t.InitiatorPlayers)
	outCp, keptCp := splitSquad(cpTeam.Squad, t.CounterpartyPlayers)
	if len(outInit) != len(t.InitiatorPlayers) || len(outCp) != len(t.CounterpartyPlayers) {
		return fmt.Errorf("%w: squad entries missing mid-trade", ErrInconsistentExecution)
	}

	initTeam.Squad = append(keptInit, outCp...)
	cpTeam.Squad = append(keptCp, outInit...)
	for _, e := range outCp {
		a.reassign(e.PlayerID, initTeam.ID)
	}
	for _, e := range outInit {
		a.reassign(e.PlayerID, cpTeam.ID)
	}
	if a.Config.TradeSettlementEnabled && t.SettlementAmount > 0 {
		payer, payee := initTeam, cpTeam
		if t.SettlementDirection == SettleCounterpartyPays {
			payer, payee = cpTeam, initTeam
		}
		payer.Spent += t.SettlementAmount
		payee.Spent -= t.SettlementAmount
	}
	t.Status = TradeExecuted
	t.ResolvedAt = now
	return nil
}

func splitSquad(squad []SquadEntry, ids []uuid.UUID) (out, kept []SquadEntry) {
	wanted := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	for _, e := range squad {
		if wanted[e.PlayerID] {
			out = append(out, e)
		} else {
			kept = append(kept, e)
		}
	}
	return out, kept
}

func (a *Auction) reassign(playerID, teamID uuid.UUID) {
	if p, ok := a.Players[playerID]; ok {
		owner := teamID
		p.SoldTo = &owner
	}
}
