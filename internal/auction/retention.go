package auction

import (
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRetentionDisabled = errors.New("retention is not enabled for this auction")
	ErrRetentionCap      = errors.New("team has no retention slots left")
)

// RetainPlayer assigns a player to a team before the auction goes live.
// Retained players never enter the pool; they occupy squad slots at zero
// price and count against maxRetentions.
func (a *Auction) RetainPlayer(teamID uuid.UUID, p *Player) error {
	if a.Status != StatusDraft && a.Status != StatusConfigured {
		return ErrInvalidTransition
	}
	if !a.Config.RetentionEnabled {
		return ErrRetentionDisabled
	}
	t, ok := a.Teams[teamID]
	if !ok {
		return ErrUnknownTeam
	}
	if t.RetainedCount() >= a.Config.MaxRetentions {
		return ErrRetentionCap
	}
	if a.Config.MaxSquadSize > 0 && t.SquadSize() >= a.Config.MaxSquadSize {
		return ErrSquadFull
	}

	teamRef := teamID
	p.Status = PlayerSold
	p.SoldTo = &teamRef
	a.Players[p.ID] = p
	t.Squad = append(t.Squad, SquadEntry{PlayerID: p.ID, Retained: true, Price: 0})
	return nil
}
