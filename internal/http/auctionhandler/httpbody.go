package auctionhandler

import (
	"github.com/google/uuid"

	"cricketauction/internal/auction"
)

type CreateAuctionBody struct {
	Slug    string         `json:"slug"    binding:"required" example:"ipl-2026"`
	Config  auction.Config `json:"config"  binding:"required"`
	Teams   []TeamBody     `json:"teams"   binding:"required,min=2,dive"`
	Players []PlayerBody   `json:"players" binding:"required,min=1,dive"`
} // @name CreateAuctionRequest

type TeamBody struct {
	Name string `json:"name" binding:"required" example:"Chennai Strikers"`
	// Retained players join this team's squad before the pool is auctioned.
	// Only honored when the config enables retention.
	Retained []PlayerBody `json:"retained" binding:"omitempty,dive"`
} // @name TeamRequest

type PlayerBody struct {
	Name string `json:"name" binding:"required"                                     example:"V Kohli"`
	Role string `json:"role" binding:"omitempty,oneof=batter bowler all-rounder keeper" example:"batter"`
} // @name PlayerRequest

// CreatedTeam echoes the generated bidding token exactly once, at creation.
// It is never served again; the organizer distributes it out of band.
type CreatedTeam struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Token string    `json:"token"`
} // @name CreatedTeam

type CreateAuctionResponse struct {
	ID      uuid.UUID     `json:"id"`
	Slug    string        `json:"slug"`
	Teams   []CreatedTeam `json:"teams"`
	Players []uuid.UUID   `json:"players"`
} // @name CreateAuctionResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
