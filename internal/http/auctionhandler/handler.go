package auctionhandler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"cricketauction/internal/auction"
	"cricketauction/internal/registry"
	"cricketauction/internal/store"
)

// AuctionStore is the slice of the repository the REST surface needs.
type AuctionStore interface {
	CreateAuction(ctx context.Context, a *auction.Auction) error
	ListAuctions(ctx context.Context) ([]store.AuctionSummary, error)
}

type Handler struct {
	store AuctionStore
	reg   *registry.Registry

	// Engine-level round countdowns, used when the create request leaves its
	// own timers unset.
	bidTimer  time.Duration
	warnTimer time.Duration
}

func New(st AuctionStore, reg *registry.Registry, bidTimer, warnTimer time.Duration) *Handler {
	return &Handler{store: st, reg: reg, bidTimer: bidTimer, warnTimer: warnTimer}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/auctions", h.create)
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.GET("/auctions/:id/teams", h.teams)
}

// @Summary		Create an auction
// @Description	Drafts a new auction with its teams and player pool. Team bidding tokens are returned once, here.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction definition"
// @Success		201		{object}	CreateAuctionResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	if body.Config.BidTimer == 0 {
		body.Config.BidTimer = h.bidTimer
	}
	if body.Config.WarnTimer == 0 {
		body.Config.WarnTimer = h.warnTimer
	}

	a := auction.New(uuid.New(), body.Slug)
	if err := a.Configure(body.Config); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	resp := CreateAuctionResponse{ID: a.ID, Slug: a.Slug}
	for _, tb := range body.Teams {
		t := &auction.Team{
			ID:         uuid.New(),
			Name:       tb.Name,
			PurseValue: body.Config.PurseValue,
			Token:      uuid.NewString(),
		}
		a.Teams[t.ID] = t
		resp.Teams = append(resp.Teams, CreatedTeam{ID: t.ID, Name: t.Name, Token: t.Token})
		for _, rb := range tb.Retained {
			p := &auction.Player{ID: uuid.New(), Name: rb.Name, Role: rb.Role}
			if err := a.RetainPlayer(t.ID, p); err != nil {
				ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
				return
			}
		}
	}
	for _, pb := range body.Players {
		p := &auction.Player{ID: uuid.New(), Name: pb.Name, Role: pb.Role, Status: auction.PlayerPool}
		a.Players[p.ID] = p
		a.PoolOrder = append(a.PoolOrder, p.ID)
		resp.Players = append(resp.Players, p.ID)
	}

	if err := h.store.CreateAuction(ginCtx.Request.Context(), a); err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusCreated, resp)
}

// @Summary		List auctions
// @Description	Retrieves all auctions, newest first.
// @Tags			Auctions
// @Success		200	{array}		store.AuctionSummary
// @Failure		500	{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(ginCtx *gin.Context) {
	out, err := h.store.ListAuctions(ginCtx.Request.Context())
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Get auction state
// @Description	Returns the spectator-scoped snapshot of a single auction.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	registry.Snapshot
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(ginCtx *gin.Context) {
	snap, err := h.snapshot(ginCtx)
	if err != nil {
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, snap)
}

// @Summary		List auction teams
// @Description	Returns the public team views: purse and squad, never credentials.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{array}		registry.TeamView
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id}/teams [get]
func (h *Handler) teams(ginCtx *gin.Context) {
	snap, err := h.snapshot(ginCtx)
	if err != nil {
		ginCtx.JSON(http.StatusNotFound, &ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, snap.Teams)
}

func (h *Handler) snapshot(ginCtx *gin.Context) (registry.Snapshot, error) {
	id, err := uuid.Parse(ginCtx.Param("id"))
	if err != nil {
		return registry.Snapshot{}, errors.New("invalid auction id")
	}
	act, err := h.reg.Ensure(ginCtx.Request.Context(), id)
	if err != nil {
		return registry.Snapshot{}, err
	}
	return act.SnapshotFor(ginCtx.Request.Context(), registry.RoleSpectator, uuid.UUID{})
}
