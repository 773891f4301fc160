package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cricketauction/internal/registry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 20 * time.Second // must be < pongWait

	maxFrameSize = 4096
)

// TeamResolver maps a bidding credential onto its team within one auction.
type TeamResolver interface {
	TeamByToken(ctx context.Context, auctionID uuid.UUID, token string) (uuid.UUID, error)
}

type WsServer struct {
	hub      *Hub
	subMgr   *subscriptionManager
	router   *Router
	reg      *registry.Registry
	teams    TeamResolver
	adminKey string
}

func NewWsServer(h *Hub, rdc *redis.Client, reg *registry.Registry, teams TeamResolver, adminKey string) *WsServer {
	router := NewRouter()
	srv := &WsServer{
		hub:      h,
		subMgr:   newSubscriptionManager(rdc, h),
		router:   router,
		reg:      reg,
		teams:    teams,
		adminKey: adminKey,
	}
	srv.registerHandlers() // ← all WS endpoints configured here
	return srv
}

var errInvalidCredential = errors.New("invalid credential")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true }, // dev-only
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	auctionID, err := uuid.Parse(ginCtx.Query("auction_id"))
	if err != nil {
		ginCtx.JSON(http.StatusBadRequest, gin.H{"error": "auction_id is required"})
		return
	}

	role, teamID, err := s.resolveRole(ginCtx, auctionID)
	if err != nil {
		ginCtx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	act, err := s.reg.Ensure(ginCtx.Request.Context(), auctionID)
	if err != nil {
		ginCtx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	rawConn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.upgrade", zap.Error(err))
		return
	}
	rawConn.SetReadLimit(maxFrameSize)

	// ─────────────────── Client joined ────────────────────────
	wsConn := &clientConn{rawConn: rawConn}
	id := auctionID.String()
	s.hub.Join(id, wsConn)
	s.subMgr.Subscribe(id) // may be a no-op (already subscribed)

	// Full snapshot first, role-scoped. Reconnecting clients resynchronize
	// from this, never from a delta replay.
	if err := s.pushSnapshot(ginCtx.Request.Context(), act, role, teamID, wsConn); err != nil {
		zap.L().Warn("ws.snapshot", zap.Error(err))
	}

	cc := &ConnContext{AuctionID: auctionID, Role: role, TeamID: teamID, Server: s}
	go s.reader(cc, wsConn)
	go s.pinger(wsConn)
}

// resolveRole picks the connection's role from its credentials: the admin key
// wins, then a team token, everything else spectates. A bad credential is an
// error rather than a silent downgrade.
func (s *WsServer) resolveRole(ginCtx *gin.Context, auctionID uuid.UUID) (registry.Role, uuid.UUID, error) {
	if key := credential(ginCtx, "admin_key", "X-Admin-Key"); key != "" {
		if s.adminKey == "" || key != s.adminKey {
			return "", uuid.UUID{}, errInvalidCredential
		}
		return registry.RoleAdmin, uuid.UUID{}, nil
	}
	if token := credential(ginCtx, "team_token", "X-Team-Token"); token != "" {
		teamID, err := s.teams.TeamByToken(ginCtx.Request.Context(), auctionID, token)
		if err != nil {
			return "", uuid.UUID{}, errInvalidCredential
		}
		return registry.RoleTeam, teamID, nil
	}
	return registry.RoleSpectator, uuid.UUID{}, nil
}

func credential(ginCtx *gin.Context, query, header string) string {
	if v := ginCtx.Query(query); v != "" {
		return v
	}
	return ginCtx.GetHeader(header)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 admin lifecycle ------------------------------------------------------
	Register(s.router, "auction/configure",
		func(ctx context.Context, cc *ConnContext, req ConfigureRequest) (AckBody, error) {
			cfg := req.Config
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdConfigure, Config: &cfg})
		})
	Register(s.router, "auction/go_live",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdGoLive})
		})
	Register(s.router, "auction/pause",
		func(ctx context.Context, cc *ConnContext, req PauseRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdPause, Reason: req.Reason})
		})
	Register(s.router, "auction/resume",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdResume})
		})
	Register(s.router, "auction/complete",
		func(ctx context.Context, cc *ConnContext, req CompleteRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdComplete, Force: req.Force, Reason: req.Reason})
		})
	Register(s.router, "auction/open_trade_window",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdOpenTradeWindow})
		})
	Register(s.router, "auction/finalize",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdFinalize})
		})
	Register(s.router, "pool/reorder",
		func(ctx context.Context, cc *ConnContext, req ReorderRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdReorderPool, PoolOrder: req.Order})
		})

	// 🔹 bidding --------------------------------------------------------------
	// No amount in the request: the engine derives the next amount from the
	// increment policy, so a slow client can never bid a stale number.
	Register(s.router, "round/bid",
		func(ctx context.Context, cc *ConnContext, _ struct{}) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdBid})
		})

	// 🔹 trade window ---------------------------------------------------------
	Register(s.router, "trade/propose",
		func(ctx context.Context, cc *ConnContext, req TradeProposeRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{
				Type:         registry.CmdProposeTrade,
				Counterparty: req.Counterparty,
				Offer:        req.Offer,
				Want:         req.Want,
				Message:      req.Message,
			})
		})
	Register(s.router, "trade/accept",
		func(ctx context.Context, cc *ConnContext, req TradeActionRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdAcceptTrade, TradeID: req.TradeID})
		})
	Register(s.router, "trade/decline",
		func(ctx context.Context, cc *ConnContext, req TradeActionRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdDeclineTrade, TradeID: req.TradeID})
		})
	Register(s.router, "trade/withdraw",
		func(ctx context.Context, cc *ConnContext, req TradeActionRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdWithdrawTrade, TradeID: req.TradeID})
		})
	Register(s.router, "trade/approve",
		func(ctx context.Context, cc *ConnContext, req TradeDecisionRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdApproveTrade, TradeID: req.TradeID, Message: req.Note})
		})
	Register(s.router, "trade/reject",
		func(ctx context.Context, cc *ConnContext, req TradeDecisionRequest) (AckBody, error) {
			return s.exec(ctx, cc, registry.Command{Type: registry.CmdRejectTrade, TradeID: req.TradeID, Reason: req.Note})
		})
}

// exec routes a command to the auction's actor and folds the result into the
// ack / error envelope contract.
func (s *WsServer) exec(ctx context.Context, cc *ConnContext, cmd registry.Command) (AckBody, error) {
	act, ok := s.reg.Get(cc.AuctionID)
	if !ok {
		return AckBody{}, &rejectError{code: registry.CodeInvalidTransition, msg: "auction is not loaded"}
	}
	cmd.Role = cc.Role
	cmd.TeamID = cc.TeamID
	cmd.Reply = make(chan registry.Result, 1)
	act.Send(cmd)

	select {
	case res := <-cmd.Reply:
		if res.Reject != nil {
			return AckBody{}, fromRejection(res.Reject)
		}
		return AckBody{Version: res.Delta.Version, Body: res.Delta.Body}, nil
	case <-ctx.Done():
		return AckBody{}, ctx.Err()
	}
}

func (s *WsServer) pushSnapshot(ctx context.Context, act *registry.Actor, role registry.Role, teamID uuid.UUID, conn *clientConn) error {
	ctx, cancel := context.WithTimeout(ctx, 4*time.Second)
	defer cancel()

	snap, err := act.SnapshotFor(ctx, role, teamID)
	if err != nil {
		return err
	}
	return conn.writeJSON(gin.H{
		"event": "auction/snapshot",
		"body":  snap,
	})
}

func (s *WsServer) reader(cc *ConnContext, conn *clientConn) {
	id := cc.AuctionID.String()
	defer func() {
		s.hub.Leave(id, conn)
		s.subMgr.Unsubscribe(id)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.rawConn.ReadJSON(&env); err != nil {
			return // client closed or errored
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1900*time.Millisecond)
		res, err := s.router.dispatch(ctx, cc, env)
		cancel()

		// ---- rejection -> {"event":"error", "body":{...}} -----------
		if err != nil {
			code, msg := asReject(err)
			_ = conn.writeJSON(map[string]any{
				"event": "error",
				"body":  ErrorBody{Code: code, Error: msg},
			})
			continue
		}

		// ---- success -> {"event":"<evt>-ack", "body":{...}} --------
		reply := map[string]any{"event": env.Event + "-ack"}
		if res != nil {
			reply["body"] = res
		}
		_ = conn.writeJSON(reply)
	}
}

func (s *WsServer) pinger(conn *clientConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.write(websocket.PingMessage, nil); err != nil {
			_ = conn.rawConn.Close()
			return
		}
	}
}
