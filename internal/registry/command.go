package registry

import (
	"github.com/google/uuid"

	"cricketauction/internal/auction"
)

// Role of the connection a command arrived on.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleTeam      Role = "team"
	RoleSpectator Role = "spectator"
)

type CommandType string

const (
	// Admin lifecycle.
	CmdConfigure       CommandType = "configure"
	CmdGoLive          CommandType = "go_live"
	CmdPause           CommandType = "pause"
	CmdResume          CommandType = "resume"
	CmdComplete        CommandType = "complete"
	CmdOpenTradeWindow CommandType = "open_trade_window"
	CmdFinalize        CommandType = "finalize"
	CmdReorderPool     CommandType = "reorder_pool"
	CmdApproveTrade    CommandType = "approve_trade"
	CmdRejectTrade     CommandType = "reject_trade"

	// Team actions.
	CmdBid           CommandType = "bid"
	CmdProposeTrade  CommandType = "propose_trade"
	CmdAcceptTrade   CommandType = "accept_trade"
	CmdDeclineTrade  CommandType = "decline_trade"
	CmdWithdrawTrade CommandType = "withdraw_trade"
)

// requiredRole gates every command type; spectators never appear here.
var requiredRole = map[CommandType]Role{
	CmdConfigure:       RoleAdmin,
	CmdGoLive:          RoleAdmin,
	CmdPause:           RoleAdmin,
	CmdResume:          RoleAdmin,
	CmdComplete:        RoleAdmin,
	CmdOpenTradeWindow: RoleAdmin,
	CmdFinalize:        RoleAdmin,
	CmdReorderPool:     RoleAdmin,
	CmdApproveTrade:    RoleAdmin,
	CmdRejectTrade:     RoleAdmin,
	CmdBid:             RoleTeam,
	CmdProposeTrade:    RoleTeam,
	CmdAcceptTrade:     RoleTeam,
	CmdDeclineTrade:    RoleTeam,
	CmdWithdrawTrade:   RoleTeam,
}

// Command is the single tagged union every client action becomes. Only the
// fields the Type needs are set. Amounts never appear here: the engine
// computes them.
type Command struct {
	Type   CommandType
	Role   Role
	TeamID uuid.UUID // resolved from the team credential, zero for admin

	Config       *auction.Config // configure
	Reason       string          // pause, complete, reject_trade
	Force        bool            // complete override
	PoolOrder    []uuid.UUID     // reorder_pool
	TradeID      uuid.UUID       // trade actions
	Counterparty uuid.UUID       // propose_trade
	Offer        []uuid.UUID     // propose_trade: initiator's players
	Want         []uuid.UUID     // propose_trade: counterparty's players
	Message      string          // propose_trade note, approve_trade note

	Reply chan Result
}

// Rejection is the structured refusal returned to the initiating client only.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Delta is one applied state change: broadcast to subscribers and echoed to
// the initiator as the acknowledgement body.
type Delta struct {
	Event   string `json:"event"`
	Body    any    `json:"body"`
	Version int    `json:"version"`
}

type Result struct {
	Delta  *Delta
	Reject *Rejection
}

// Rejection codes, per the engine's error taxonomy.
const (
	CodeInvalidTransition     = "invalid_transition"
	CodeBidRejected           = "bid_rejected"
	CodeTradeValidationFailed = "trade_validation_failed"
	CodeForbidden             = "forbidden"
	CodeInconsistentExecution = "inconsistent_execution"
	CodeDegraded              = "degraded"
)

func reject(code string, err error) Result {
	return Result{Reject: &Rejection{Code: code, Message: err.Error()}}
}

// Internal actor messages.

type msg interface{ isMsg() }

type cmdMsg struct{ Cmd Command }

type timerMsg struct{ Gen uint64 }

type snapshotMsg struct {
	Role   Role
	TeamID uuid.UUID
	Reply  chan Snapshot
}

func (cmdMsg) isMsg()      {}
func (timerMsg) isMsg()    {}
func (snapshotMsg) isMsg() {}
