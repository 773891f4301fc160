package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"cricketauction/internal/auction"
)

// Envelope wraps every WS frame, both directions.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "round/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// ConfigureRequest is the body for "auction/configure".
type ConfigureRequest struct {
	Config auction.Config `json:"config"`
}

// PauseRequest carries the operator's reason, broadcast verbatim.
type PauseRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CompleteRequest ends the live phase; Force skips the pool-exhausted check.
type CompleteRequest struct {
	Force  bool   `json:"force,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ReorderRequest is the body for "pool/reorder". Order must be a permutation
// of the players still waiting.
type ReorderRequest struct {
	Order []uuid.UUID `json:"order" validate:"required,min=1"`
}

// TradeProposeRequest is the body for "trade/propose".
type TradeProposeRequest struct {
	Counterparty uuid.UUID   `json:"counterparty" validate:"required"`
	Offer        []uuid.UUID `json:"offer"        validate:"required,min=1"`
	Want         []uuid.UUID `json:"want"         validate:"required,min=1"`
	Message      string      `json:"message,omitempty"`
}

// TradeActionRequest covers accept / decline / withdraw.
type TradeActionRequest struct {
	TradeID uuid.UUID `json:"trade_id" validate:"required"`
}

// TradeDecisionRequest covers admin approve / reject, with an optional note.
type TradeDecisionRequest struct {
	TradeID uuid.UUID `json:"trade_id" validate:"required"`
	Note    string    `json:"note,omitempty"`
}

// AckBody confirms an applied command. Version is the delta version the
// command produced; clients use it to spot missed events.
type AckBody struct {
	Version int `json:"version"`
	Body    any `json:"body,omitempty"`
}

// ErrorBody is returned for rejected commands.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
