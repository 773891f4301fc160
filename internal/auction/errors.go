package auction

import "errors"

// Lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConfigIncomplete  = errors.New("configuration incomplete")
	ErrPoolNotExhausted  = errors.New("pool not exhausted")
	ErrUnknownTeam       = errors.New("unknown team")
	ErrUnknownPlayer     = errors.New("unknown player")
)

// Bid rejection reasons; all map to the bid_rejected code outward.
var (
	ErrRoundNotOpen      = errors.New("round not open for bidding")
	ErrSelfOutbid        = errors.New("team already holds the current bid")
	ErrInsufficientPurse = errors.New("insufficient purse for next bid")
	ErrSquadFull         = errors.New("squad already at maximum size")
)

// Trade validation failures; all map to trade_validation_failed outward.
var (
	ErrTradeWindowClosed  = errors.New("trade window closed")
	ErrTradeSelf          = errors.New("cannot trade with own team")
	ErrTradeOwnership     = errors.New("player not owned by claimed team")
	ErrTradeCapExceeded   = errors.New("executed trade cap exceeded")
	ErrTradeNotFound      = errors.New("trade not found")
	ErrTradeWrongState    = errors.New("trade not in a state that allows this action")
	ErrTradeWrongTeam     = errors.New("team is not a party to this trade")
	ErrTradeEmpty         = errors.New("trade must move at least one player")
	ErrTradePurse         = errors.New("settlement exceeds paying team's purse")
	ErrTradeSquadOverflow = errors.New("trade would push a squad past its size limits")
)

// ErrInconsistentExecution marks a torn monetary mutation. It is fatal for
// the auction: the actor halts and an operator has to intervene. Never retried.
var ErrInconsistentExecution = errors.New("inconsistent execution detected")
