package ws

import (
	"github.com/google/uuid"

	"cricketauction/internal/registry"
)

// ConnContext is the per-connection identity resolved once at upgrade time.
// The role never changes for the lifetime of the socket; a client that wants
// a different role reconnects with different credentials.
type ConnContext struct {
	AuctionID uuid.UUID
	Role      registry.Role
	TeamID    uuid.UUID // zero unless Role == RoleTeam
	Server    *WsServer
}
