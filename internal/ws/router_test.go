package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cricketauction/internal/registry"
)

func TestRouterDispatchTyped(t *testing.T) {
	r := NewRouter()
	Register(r, "trade/accept",
		func(_ context.Context, cc *ConnContext, req TradeActionRequest) (AckBody, error) {
			assert.Equal(t, registry.RoleTeam, cc.Role)
			return AckBody{Version: 9, Body: req.TradeID}, nil
		})

	tradeID := uuid.New()
	body, _ := json.Marshal(TradeActionRequest{TradeID: tradeID})
	cc := &ConnContext{Role: registry.RoleTeam}

	res, err := r.dispatch(context.Background(), cc, Envelope{Event: "trade/accept", Body: body})
	require.NoError(t, err)
	ack := res.(AckBody)
	assert.Equal(t, 9, ack.Version)
	assert.Equal(t, tradeID, ack.Body)
}

func TestRouterUnknownEvent(t *testing.T) {
	r := NewRouter()
	_, err := r.dispatch(context.Background(), &ConnContext{}, Envelope{Event: "nope"})
	require.Error(t, err)
	code, _ := asReject(err)
	assert.Equal(t, "unknown_event", code)
}

func TestRouterMalformedBody(t *testing.T) {
	r := NewRouter()
	Register(r, "pool/reorder",
		func(_ context.Context, _ *ConnContext, req ReorderRequest) (AckBody, error) {
			t.Fatal("handler must not run on malformed body")
			return AckBody{}, nil
		})

	_, err := r.dispatch(context.Background(), &ConnContext{},
		Envelope{Event: "pool/reorder", Body: json.RawMessage(`{"order":"not-a-list"}`)})
	require.Error(t, err)
	code, _ := asReject(err)
	assert.Equal(t, "bad_request", code)
}

func TestRejectionMapsToErrorBody(t *testing.T) {
	err := fromRejection(&registry.Rejection{Code: registry.CodeBidRejected, Message: "purse exhausted"})
	code, msg := asReject(err)
	assert.Equal(t, "bid_rejected", code)
	assert.Equal(t, "purse exhausted", msg)
}
