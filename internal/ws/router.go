package ws

import (
	"context"
	"encoding/json"
	"sync"

	"cricketauction/internal/registry"
)

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error)

// rejectError carries a rejection code to the error envelope. Handlers wrap
// registry rejections in it; anything else surfaces as "bad_request".
type rejectError struct {
	code string
	msg  string
}

func (e *rejectError) Error() string { return e.msg }

func asReject(cmdErr error) (string, string) {
	if re, ok := cmdErr.(*rejectError); ok {
		return re.code, re.msg
	}
	return "bad_request", cmdErr.Error()
}

func fromRejection(r *registry.Rejection) error {
	return &rejectError{code: r.Code, msg: r.Message}
}

// Router keeps a map[event]handler, à-la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds an event to a strongly-typed handler.
func Register[Req any, Res any](
	r *Router,
	event string,
	h func(ctx context.Context, c *ConnContext, req Req) (Res, error),
) {
	if event == "" {
		panic("ws router: empty event")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[event] = func(ctx context.Context, c *ConnContext, body json.RawMessage) (any, error) {
		var req Req
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				return nil, err
			}
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, env Envelope) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[env.Event]
	r.mu.RUnlock()
	if !ok {
		return nil, &rejectError{code: "unknown_event", msg: "unknown event " + env.Event}
	}
	return h(ctx, c, env.Body)
}
