package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cricketauction/internal/auction"
)

// Loader fetches an auction aggregate from durable storage when its actor is
// created on first use.
type Loader interface {
	LoadAuction(ctx context.Context, id uuid.UUID) (*auction.Auction, error)
}

// Registry supervises the per-auction actors: create-on-first-use,
// teardown-on-finalize. There is no other holder of actor references.
type Registry struct {
	mu     sync.Mutex
	actors map[uuid.UUID]*Actor

	loader Loader
	deps   Deps
	ctx    context.Context
}

func New(ctx context.Context, loader Loader, deps Deps) *Registry {
	return &Registry{
		actors: make(map[uuid.UUID]*Actor),
		loader: loader,
		deps:   deps,
		ctx:    ctx,
	}
}

// Ensure returns the running actor for the auction, loading the aggregate
// and spawning the actor if this is the first use.
func (r *Registry) Ensure(ctx context.Context, id uuid.UUID) (*Actor, error) {
	r.mu.Lock()
	if act, ok := r.actors[id]; ok {
		r.mu.Unlock()
		return act, nil
	}
	r.mu.Unlock()

	// Load outside the lock; a concurrent Ensure for the same id may race to
	// insert, the loser's actor is discarded before anyone saw it.
	a, err := r.loader.LoadAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load auction %s: %w", id, err)
	}
	if a.Status == auction.StatusFinalized {
		return nil, fmt.Errorf("auction %s is finalized", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if act, ok := r.actors[id]; ok {
		return act, nil
	}
	act := newActor(r.ctx, a, r.deps, r.remove)
	r.actors[id] = act
	zap.L().Info("auction actor started", zap.String("auction_id", id.String()))
	return act, nil
}

// Get returns an already-running actor without creating one.
func (r *Registry) Get(id uuid.UUID) (*Actor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	act, ok := r.actors[id]
	return act, ok
}

// remove is wired as the actor's finalize hook.
func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	act, ok := r.actors[id]
	delete(r.actors, id)
	r.mu.Unlock()
	if ok {
		act.Stop()
		zap.L().Info("auction actor torn down", zap.String("auction_id", id.String()))
	}
}

// Shutdown stops every actor; used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for _, act := range r.actors {
		actors = append(actors, act)
	}
	r.actors = make(map[uuid.UUID]*Actor)
	r.mu.Unlock()
	for _, act := range actors {
		act.Stop()
	}
}
