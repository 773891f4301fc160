package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cricketauction/internal/auction"
)

type fakeLoader struct {
	mu       sync.Mutex
	auctions map[uuid.UUID]*auction.Auction
	loads    int
}

func (f *fakeLoader) LoadAuction(_ context.Context, id uuid.UUID) (*auction.Auction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	a, ok := f.auctions[id]
	if !ok {
		return nil, errors.New("auction not found")
	}
	return a, nil
}

func TestRegistryEnsureCreatesActorOnce(t *testing.T) {
	a, _ := testAggregate(t, 1, nil)
	loader := &fakeLoader{auctions: map[uuid.UUID]*auction.Auction{a.ID: a}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := New(ctx, loader, Deps{Store: &fakeStore{}, Pub: newFakePub()})
	defer reg.Shutdown()

	first, err := reg.Ensure(ctx, a.ID)
	require.NoError(t, err)
	second, err := reg.Ensure(ctx, a.ID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, loader.loads)

	got, ok := reg.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegistryEnsureUnknownAuction(t *testing.T) {
	loader := &fakeLoader{auctions: map[uuid.UUID]*auction.Auction{}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := New(ctx, loader, Deps{Store: &fakeStore{}, Pub: newFakePub()})
	defer reg.Shutdown()

	_, err := reg.Ensure(ctx, uuid.New())
	require.Error(t, err)
	_, ok := reg.Get(uuid.New())
	assert.False(t, ok)
}

func TestRegistryRefusesFinalizedAuction(t *testing.T) {
	a, _ := testAggregate(t, 0, nil)
	a.Status = auction.StatusFinalized
	loader := &fakeLoader{auctions: map[uuid.UUID]*auction.Auction{a.ID: a}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := New(ctx, loader, Deps{Store: &fakeStore{}, Pub: newFakePub()})
	defer reg.Shutdown()

	_, err := reg.Ensure(ctx, a.ID)
	require.Error(t, err)
}

func TestRegistryRemovesActorAfterFinalize(t *testing.T) {
	a, _ := testAggregate(t, 0, nil)
	a.Status = auction.StatusCompleted
	loader := &fakeLoader{auctions: map[uuid.UUID]*auction.Auction{a.ID: a}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := New(ctx, loader, Deps{Store: &fakeStore{}, Pub: newFakePub()})
	defer reg.Shutdown()

	act, err := reg.Ensure(ctx, a.ID)
	require.NoError(t, err)

	res := send(t, act, Command{Type: CmdOpenTradeWindow, Role: RoleAdmin})
	require.Nil(t, res.Reject)
	res = send(t, act, Command{Type: CmdFinalize, Role: RoleAdmin})
	require.Nil(t, res.Reject)

	require.Eventually(t, func() bool {
		_, ok := reg.Get(a.ID)
		return !ok
	}, time.Second, 10*time.Millisecond, "finalized auction should leave the registry")
}
