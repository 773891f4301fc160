package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxBidReservesMinimumSquad(t *testing.T) {
	cfg := Config{BasePrice: 10_000, MinSquadSize: 4, MaxSquadSize: 8}
	team := &Team{PurseValue: 100_000}

	// Empty squad: 3 more slots must stay affordable after this buy.
	assert.Equal(t, int64(100_000-3*10_000), MaxBid(team, cfg))

	team.Squad = []SquadEntry{{}, {}, {}}
	assert.Equal(t, int64(100_000), MaxBid(team, cfg))

	// Past the minimum the whole purse is in play.
	team.Squad = append(team.Squad, SquadEntry{}, SquadEntry{})
	assert.Equal(t, int64(100_000), MaxBid(team, cfg))
}

func TestCanBid(t *testing.T) {
	cfg := Config{BasePrice: 10_000, MinSquadSize: 2, MaxSquadSize: 3}

	t.Run("accepts within purse", func(t *testing.T) {
		team := &Team{PurseValue: 50_000}
		assert.NoError(t, CanBid(team, cfg, 40_000))
	})

	t.Run("rejects over max bid", func(t *testing.T) {
		team := &Team{PurseValue: 50_000}
		assert.ErrorIs(t, CanBid(team, cfg, 41_000), ErrInsufficientPurse)
	})

	t.Run("rejects full squad", func(t *testing.T) {
		team := &Team{PurseValue: 500_000, Squad: []SquadEntry{{}, {}, {}}}
		assert.ErrorIs(t, CanBid(team, cfg, 10_000), ErrSquadFull)
	})

	t.Run("spent purse counts", func(t *testing.T) {
		team := &Team{PurseValue: 50_000, Spent: 45_000, Squad: []SquadEntry{{}}}
		assert.ErrorIs(t, CanBid(team, cfg, 10_000), ErrInsufficientPurse)
	})
}
