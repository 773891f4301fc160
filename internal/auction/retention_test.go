package auction

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func retentionAuction(t *testing.T) (*Auction, uuid.UUID) {
	t.Helper()
	a := New(uuid.New(), "league")
	teamID := uuid.New()
	a.Teams[teamID] = &Team{ID: teamID, Name: "Strikers", PurseValue: 500_000}
	cfg := testConfig()
	cfg.RetentionEnabled = true
	cfg.MaxRetentions = 2
	require.NoError(t, a.Configure(cfg))
	return a, teamID
}

func TestRetainPlayer(t *testing.T) {
	a, teamID := retentionAuction(t)

	p := &Player{ID: uuid.New(), Name: "MS Dhoni", Role: "keeper"}
	require.NoError(t, a.RetainPlayer(teamID, p))

	team := a.Teams[teamID]
	assert.Equal(t, 1, team.RetainedCount())
	assert.Equal(t, 1, team.SquadSize())
	assert.True(t, team.Squad[0].Retained)
	assert.Equal(t, int64(0), team.Squad[0].Price)
	assert.Equal(t, PlayerSold, p.Status)
	assert.Equal(t, teamID, *p.SoldTo)
	// Retention costs a slot, not purse.
	assert.Equal(t, int64(500_000), team.PurseRemaining())
}

func TestRetainPlayerCap(t *testing.T) {
	a, teamID := retentionAuction(t)

	require.NoError(t, a.RetainPlayer(teamID, &Player{ID: uuid.New()}))
	require.NoError(t, a.RetainPlayer(teamID, &Player{ID: uuid.New()}))
	err := a.RetainPlayer(teamID, &Player{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrRetentionCap)
}

func TestRetainPlayerDisabled(t *testing.T) {
	a := New(uuid.New(), "league")
	teamID := uuid.New()
	a.Teams[teamID] = &Team{ID: teamID, PurseValue: 500_000}
	require.NoError(t, a.Configure(testConfig()))

	err := a.RetainPlayer(teamID, &Player{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrRetentionDisabled)
}

func TestRetainPlayerAfterLiveRejected(t *testing.T) {
	a, teamID := retentionAuction(t)
	a.Status = StatusLive

	err := a.RetainPlayer(teamID, &Player{ID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}
