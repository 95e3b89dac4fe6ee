package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skullparty/skull/internal/models"
)

func TestNextActivePlayerSkipsEliminated(t *testing.T) {
	g, _, ids := setupTestGame(t, 4)

	g.Mu.Lock()
	defer g.Mu.Unlock()

	next := g.nextActivePlayer(ids[0])
	require.NotNil(t, next)
	assert.Equal(t, ids[1], next.ID)

	g.playerByID(ids[1]).Hand = nil
	next = g.nextActivePlayer(ids[0])
	require.NotNil(t, next)
	assert.Equal(t, ids[2], next.ID)

	// Wraps around the table.
	next = g.nextActivePlayer(ids[3])
	assert.Equal(t, ids[0], next.ID)
}

func TestNextBiddingPlayerFallsBackToChallenger(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)

	g.Mu.Lock()
	defer g.Mu.Unlock()

	g.ChallengerID = ids[0]
	g.PassedPlayers = append(g.PassedPlayers, ids[1], ids[2])

	next := g.nextBiddingPlayer(ids[2])
	require.NotNil(t, next)
	assert.Equal(t, ids[0], next.ID, "everyone else passed, turn returns to the challenger")
	assert.True(t, g.biddingComplete())
}

func TestBiddingCompleteCountsActiveNonPassed(t *testing.T) {
	g, _, ids := setupTestGame(t, 4)

	g.Mu.Lock()
	defer g.Mu.Unlock()

	g.ChallengerID = ids[0]
	assert.False(t, g.biddingComplete())

	g.PassedPlayers = append(g.PassedPlayers, ids[1], ids[2])
	assert.False(t, g.biddingComplete())

	// The last holdout gets eliminated instead of passing.
	g.playerByID(ids[3]).Hand = nil
	assert.True(t, g.biddingComplete())
}

func TestTotalCardsOnTableExcludesEliminated(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)

	g.Mu.Lock()
	defer g.Mu.Unlock()

	for _, p := range g.Players {
		p.Stack = append(p.Stack, &models.Card{Kind: models.KindFlower})
	}
	assert.Equal(t, 3, g.totalCardsOnTable())

	p := g.playerByID(ids[2])
	p.Hand = nil
	p.Stack = nil
	assert.Equal(t, 2, g.totalCardsOnTable())
}
