package game

import (
	"github.com/google/uuid"

	"github.com/skullparty/skull/internal/models"
)

// Turn resolution helpers. All of these assume the game lock is held and
// operate on the fixed seating order in g.Players.

// playerByID returns the player with the given id, or nil.
func (g *SkullGame) playerByID(id uuid.UUID) *models.Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// playerIndex returns the seat index for the given id, or -1.
func (g *SkullGame) playerIndex(id uuid.UUID) int {
	for i, p := range g.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// activePlayers returns all non-eliminated players in seating order.
func (g *SkullGame) activePlayers() []*models.Player {
	var active []*models.Player
	for _, p := range g.Players {
		if !p.IsEliminated() {
			active = append(active, p)
		}
	}
	return active
}

// firstActivePlayer returns the first non-eliminated player in seating
// order, or nil if everyone is out.
func (g *SkullGame) firstActivePlayer() *models.Player {
	for _, p := range g.Players {
		if !p.IsEliminated() {
			return p
		}
	}
	return nil
}

// nextActivePlayer scans the seating order cyclically starting after
// fromID and returns the first non-eliminated player. Falls back to the
// starting player if no other active player exists.
func (g *SkullGame) nextActivePlayer(fromID uuid.UUID) *models.Player {
	cur := g.playerIndex(fromID)
	if cur == -1 || len(g.Players) == 0 {
		return nil
	}
	for i := 1; i <= len(g.Players); i++ {
		next := g.Players[(cur+i)%len(g.Players)]
		if !next.IsEliminated() {
			return next
		}
	}
	return g.Players[cur]
}

// nextBiddingPlayer is nextActivePlayer restricted to players who have
// not passed. When everyone else has passed the scan finds nobody new and
// the current challenger is returned, which is exactly the player who
// should hold the turn when bidding completes.
func (g *SkullGame) nextBiddingPlayer(fromID uuid.UUID) *models.Player {
	cur := g.playerIndex(fromID)
	if cur == -1 || len(g.Players) == 0 {
		return nil
	}
	for i := 1; i <= len(g.Players); i++ {
		next := g.Players[(cur+i)%len(g.Players)]
		if !next.IsEliminated() && !g.hasPassed(next.ID) {
			return next
		}
	}
	return g.playerByID(g.ChallengerID)
}

// hasPassed reports whether the player declined to raise during the
// current challenge.
func (g *SkullGame) hasPassed(id uuid.UUID) bool {
	for _, pid := range g.PassedPlayers {
		if pid == id {
			return true
		}
	}
	return false
}

// biddingComplete is true once exactly one active player has not passed.
// By construction that player is the current challenger.
func (g *SkullGame) biddingComplete() bool {
	remaining := 0
	for _, p := range g.Players {
		if !p.IsEliminated() && !g.hasPassed(p.ID) {
			remaining++
		}
	}
	return remaining == 1
}

// totalCardsOnTable sums the stacked discs of all active players. It is
// the upper bound for any bid.
func (g *SkullGame) totalCardsOnTable() int {
	total := 0
	for _, p := range g.Players {
		if !p.IsEliminated() {
			total += len(p.Stack)
		}
	}
	return total
}
