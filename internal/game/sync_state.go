package game

import (
	"github.com/google/uuid"

	"github.com/skullparty/skull/internal/models"
)

// Sanitized projections of game state. Everything in this file is safe
// to send to any player: hands are reduced to counts and face-down stack
// discs to kindless placeholders. A player's own hidden information is
// merged back in per recipient by fireEvent / SyncStateTo.

// SanitizedCard is one stacked disc as opponents see it: the kind is
// present only once the disc has been flipped face up.
type SanitizedCard struct {
	Revealed bool             `json:"revealed"`
	Kind     *models.CardKind `json:"kind"`
}

// SanitizedPlayer is a seat as seen by everyone at the table.
type SanitizedPlayer struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	ColorCode  string          `json:"colorCode"`
	HandCount  int             `json:"handCount"`
	Stack      []SanitizedCard `json:"stack"`
	Wins       int             `json:"wins"`
	Connected  bool            `json:"connected"`
	Eliminated bool            `json:"eliminated"`
}

// SanitizedState is the full public snapshot of a session.
type SanitizedState struct {
	Phase             Phase             `json:"phase"`
	Players           []SanitizedPlayer `json:"players"`
	HostID            uuid.UUID         `json:"hostId"`
	CurrentTurnID     uuid.UUID         `json:"currentTurnId"`
	FirstPlayerID     uuid.UUID         `json:"firstPlayerId"`
	ChallengerID      uuid.UUID         `json:"challengerId"`
	CurrentBid        int               `json:"currentBid"`
	RevealedCount     int               `json:"revealedCount"`
	TotalCards        int               `json:"totalCards"`
	PassedPlayers     []uuid.UUID       `json:"passedPlayers"`
	GameStarted       bool              `json:"gameStarted"`
	GameOver          bool              `json:"gameOver"`
	WinnerID          uuid.UUID         `json:"winnerId"`
	PlacementRound    int               `json:"placementRound"`
	TurnTimerDuration int               `json:"turnTimerSeconds"`
	TurnDeadline      *int64            `json:"turnDeadline"`
}

// sanitizePlayer projects one seat for public consumption. Assumes lock
// is held.
func (g *SkullGame) sanitizePlayer(p *models.Player) SanitizedPlayer {
	stack := make([]SanitizedCard, len(p.Stack))
	for i, c := range p.Stack {
		sc := SanitizedCard{Revealed: c.Revealed}
		if c.Revealed {
			kind := c.Kind
			sc.Kind = &kind
		}
		stack[i] = sc
	}
	return SanitizedPlayer{
		ID:         p.ID,
		Name:       p.Name,
		ColorCode:  p.ColorCode,
		HandCount:  len(p.Hand),
		Stack:      stack,
		Wins:       p.Wins,
		Connected:  p.Connected,
		Eliminated: p.IsEliminated(),
	}
}

// sanitizedPlayers projects every seat in seating order. Assumes lock is
// held.
func (g *SkullGame) sanitizedPlayers() []SanitizedPlayer {
	out := make([]SanitizedPlayer, len(g.Players))
	for i, p := range g.Players {
		out[i] = g.sanitizePlayer(p)
	}
	return out
}

// SanitizedState builds the public snapshot of the whole session.
// Assumes lock is held.
func (g *SkullGame) SanitizedState() SanitizedState {
	var deadline *int64
	if !g.TurnDeadline.IsZero() {
		ms := g.TurnDeadline.UnixMilli()
		deadline = &ms
	}
	return SanitizedState{
		Phase:             g.Phase,
		Players:           g.sanitizedPlayers(),
		HostID:            g.HostID,
		CurrentTurnID:     g.CurrentTurnID,
		FirstPlayerID:     g.FirstPlayerID,
		ChallengerID:      g.ChallengerID,
		CurrentBid:        g.CurrentBid,
		RevealedCount:     g.RevealedCount,
		TotalCards:        g.totalCardsOnTable(),
		PassedPlayers:     g.PassedPlayers,
		GameStarted:       g.GameStarted,
		GameOver:          g.GameOver,
		WinnerID:          g.WinnerID,
		PlacementRound:    g.PlacementRound,
		TurnTimerDuration: int(g.TurnTimerDuration.Seconds()),
		TurnDeadline:      deadline,
	}
}
