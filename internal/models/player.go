package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one seat at the table. Hand holds unplaced disc kinds (there
// is no face-up concept in hand); Stack is the mat pile, last element on
// top.
type Player struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	ColorCode string          `json:"colorCode"`
	Hand      []CardKind      `json:"hand"`
	Stack     []*Card         `json:"stack"`
	Wins      int             `json:"wins"`
	Connected bool            `json:"connected"`
	Conn      *websocket.Conn `json:"-"`
}

// Remaining is the player's total disc count, hand plus stack.
func (p *Player) Remaining() int {
	return len(p.Hand) + len(p.Stack)
}

// IsEliminated is derived, never stored: a player is out of the game
// exactly when no discs remain. A full game reset restores the starting
// hand and thereby un-eliminates everyone.
func (p *Player) IsEliminated() bool {
	return p.Remaining() == 0
}

// UnrevealedCount returns how many of the player's stacked discs are
// still face down.
func (p *Player) UnrevealedCount() int {
	n := 0
	for _, c := range p.Stack {
		if !c.Revealed {
			n++
		}
	}
	return n
}

// TopUnrevealedIndex scans the stack from the top (end of slice) toward
// the bottom and returns the index of the first face-down disc, or -1.
func (p *Player) TopUnrevealedIndex() int {
	for i := len(p.Stack) - 1; i >= 0; i-- {
		if !p.Stack[i].Revealed {
			return i
		}
	}
	return -1
}
