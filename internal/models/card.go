package models

// CardKind is the face of a Skull disc: flower or skull.
type CardKind string

const (
	KindFlower CardKind = "flower"
	KindSkull  CardKind = "skull"
)

// Valid reports whether k names one of the two disc faces.
func (k CardKind) Valid() bool {
	return k == KindFlower || k == KindSkull
}

// Card is a single placed disc. Kind never changes after placement;
// Revealed flips false->true during a revelation and resets only when the
// disc returns to its owner's hand at the next round.
type Card struct {
	Kind     CardKind `json:"kind"`
	Revealed bool     `json:"revealed"`
}

// StartingHand returns the four discs every player begins the game with:
// three flowers and one skull.
func StartingHand() []CardKind {
	return []CardKind{KindFlower, KindFlower, KindFlower, KindSkull}
}
