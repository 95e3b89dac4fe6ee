package models

// GameAction captures a player's in-game move. The same struct is used
// for actions parsed off the wire and for actions synthesized by the
// turn-timeout supervisor, so both paths share one validation pipeline.
type GameAction struct {
	ActionType string                 `json:"action_type"`
	Payload    map[string]interface{} `json:"payload"`
}
