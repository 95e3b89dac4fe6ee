package game

import "encoding/json"

// GameEventType is an enum-like type for broadcasting game events.
type GameEventType string

const (
	EventState             GameEventType = "state"
	EventPlayerJoined      GameEventType = "playerJoined"
	EventPlayerLeft        GameEventType = "playerLeft"
	EventGameStarted       GameEventType = "gameStarted"
	EventCardPlaced        GameEventType = "cardPlaced"
	EventChallengeStarted  GameEventType = "challengeStarted"
	EventBidRaised         GameEventType = "bidRaised"
	EventPlayerPassed      GameEventType = "playerPassed"
	EventRevelationStarted GameEventType = "revelationStarted"
	EventCardRevealed      GameEventType = "cardRevealed"
	EventSkullRevealed     GameEventType = "skullRevealed"
	EventRoundWon          GameEventType = "roundWon"
	EventCardLost          GameEventType = "cardLost"
	EventNewRound          GameEventType = "newRound"
	EventChooseFirstPlayer GameEventType = "chooseFirstPlayerPhase"
	EventGameOver          GameEventType = "gameOver"
	EventGameReset         GameEventType = "gameReset"
	EventTimerUpdate       GameEventType = "timerUpdate"
	EventError             GameEventType = "error"
	EventPong              GameEventType = "pong"
)

// GameEvent holds one outbound message. Payload fields are flattened next
// to "type" on the wire, matching the client protocol.
//
// Personal marks events that carry player or full-state data: those are
// fanned out one copy per connected recipient, with the recipient's own
// hand and stack (myHand/myStack) merged in by the view projector. Events
// without Personal are broadcast verbatim.
type GameEvent struct {
	Type     GameEventType
	Payload  map[string]interface{}
	Personal bool
}

// MarshalJSON flattens the payload into the top-level object.
func (ev GameEvent) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(ev.Payload)+1)
	for k, v := range ev.Payload {
		out[k] = v
	}
	out["type"] = string(ev.Type)
	return json.Marshal(out)
}

// withPersonal returns a copy of the event with recipient-private fields
// merged into a fresh payload map.
func (ev GameEvent) withPersonal(extra map[string]interface{}) GameEvent {
	merged := make(map[string]interface{}, len(ev.Payload)+len(extra))
	for k, v := range ev.Payload {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	ev.Payload = merged
	return ev
}
