package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/skullparty/skull/internal/cache"
	"github.com/skullparty/skull/internal/models"
)

// Phase is the current stage of the six-phase round protocol.
type Phase string

const (
	PhaseLobby             Phase = "LOBBY"
	PhasePlacement         Phase = "PLACEMENT"
	PhaseChallenge         Phase = "CHALLENGE"
	PhaseRevelation        Phase = "REVELATION"
	PhaseCardLoss          Phase = "CARD_LOSS"
	PhaseChooseFirstPlayer Phase = "CHOOSE_FIRST_PLAYER"
)

// colorCodes are the six fixed display-color slots, assigned in join order.
var colorCodes = [6]string{"c01", "c02", "c03", "c04", "c05", "c06"}

const maxPlayers = 6
const minPlayers = 3

// ErrRoomNotFound signals a join against a room nobody created. The
// transport treats it as fatal for the connection, unlike rule errors.
var ErrRoomNotFound = errors.New("Room not found. Please check the room code and try again.")

// OnGameEndFunc handles a finished game (recording results, etc.).
type OnGameEndFunc func(gameID uuid.UUID, winnerID uuid.UUID, reason string)

// SkullGame holds the entire state for one game session in memory. It is
// a single-writer aggregate: every exported Handle* method assumes the
// caller holds Mu, so actions are applied strictly one at a time. Timer
// and pacing callbacks acquire Mu themselves and re-validate against the
// epoch/turn counters before touching anything.
type SkullGame struct {
	ID   uuid.UUID
	Code string

	Players []*models.Player

	Phase             Phase
	HostID            uuid.UUID
	CurrentTurnID     uuid.UUID
	FirstPlayerID     uuid.UUID
	ChallengerID      uuid.UUID
	CurrentBid        int
	RevealedCount     int
	RevealedSkull     bool
	SkullOwnerID      uuid.UUID
	PassedPlayers     []uuid.UUID
	GameStarted       bool
	GameOver          bool
	WinnerID          uuid.UUID
	PlacementRound    int
	TurnTimerDuration time.Duration
	TurnDeadline      time.Time

	cardLossProcessed bool

	// revealPending / roundPending are set while a display-pacing
	// continuation is scheduled; player actions arriving in that window
	// are stale and get dropped.
	revealPending bool
	roundPending  bool

	// epoch invalidates scheduled continuations and timers across resets
	// and game end; turnSeq invalidates stale per-turn timers.
	epoch   int
	turnSeq int

	turnTimer   *time.Timer
	actionIndex int

	Mu  sync.Mutex
	rng *rand.Rand

	// Pacing delays, overridable in tests.
	revealDelay   time.Duration
	roundWinDelay time.Duration
	newRoundDelay time.Duration

	// BroadcastFn sends an event to all connected players verbatim.
	BroadcastFn func(ev GameEvent)

	// BroadcastToPlayerFn sends an event to a single player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev GameEvent)

	// OnGameEnd is invoked once when the game reaches a terminal state.
	OnGameEnd OnGameEndFunc
}

// NewSkullGame builds an empty session in the LOBBY phase.
func NewSkullGame() *SkullGame {
	id, _ := uuid.NewRandom()
	return &SkullGame{
		ID:             id,
		Phase:          PhaseLobby,
		PlacementRound: 1,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		revealDelay:    time.Second,
		roundWinDelay:  3 * time.Second,
		newRoundDelay:  2 * time.Second,
	}
}

// === LOBBY ===

// HandleJoin admits a player into the lobby or re-registers a returning
// one. Assumes lock is held.
func (g *SkullGame) HandleJoin(playerID uuid.UUID, name string, isCreator bool, conn *websocket.Conn) error {
	if g.GameStarted {
		return errors.New("Game already started")
	}

	existing := g.playerByID(playerID)
	if existing == nil && len(g.Players) >= maxPlayers {
		return errors.New("Room is full (max 6 players)")
	}

	// A joiner who did not create the room and finds it empty typed a
	// code for a room that never existed.
	if existing == nil && len(g.Players) == 0 && !isCreator {
		return ErrRoomNotFound
	}

	if existing == nil {
		p := &models.Player{
			ID:        playerID,
			Name:      name,
			ColorCode: colorCodes[len(g.Players)],
			Hand:      models.StartingHand(),
			Stack:     nil,
			Connected: true,
			Conn:      conn,
		}
		g.Players = append(g.Players, p)
	} else {
		existing.Connected = true
		existing.Conn = conn
	}

	if len(g.Players) == 1 {
		g.HostID = playerID
	}

	g.logAction(playerID, "join", map[string]interface{}{"name": name})
	g.fireEvent(GameEvent{
		Type: EventPlayerJoined,
		Payload: map[string]interface{}{
			"player":  g.sanitizePlayer(g.playerByID(playerID)),
			"hostId":  g.HostID,
			"players": g.sanitizedPlayers(),
		},
		Personal: true,
	})
	return nil
}

// HandleLeave removes a lobby player, or marks a mid-game player as
// disconnected while keeping their seat. Assumes lock is held.
func (g *SkullGame) HandleLeave(playerID uuid.UUID) {
	idx := g.playerIndex(playerID)
	if idx == -1 {
		return
	}

	if !g.GameStarted {
		g.Players = append(g.Players[:idx], g.Players[idx+1:]...)
	} else {
		g.Players[idx].Connected = false
		g.Players[idx].Conn = nil
	}

	// Transfer host to the next remaining player if needed.
	if g.HostID == playerID {
		for _, p := range g.Players {
			if p.ID != playerID && (!g.GameStarted || p.Connected) {
				g.HostID = p.ID
				break
			}
		}
	}

	g.logAction(playerID, "leave", nil)
	g.fireEvent(GameEvent{
		Type: EventPlayerLeft,
		Payload: map[string]interface{}{
			"playerId": playerID,
			"hostId":   g.HostID,
			"players":  g.sanitizedPlayers(),
		},
		Personal: true,
	})
}

// HandleReconnect re-attaches a returning connection mid-game and sends
// them a full personalized state sync. Assumes lock is held.
func (g *SkullGame) HandleReconnect(playerID uuid.UUID, conn *websocket.Conn) {
	p := g.playerByID(playerID)
	if p == nil {
		return
	}
	p.Connected = true
	p.Conn = conn
	g.logAction(playerID, "reconnect", nil)
	g.SyncStateTo(playerID)
}

// HandleStart begins the game: host only, at least three players.
// Assumes lock is held.
func (g *SkullGame) HandleStart(playerID uuid.UUID, timerSeconds int) error {
	if playerID != g.HostID {
		return nil
	}
	if g.GameStarted {
		return nil
	}
	if len(g.Players) < minPlayers {
		return errors.New("Need at least 3 players")
	}

	g.GameStarted = true
	if timerSeconds > 0 {
		g.TurnTimerDuration = time.Duration(timerSeconds) * time.Second
	} else {
		g.TurnTimerDuration = 0
	}

	active := g.activePlayers()
	g.FirstPlayerID = active[g.rng.Intn(len(active))].ID

	g.logAction(playerID, "start", map[string]interface{}{"timerSeconds": timerSeconds})
	g.startNewRound()

	g.fireEvent(GameEvent{
		Type:     EventGameStarted,
		Payload:  map[string]interface{}{"state": g.SanitizedState()},
		Personal: true,
	})
	return nil
}

// startNewRound resets the per-round state, returns every active
// player's stack to their hand and hands the turn to the first player.
// Assumes lock is held.
func (g *SkullGame) startNewRound() {
	g.Phase = PhasePlacement
	g.CurrentBid = 0
	g.RevealedCount = 0
	g.RevealedSkull = false
	g.SkullOwnerID = uuid.Nil
	g.PassedPlayers = nil
	g.ChallengerID = uuid.Nil
	g.PlacementRound = 1
	g.cardLossProcessed = false
	g.revealPending = false
	g.roundPending = false

	for _, p := range g.Players {
		if p.IsEliminated() {
			continue
		}
		for _, c := range p.Stack {
			p.Hand = append(p.Hand, c.Kind)
		}
		p.Stack = nil
	}

	first := g.playerByID(g.FirstPlayerID)
	if first == nil || first.IsEliminated() {
		if fp := g.firstActivePlayer(); fp != nil {
			g.FirstPlayerID = fp.ID
		}
	}
	g.CurrentTurnID = g.FirstPlayerID

	g.startTurnTimer()
}

// === ACTION ROUTER ===

// HandlePlayerAction is the single entry point for in-game actions, used
// both by the transport and by the timeout supervisor so there is exactly
// one code path enforcing legality. A non-nil error is a user-facing
// rejection for the sender; state is untouched on any error. Assumes
// lock is held.
func (g *SkullGame) HandlePlayerAction(playerID uuid.UUID, action models.GameAction) error {
	if g.GameOver {
		return nil
	}

	switch action.ActionType {
	case "placeCard":
		return g.handlePlaceCard(playerID, action.Payload)
	case "challenge":
		return g.handleChallenge(playerID, action.Payload)
	case "raise":
		return g.handleRaise(playerID, action.Payload)
	case "pass":
		return g.handlePass(playerID)
	case "reveal":
		return g.handleReveal(playerID, action.Payload)
	case "selectCardLoss":
		return g.handleSelectCardLoss(playerID, action.Payload)
	case "chooseFirstPlayer":
		return g.handleChooseFirstPlayer(playerID, action.Payload)
	default:
		return fmt.Errorf("Unknown action type: %s", action.ActionType)
	}
}

// === PLACEMENT ===

func (g *SkullGame) handlePlaceCard(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlacement || g.CurrentTurnID != playerID {
		return nil
	}
	player := g.playerByID(playerID)
	if player == nil || player.IsEliminated() {
		return nil
	}

	kind := models.CardKind(payloadString(payload, "cardType"))
	if !kind.Valid() {
		return nil
	}
	handIdx := -1
	for i, k := range player.Hand {
		if k == kind {
			handIdx = i
			break
		}
	}
	if handIdx == -1 {
		return nil
	}

	player.Hand = append(player.Hand[:handIdx], player.Hand[handIdx+1:]...)
	player.Stack = append(player.Stack, &models.Card{Kind: kind})

	allPlacedOnce := true
	for _, p := range g.activePlayers() {
		if len(p.Stack) == 0 {
			allPlacedOnce = false
			break
		}
	}

	if next := g.nextActivePlayer(playerID); next != nil {
		g.CurrentTurnID = next.ID
	}

	// The mandatory first lap ends once everyone has placed; the turn
	// returns to the first player, who may now add or challenge.
	if allPlacedOnce && g.PlacementRound == 1 {
		g.PlacementRound = 2
		g.CurrentTurnID = g.FirstPlayerID
	}

	g.logAction(playerID, "placeCard", nil) // never log the kind
	g.fireEvent(GameEvent{
		Type: EventCardPlaced,
		Payload: map[string]interface{}{
			"playerId":       playerID,
			"stackSize":      len(player.Stack),
			"currentTurnId":  g.CurrentTurnID,
			"phase":          g.Phase,
			"placementRound": g.PlacementRound,
			"players":        g.sanitizedPlayers(),
			// UI hint only; challenge stays legal regardless.
			"mustChallenge": g.PlacementRound >= 2 && g.CurrentTurnID == playerID && len(player.Hand) == 0,
		},
		Personal: true,
	})

	g.startTurnTimer()
	return nil
}

func (g *SkullGame) handleChallenge(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhasePlacement || g.CurrentTurnID != playerID {
		return nil
	}
	player := g.playerByID(playerID)
	if player == nil || player.IsEliminated() {
		return nil
	}

	if len(player.Stack) == 0 {
		return errors.New("You must place at least 1 disc before challenging")
	}
	for _, p := range g.activePlayers() {
		if len(p.Stack) == 0 {
			return errors.New("All players must place at least 1 disc first")
		}
	}

	bid := payloadInt(payload, "bid")
	if bid < 1 {
		return errors.New("You must specify a bid amount")
	}
	total := g.totalCardsOnTable()
	if bid > total {
		return errors.New("Invalid bid")
	}

	g.Phase = PhaseChallenge
	g.ChallengerID = playerID
	g.CurrentBid = bid
	g.PassedPlayers = nil
	if next := g.nextActivePlayer(playerID); next != nil {
		g.CurrentTurnID = next.ID
	}

	g.logAction(playerID, "challenge", map[string]interface{}{"bid": bid})
	g.fireEvent(GameEvent{
		Type: EventChallengeStarted,
		Payload: map[string]interface{}{
			"challengerId":  playerID,
			"bid":           bid,
			"currentTurnId": g.CurrentTurnID,
			"phase":         g.Phase,
			"totalCards":    total,
		},
	})

	if bid >= total {
		// Table maximum: nobody can raise, go straight to revelation
		// after a short display delay.
		g.scheduleRevelation()
	} else {
		g.startTurnTimer()
	}
	return nil
}

// === CHALLENGE ===

func (g *SkullGame) handleRaise(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseChallenge || g.revealPending || g.CurrentTurnID != playerID {
		return nil
	}
	if g.hasPassed(playerID) {
		return nil
	}

	bid := payloadInt(payload, "bid")
	total := g.totalCardsOnTable()
	if bid <= g.CurrentBid || bid > total {
		return errors.New("Bid must be higher than current bid")
	}

	g.CurrentBid = bid
	g.ChallengerID = playerID
	if next := g.nextBiddingPlayer(playerID); next != nil {
		g.CurrentTurnID = next.ID
	}

	g.logAction(playerID, "raise", map[string]interface{}{"bid": bid})

	if g.biddingComplete() {
		g.startRevelation()
		return nil
	}

	g.fireEvent(GameEvent{
		Type: EventBidRaised,
		Payload: map[string]interface{}{
			"playerId":      playerID,
			"bid":           bid,
			"currentTurnId": g.CurrentTurnID,
			"challengerId":  g.ChallengerID,
		},
	})

	if bid >= total {
		g.scheduleRevelation()
	} else {
		g.startTurnTimer()
	}
	return nil
}

func (g *SkullGame) handlePass(playerID uuid.UUID) error {
	if g.Phase != PhaseChallenge || g.revealPending || g.CurrentTurnID != playerID {
		return nil
	}
	if g.hasPassed(playerID) {
		return nil
	}

	g.PassedPlayers = append(g.PassedPlayers, playerID)
	if next := g.nextBiddingPlayer(playerID); next != nil {
		g.CurrentTurnID = next.ID
	}

	g.logAction(playerID, "pass", nil)

	if g.biddingComplete() {
		g.startRevelation()
		return nil
	}

	g.fireEvent(GameEvent{
		Type: EventPlayerPassed,
		Payload: map[string]interface{}{
			"playerId":      playerID,
			"passedPlayers": g.PassedPlayers,
			"currentTurnId": g.CurrentTurnID,
		},
	})
	g.startTurnTimer()
	return nil
}

// === REVELATION ===

// startRevelation moves the game into the reveal phase with the turn on
// the winning bidder. Assumes lock is held.
func (g *SkullGame) startRevelation() {
	if g.Phase == PhaseRevelation {
		return
	}
	g.revealPending = false
	g.Phase = PhaseRevelation
	g.RevealedCount = 0
	g.RevealedSkull = false
	g.CurrentTurnID = g.ChallengerID

	// The challenger is not racing a clock while flipping discs.
	g.stopTurnTimer()

	g.fireEvent(GameEvent{
		Type: EventRevelationStarted,
		Payload: map[string]interface{}{
			"challengerId": g.ChallengerID,
			"bid":          g.CurrentBid,
			"phase":        g.Phase,
			"players":      g.sanitizedPlayers(),
		},
		Personal: true,
	})
}

func (g *SkullGame) handleReveal(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseRevelation || g.roundPending || playerID != g.ChallengerID {
		return nil
	}

	targetID, err := uuid.Parse(payloadString(payload, "targetPlayerId"))
	if err != nil {
		return nil
	}
	target := g.playerByID(targetID)
	if target == nil || target.IsEliminated() {
		return nil
	}

	challenger := g.playerByID(playerID)
	if targetID != playerID && challenger.UnrevealedCount() > 0 {
		return errors.New("You must reveal all your own discs first")
	}

	topIdx := target.TopUnrevealedIndex()
	if topIdx == -1 {
		return errors.New("No discs to reveal")
	}

	card := target.Stack[topIdx]
	card.Revealed = true
	g.RevealedCount++

	g.logAction(playerID, "reveal", map[string]interface{}{
		"targetPlayerId": targetID,
		"cardType":       card.Kind,
	})

	if card.Kind == models.KindSkull {
		g.RevealedSkull = true
		g.SkullOwnerID = targetID
		g.handleChallengerLoss()
		return nil
	}

	g.fireEvent(GameEvent{
		Type: EventCardRevealed,
		Payload: map[string]interface{}{
			"targetPlayerId": targetID,
			"cardType":       card.Kind,
			"revealedCount":  g.RevealedCount,
			"bid":            g.CurrentBid,
			"players":        g.sanitizedPlayers(),
		},
		Personal: true,
	})

	if g.RevealedCount >= g.CurrentBid {
		g.handleChallengerWin()
	}
	return nil
}

// handleChallengerWin credits the met bid; two successful challenges win
// the game. Assumes lock is held.
func (g *SkullGame) handleChallengerWin() {
	challenger := g.playerByID(g.ChallengerID)
	challenger.Wins++

	if challenger.Wins >= 2 {
		g.endGame(challenger, "")
		return
	}

	g.FirstPlayerID = challenger.ID
	g.fireEvent(GameEvent{
		Type: EventRoundWon,
		Payload: map[string]interface{}{
			"winnerId":   challenger.ID,
			"winnerName": challenger.Name,
			"wins":       challenger.Wins,
			"players":    g.sanitizedPlayers(),
		},
		Personal: true,
	})
	g.scheduleNewRound(g.roundWinDelay)
}

// handleChallengerLoss enters CARD_LOSS. The challenger always loses a
// disc; whose skull was flipped decides who picks it. Assumes lock is
// held.
func (g *SkullGame) handleChallengerLoss() {
	challenger := g.playerByID(g.ChallengerID)
	g.Phase = PhaseCardLoss

	ownSkull := g.SkullOwnerID == challenger.ID
	if ownSkull {
		g.CurrentTurnID = challenger.ID
	} else {
		// Rulebook: the player whose skull was flipped chooses which of
		// the challenger's discs is eliminated.
		g.CurrentTurnID = g.SkullOwnerID
	}

	g.fireEvent(GameEvent{
		Type: EventSkullRevealed,
		Payload: map[string]interface{}{
			"challengerId":  challenger.ID,
			"skullOwnerId":  g.SkullOwnerID,
			"ownSkull":      ownSkull,
			"phase":         g.Phase,
			"currentTurnId": g.CurrentTurnID,
			"players":       g.sanitizedPlayers(),
		},
		Personal: true,
	})

	g.startTurnTimer()
}

// === CARD LOSS ===

func (g *SkullGame) handleSelectCardLoss(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseCardLoss || playerID != g.CurrentTurnID {
		return nil
	}
	if g.cardLossProcessed {
		return nil
	}

	loser := g.playerByID(g.ChallengerID)
	if loser == nil {
		return nil
	}

	idx, ok := payloadIndex(payload, "cardIndex")
	if !ok || idx < 0 || idx >= loser.Remaining() {
		return nil
	}

	g.cardLossProcessed = true

	// The index addresses hand ++ stack in that order. When the skull
	// owner is choosing they only see face-down placeholders, but the
	// index space is deliberately not shuffled (unlike the timeout path).
	if idx < len(loser.Hand) {
		loser.Hand = append(loser.Hand[:idx], loser.Hand[idx+1:]...)
	} else {
		si := idx - len(loser.Hand)
		loser.Stack = append(loser.Stack[:si], loser.Stack[si+1:]...)
	}

	g.logAction(playerID, "selectCardLoss", map[string]interface{}{"cardIndex": idx})
	g.finishCardLoss(loser)
	return nil
}

// randomCardLoss is the timeout path: the challenger's remaining discs
// are shuffled and the first one is discarded. Assumes lock is held.
func (g *SkullGame) randomCardLoss(loser *models.Player) {
	if g.cardLossProcessed || loser.Remaining() == 0 {
		return
	}
	g.cardLossProcessed = true

	all := make([]models.CardKind, 0, loser.Remaining())
	all = append(all, loser.Hand...)
	for _, c := range loser.Stack {
		all = append(all, c.Kind)
	}
	g.rng.Shuffle(len(all), func(i, j int) {
		all[i], all[j] = all[j], all[i]
	})
	removed := all[0]

	removedFromHand := false
	for i, k := range loser.Hand {
		if k == removed {
			loser.Hand = append(loser.Hand[:i], loser.Hand[i+1:]...)
			removedFromHand = true
			break
		}
	}
	if !removedFromHand {
		for i, c := range loser.Stack {
			if c.Kind == removed {
				loser.Stack = append(loser.Stack[:i], loser.Stack[i+1:]...)
				break
			}
		}
	}

	g.logAction(loser.ID, "randomCardLoss", nil)
	g.finishCardLoss(loser)
}

// finishCardLoss resolves the aftermath of the discarded disc: game end
// by last-standing, first-player selection, or a new round. Assumes lock
// is held.
func (g *SkullGame) finishCardLoss(loser *models.Player) {
	g.stopTurnTimer()

	active := g.activePlayers()
	if len(active) == 1 {
		g.endGame(active[0], "lastStanding")
		return
	}

	challenger := g.playerByID(g.ChallengerID)
	if challenger.IsEliminated() {
		if g.SkullOwnerID != uuid.Nil && g.SkullOwnerID != challenger.ID {
			// Knocked out by someone else's skull: that player opens.
			g.FirstPlayerID = g.SkullOwnerID
			g.proceedAfterCardLoss(loser)
		} else {
			// Knocked out by their own skull: the eliminated player
			// still holds the turn and nominates the next starter.
			g.Phase = PhaseChooseFirstPlayer
			g.CurrentTurnID = challenger.ID
			g.fireEvent(GameEvent{
				Type: EventChooseFirstPlayer,
				Payload: map[string]interface{}{
					"eliminatedPlayerId": challenger.ID,
					"phase":              g.Phase,
					"currentTurnId":      g.CurrentTurnID,
					"players":            g.sanitizedPlayers(),
				},
				Personal: true,
			})
			g.startTurnTimer()
		}
	} else {
		g.FirstPlayerID = challenger.ID
		g.proceedAfterCardLoss(loser)
	}
}

func (g *SkullGame) proceedAfterCardLoss(loser *models.Player) {
	g.fireEvent(GameEvent{
		Type: EventCardLost,
		Payload: map[string]interface{}{
			"playerId":       loser.ID,
			"eliminated":     loser.IsEliminated(),
			"remainingCards": loser.Remaining(),
			"players":        g.sanitizedPlayers(),
		},
		Personal: true,
	})
	g.scheduleNewRound(g.newRoundDelay)
}

// === CHOOSE_FIRST_PLAYER ===

func (g *SkullGame) handleChooseFirstPlayer(playerID uuid.UUID, payload map[string]interface{}) error {
	if g.Phase != PhaseChooseFirstPlayer || g.roundPending || playerID != g.CurrentTurnID {
		return nil
	}

	chosenID, err := uuid.Parse(payloadString(payload, "playerId"))
	if err != nil {
		return errors.New("Invalid player selection")
	}
	chosen := g.playerByID(chosenID)
	if chosen == nil || chosen.IsEliminated() {
		return errors.New("Invalid player selection")
	}

	g.FirstPlayerID = chosenID
	challenger := g.playerByID(g.ChallengerID)

	g.logAction(playerID, "chooseFirstPlayer", map[string]interface{}{"playerId": chosenID})
	g.fireEvent(GameEvent{
		Type: EventCardLost,
		Payload: map[string]interface{}{
			"playerId":              challenger.ID,
			"eliminated":            challenger.IsEliminated(),
			"remainingCards":        challenger.Remaining(),
			"chosenFirstPlayerId":   chosenID,
			"chosenFirstPlayerName": chosen.Name,
			"players":               g.sanitizedPlayers(),
		},
		Personal: true,
	})
	g.scheduleNewRound(g.newRoundDelay)
	return nil
}

// === RESET / GAME OVER ===

// HandleReset returns the session to a fresh lobby: players keep their
// identity, seat and (reassigned) color; cards and scores start over.
// Host only. Assumes lock is held.
func (g *SkullGame) HandleReset(playerID uuid.UUID) error {
	if playerID != g.HostID {
		return nil
	}

	g.epoch++
	g.stopTurnTimer()

	g.Phase = PhaseLobby
	g.GameStarted = false
	g.GameOver = false
	g.WinnerID = uuid.Nil
	g.CurrentTurnID = uuid.Nil
	g.FirstPlayerID = uuid.Nil
	g.ChallengerID = uuid.Nil
	g.CurrentBid = 0
	g.RevealedCount = 0
	g.RevealedSkull = false
	g.SkullOwnerID = uuid.Nil
	g.PassedPlayers = nil
	g.PlacementRound = 1
	g.cardLossProcessed = false
	g.revealPending = false
	g.roundPending = false
	g.TurnTimerDuration = 0
	g.TurnDeadline = time.Time{}

	for i, p := range g.Players {
		p.ColorCode = colorCodes[i]
		p.Hand = models.StartingHand()
		p.Stack = nil
		p.Wins = 0
	}

	g.logAction(playerID, "reset", nil)
	g.fireEvent(GameEvent{
		Type:     EventGameReset,
		Payload:  map[string]interface{}{"state": g.SanitizedState()},
		Personal: true,
	})
	return nil
}

// endGame marks the terminal state and announces the winner. Only a host
// reset can follow. Assumes lock is held.
func (g *SkullGame) endGame(winner *models.Player, reason string) {
	if g.GameOver {
		return
	}
	g.GameOver = true
	g.WinnerID = winner.ID
	g.epoch++
	g.stopTurnTimer()

	payload := map[string]interface{}{
		"winnerId":   winner.ID,
		"winnerName": winner.Name,
		"players":    g.sanitizedPlayers(),
	}
	if reason != "" {
		payload["reason"] = reason
	}

	g.logAction(winner.ID, "gameOver", map[string]interface{}{"reason": reason})
	g.fireEvent(GameEvent{Type: EventGameOver, Payload: payload, Personal: true})

	if g.OnGameEnd != nil {
		go g.OnGameEnd(g.ID, winner.ID, reason)
	}
}

// === PACING CONTINUATIONS ===

// scheduleRevelation starts the revelation after a fixed display delay.
// The continuation is keyed to the current epoch: it becomes a no-op if
// the session was reset (or ended) before it fires. Player messages that
// land inside the window are dropped via revealPending.
func (g *SkullGame) scheduleRevelation() {
	g.revealPending = true
	g.stopTurnTimer()
	epoch := g.epoch
	time.AfterFunc(g.revealDelay, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.GameOver || epoch != g.epoch || g.Phase == PhaseRevelation {
			return
		}
		g.startRevelation()
	})
}

// scheduleNewRound starts the next round after a fixed display delay,
// no-op under the same epoch rule as scheduleRevelation.
func (g *SkullGame) scheduleNewRound(delay time.Duration) {
	g.roundPending = true
	g.stopTurnTimer()
	epoch := g.epoch
	time.AfterFunc(delay, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		if g.GameOver || epoch != g.epoch {
			return
		}
		g.startNewRound()
		g.fireEvent(GameEvent{
			Type:     EventNewRound,
			Payload:  map[string]interface{}{"state": g.SanitizedState()},
			Personal: true,
		})
	})
}

// === TURN TIMER ===

// startTurnTimer cancels any live timer and arms a fresh one for the
// current turn. With no configured duration the game is manual: no
// deadline is recorded and nothing fires. Assumes lock is held.
func (g *SkullGame) startTurnTimer() {
	g.turnSeq++
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}

	if g.TurnTimerDuration <= 0 {
		g.TurnDeadline = time.Time{}
		g.broadcastTimerUpdate()
		return
	}

	g.TurnDeadline = time.Now().Add(g.TurnTimerDuration)
	g.broadcastTimerUpdate()

	seq := g.turnSeq
	epoch := g.epoch
	turnPlayer := g.CurrentTurnID
	g.turnTimer = time.AfterFunc(g.TurnTimerDuration, func() {
		g.Mu.Lock()
		defer g.Mu.Unlock()
		// A stale timer: the turn moved on before it fired.
		if g.GameOver || seq != g.turnSeq || epoch != g.epoch || g.CurrentTurnID != turnPlayer {
			return
		}
		g.handleTurnTimeout()
	})
}

// stopTurnTimer cancels the live timer and clears the deadline without
// broadcasting. Assumes lock is held.
func (g *SkullGame) stopTurnTimer() {
	g.turnSeq++
	if g.turnTimer != nil {
		g.turnTimer.Stop()
		g.turnTimer = nil
	}
	g.TurnDeadline = time.Time{}
}

func (g *SkullGame) broadcastTimerUpdate() {
	var deadline interface{}
	if !g.TurnDeadline.IsZero() {
		deadline = g.TurnDeadline.UnixMilli()
	}
	g.fireEvent(GameEvent{
		Type: EventTimerUpdate,
		Payload: map[string]interface{}{
			"turnDeadline":  deadline,
			"currentTurnId": g.CurrentTurnID,
		},
	})
}

// handleTurnTimeout synthesizes a default action for the stalled player.
// Everything goes back through HandlePlayerAction, so the synthesized
// action is validated exactly like a real one. Assumes lock is held.
func (g *SkullGame) handleTurnTimeout() {
	player := g.playerByID(g.CurrentTurnID)
	if player == nil {
		return
	}
	// An eliminated player legitimately holds the turn only while
	// choosing the next first player.
	if player.IsEliminated() && g.Phase != PhaseChooseFirstPlayer {
		return
	}

	log.WithFields(log.Fields{
		"game":   g.ID,
		"player": player.ID,
		"phase":  g.Phase,
	}).Info("turn timer expired, playing default action")
	g.logAction(player.ID, "timeout", map[string]interface{}{"phase": g.Phase})

	var err error
	switch g.Phase {
	case PhasePlacement:
		if len(player.Hand) > 0 {
			kind := player.Hand[g.rng.Intn(len(player.Hand))]
			err = g.HandlePlayerAction(player.ID, models.GameAction{
				ActionType: "placeCard",
				Payload:    map[string]interface{}{"cardType": string(kind)},
			})
		} else {
			err = g.HandlePlayerAction(player.ID, models.GameAction{
				ActionType: "challenge",
				Payload:    map[string]interface{}{"bid": 1},
			})
		}
	case PhaseChallenge:
		err = g.HandlePlayerAction(player.ID, models.GameAction{ActionType: "pass"})
	case PhaseCardLoss:
		g.randomCardLoss(g.playerByID(g.ChallengerID))
	case PhaseChooseFirstPlayer:
		active := g.activePlayers()
		if len(active) == 0 {
			return
		}
		pick := active[g.rng.Intn(len(active))]
		err = g.HandlePlayerAction(player.ID, models.GameAction{
			ActionType: "chooseFirstPlayer",
			Payload:    map[string]interface{}{"playerId": pick.ID.String()},
		})
	}
	if err != nil {
		log.WithFields(log.Fields{"game": g.ID, "player": player.ID}).
			Warnf("default action rejected: %v", err)
	}
}

// === EVENTS / JOURNAL ===

// fireEvent delivers an event. Personal events get one copy per
// connected player with their own hand and stack merged in; everything
// else is broadcast verbatim. Assumes lock is held.
func (g *SkullGame) fireEvent(ev GameEvent) {
	if !ev.Personal {
		if g.BroadcastFn != nil {
			g.BroadcastFn(ev)
		}
		return
	}
	if g.BroadcastToPlayerFn == nil {
		return
	}
	for _, p := range g.Players {
		if !p.Connected {
			continue
		}
		g.BroadcastToPlayerFn(p.ID, ev.withPersonal(map[string]interface{}{
			"myHand":  p.Hand,
			"myStack": p.Stack,
		}))
	}
}

// SyncStateTo sends the full personalized state snapshot to one player,
// used on connect and reconnect. Assumes lock is held.
func (g *SkullGame) SyncStateTo(playerID uuid.UUID) {
	if g.BroadcastToPlayerFn == nil {
		return
	}
	ev := GameEvent{
		Type:    EventState,
		Payload: map[string]interface{}{"state": g.SanitizedState()},
	}
	if p := g.playerByID(playerID); p != nil {
		ev = ev.withPersonal(map[string]interface{}{
			"myHand":  p.Hand,
			"myStack": p.Stack,
		})
	}
	g.BroadcastToPlayerFn(playerID, ev)
}

// logAction publishes an action record to the journal queue for the
// historian, when Redis is connected. Never blocks game logic.
func (g *SkullGame) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	g.actionIndex++
	if payload == nil {
		payload = map[string]interface{}{}
	}
	record := cache.GameActionRecord{
		GameID:        g.ID,
		ActionIndex:   g.actionIndex,
		ActorID:       actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec cache.GameActionRecord) {
		if cache.Rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := cache.PublishGameAction(ctx, rec); err != nil {
			log.Warnf("publishing action %d for game %s: %v", rec.ActionIndex, g.ID, err)
		}
	}(record)
}

// === PAYLOAD HELPERS ===

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// payloadInt accepts both float64 (JSON numbers) and int (synthesized
// actions).
func payloadInt(payload map[string]interface{}, key string) int {
	v, ok := payloadIndex(payload, key)
	if !ok {
		return 0
	}
	return v
}

func payloadIndex(payload map[string]interface{}, key string) (int, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
