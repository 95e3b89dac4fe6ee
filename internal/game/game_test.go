package game

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skullparty/skull/internal/models"
)

// mockBroadcaster captures fired events instead of writing to sockets.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []GameEvent
	playerEvents map[uuid.UUID][]GameEvent
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{playerEvents: make(map[uuid.UUID][]GameEvent)}
}

func (m *mockBroadcaster) broadcast(ev GameEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allEvents = append(m.allEvents, ev)
}

func (m *mockBroadcaster) broadcastTo(playerID uuid.UUID, ev GameEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playerEvents[playerID] = append(m.playerEvents[playerID], ev)
}

// lastToPlayer returns the most recent event of the given type sent to
// one player, or nil.
func (m *mockBroadcaster) lastToPlayer(playerID uuid.UUID, t GameEventType) *GameEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.playerEvents[playerID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == t {
			return &evs[i]
		}
	}
	return nil
}

// countToPlayer counts events of one type sent to one player.
func (m *mockBroadcaster) countToPlayer(playerID uuid.UUID, t GameEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.playerEvents[playerID] {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// setupTestGame builds a game with n joined players and fast pacing
// delays. The first joined player is the host.
func setupTestGame(t *testing.T, n int) (*SkullGame, *mockBroadcaster, []uuid.UUID) {
	t.Helper()
	g := NewSkullGame()
	g.Code = "TEST"
	g.revealDelay = 10 * time.Millisecond
	g.roundWinDelay = 10 * time.Millisecond
	g.newRoundDelay = 10 * time.Millisecond

	mb := newMockBroadcaster()
	g.BroadcastFn = mb.broadcast
	g.BroadcastToPlayerFn = mb.broadcastTo

	var ids []uuid.UUID
	for i := 0; i < n; i++ {
		id := uuid.New()
		ids = append(ids, id)
		g.Mu.Lock()
		err := g.HandleJoin(id, fmt.Sprintf("Player%d", i+1), i == 0, nil)
		g.Mu.Unlock()
		require.NoError(t, err)
		g.playerByID(id).Connected = true
	}
	return g, mb, ids
}

// startTestGame starts without a turn timer and returns the seat order
// rotated so index 0 is the first player.
func startTestGame(t *testing.T, g *SkullGame, hostID uuid.UUID) []uuid.UUID {
	t.Helper()
	g.Mu.Lock()
	err := g.HandleStart(hostID, 0)
	g.Mu.Unlock()
	require.NoError(t, err)

	g.Mu.Lock()
	defer g.Mu.Unlock()
	first := g.playerIndex(g.FirstPlayerID)
	require.NotEqual(t, -1, first)
	var order []uuid.UUID
	for i := 0; i < len(g.Players); i++ {
		order = append(order, g.Players[(first+i)%len(g.Players)].ID)
	}
	return order
}

func act(g *SkullGame, playerID uuid.UUID, actionType string, payload map[string]interface{}) error {
	g.Mu.Lock()
	defer g.Mu.Unlock()
	return g.HandlePlayerAction(playerID, models.GameAction{ActionType: actionType, Payload: payload})
}

func placeKind(t *testing.T, g *SkullGame, playerID uuid.UUID, kind models.CardKind) {
	t.Helper()
	require.NoError(t, act(g, playerID, "placeCard", map[string]interface{}{"cardType": string(kind)}))
}

// placeAllFlowers runs the mandatory first placement lap with flowers.
func placeAllFlowers(t *testing.T, g *SkullGame, order []uuid.UUID) {
	t.Helper()
	for _, id := range order {
		placeKind(t, g, id, models.KindFlower)
	}
}

func TestJoinAssignsHostAndColors(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)

	assert.Equal(t, ids[0], g.HostID)
	assert.Equal(t, PhaseLobby, g.Phase)
	assert.Equal(t, "c01", g.Players[0].ColorCode)
	assert.Equal(t, "c03", g.Players[2].ColorCode)
	for _, p := range g.Players {
		assert.Len(t, p.Hand, 4)
	}

	// Every player got a personalized copy of each join.
	assert.Equal(t, 3, mb.countToPlayer(ids[0], EventPlayerJoined))
}

func TestJoinRejections(t *testing.T) {
	g, _, _ := setupTestGame(t, 6)

	g.Mu.Lock()
	err := g.HandleJoin(uuid.New(), "Late", false, nil)
	g.Mu.Unlock()
	assert.EqualError(t, err, "Room is full (max 6 players)")

	empty := NewSkullGame()
	empty.BroadcastToPlayerFn = func(uuid.UUID, GameEvent) {}
	empty.Mu.Lock()
	err = empty.HandleJoin(uuid.New(), "Lost", false, nil)
	empty.Mu.Unlock()
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinAfterStartRejected(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	startTestGame(t, g, ids[0])

	g.Mu.Lock()
	err := g.HandleJoin(uuid.New(), "Late", false, nil)
	g.Mu.Unlock()
	assert.EqualError(t, err, "Game already started")
}

func TestStartRequiresThreePlayers(t *testing.T) {
	g, _, ids := setupTestGame(t, 2)

	g.Mu.Lock()
	err := g.HandleStart(ids[0], 0)
	g.Mu.Unlock()
	assert.EqualError(t, err, "Need at least 3 players")
	assert.False(t, g.GameStarted)
}

func TestStartOnlyHost(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)

	g.Mu.Lock()
	err := g.HandleStart(ids[1], 0)
	g.Mu.Unlock()
	assert.NoError(t, err)
	assert.False(t, g.GameStarted)
}

func TestPlacementFirstLap(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	assert.Equal(t, PhasePlacement, g.Phase)
	assert.Equal(t, 1, g.PlacementRound)
	assert.Equal(t, order[0], g.CurrentTurnID)

	placeAllFlowers(t, g, order)

	assert.Equal(t, 2, g.PlacementRound)
	assert.Equal(t, order[0], g.CurrentTurnID, "turn returns to first player after the lap")
	for _, p := range g.Players {
		assert.Len(t, p.Hand, 3)
		assert.Len(t, p.Stack, 1)
	}
}

func TestPlacementOutOfTurnIgnored(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	err := act(g, order[1], "placeCard", map[string]interface{}{"cardType": "flower"})
	assert.NoError(t, err)
	assert.Len(t, g.playerByID(order[1]).Stack, 0)
	assert.Equal(t, order[0], g.CurrentTurnID)
}

func TestChallengeValidation(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	// Challenging before placing anything is rejected.
	err := act(g, order[0], "challenge", map[string]interface{}{"bid": 1})
	assert.EqualError(t, err, "You must place at least 1 disc before challenging")

	placeKind(t, g, order[0], models.KindFlower)
	placeKind(t, g, order[1], models.KindFlower)

	// One player still has an empty mat.
	err = act(g, order[2], "challenge", map[string]interface{}{"bid": 1})
	assert.EqualError(t, err, "All players must place at least 1 disc first")

	placeKind(t, g, order[2], models.KindFlower)

	err = act(g, order[0], "challenge", map[string]interface{}{"bid": 0})
	assert.EqualError(t, err, "You must specify a bid amount")

	err = act(g, order[0], "challenge", map[string]interface{}{"bid": 4})
	assert.EqualError(t, err, "Invalid bid")
	assert.Equal(t, PhasePlacement, g.Phase, "rejected challenge leaves state untouched")

	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 2}))
	assert.Equal(t, PhaseChallenge, g.Phase)
	assert.Equal(t, order[0], g.ChallengerID)
	assert.Equal(t, 2, g.CurrentBid)
	assert.Equal(t, order[1], g.CurrentTurnID)
}

func TestRaiseAndPassToRevelation(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))

	// Raise must exceed the current bid.
	err := act(g, order[1], "raise", map[string]interface{}{"bid": 1})
	assert.EqualError(t, err, "Bid must be higher than current bid")
	assert.Equal(t, 1, g.CurrentBid)
	assert.Equal(t, order[0], g.ChallengerID)

	require.NoError(t, act(g, order[1], "raise", map[string]interface{}{"bid": 2}))
	assert.Equal(t, 2, g.CurrentBid)
	assert.Equal(t, order[1], g.ChallengerID)
	assert.Equal(t, order[2], g.CurrentTurnID)

	require.NoError(t, act(g, order[2], "pass", nil))
	require.NoError(t, act(g, order[0], "pass", nil))

	assert.Equal(t, PhaseRevelation, g.Phase)
	assert.Equal(t, order[1], g.CurrentTurnID, "turn lands on the standing challenger")
	assert.Equal(t, 0, g.RevealedCount)
}

func TestMaxBidSchedulesRevelation(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)

	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 3}))
	assert.Equal(t, PhaseChallenge, g.Phase)

	// Messages landing inside the pacing window are stale and ignored.
	require.NoError(t, act(g, order[1], "pass", nil))
	assert.Empty(t, g.PassedPlayers)

	time.Sleep(50 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, PhaseRevelation, g.Phase)
	assert.Equal(t, order[0], g.CurrentTurnID)
}

func TestRevealOwnDiscsFirst(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 2}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.Equal(t, PhaseRevelation, g.Phase)

	err := act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[1].String()})
	assert.EqualError(t, err, "You must reveal all your own discs first")

	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	assert.Equal(t, 1, g.RevealedCount)
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[1].String()}))
}

func TestRevealRepeatTargetExhausted(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 2}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))

	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	err := act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()})
	assert.EqualError(t, err, "No discs to reveal")
}

func TestAllFlowersWinsRound(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 3}))

	time.Sleep(50 * time.Millisecond) // max bid pacing
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[1].String()}))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[2].String()}))

	winner := g.playerByID(order[0])
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, order[0], g.FirstPlayerID)
	assert.NotNil(t, mb.lastToPlayer(order[1], EventRoundWon))

	// Reveals during the pacing window are stale.
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	assert.Equal(t, 1, winner.Wins)

	time.Sleep(50 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, PhasePlacement, g.Phase)
	for _, p := range g.Players {
		assert.Len(t, p.Hand, 4, "stacks return to hands on the new round")
		assert.Empty(t, p.Stack)
	}
}

func TestSkullEntersCardLoss(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	placeKind(t, g, order[0], models.KindFlower)
	placeKind(t, g, order[1], models.KindSkull)
	placeKind(t, g, order[2], models.KindFlower)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 2}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.Equal(t, PhaseRevelation, g.Phase)

	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[1].String()}))

	assert.Equal(t, PhaseCardLoss, g.Phase)
	assert.Equal(t, order[1], g.SkullOwnerID)
	assert.Equal(t, order[1], g.CurrentTurnID, "the skull's owner picks the disc")
	ev := mb.lastToPlayer(order[0], EventSkullRevealed)
	require.NotNil(t, ev)
	assert.Equal(t, false, ev.Payload["ownSkull"])

	// Only the chooser may act, and only once.
	require.NoError(t, act(g, order[0], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))
	assert.Equal(t, 4, g.playerByID(order[0]).Remaining())

	require.NoError(t, act(g, order[1], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))
	challenger := g.playerByID(order[0])
	assert.Equal(t, 3, challenger.Remaining())
	assert.Equal(t, order[0], g.FirstPlayerID, "surviving challenger starts the next round")

	require.NoError(t, act(g, order[1], "selectCardLoss", map[string]interface{}{"cardIndex": 1}))
	assert.Equal(t, 3, challenger.Remaining(), "card loss is processed once")

	time.Sleep(50 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, PhasePlacement, g.Phase)
	assert.Equal(t, order[0], g.CurrentTurnID)
}

func TestOwnSkullEliminationChooseFirstPlayer(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	// Down to a single skull: losing it eliminates the challenger.
	g.Mu.Lock()
	g.playerByID(order[0]).Hand = []models.CardKind{models.KindSkull}
	g.Mu.Unlock()

	placeKind(t, g, order[0], models.KindSkull)
	placeKind(t, g, order[1], models.KindFlower)
	placeKind(t, g, order[2], models.KindFlower)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))

	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	assert.Equal(t, PhaseCardLoss, g.Phase)
	assert.Equal(t, order[0], g.CurrentTurnID, "own skull: challenger discards their own disc")

	require.NoError(t, act(g, order[0], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))
	assert.True(t, g.playerByID(order[0]).IsEliminated())
	assert.Equal(t, PhaseChooseFirstPlayer, g.Phase)
	assert.Equal(t, order[0], g.CurrentTurnID, "eliminated chooser still holds the turn")

	err := act(g, order[0], "chooseFirstPlayer", map[string]interface{}{"playerId": order[0].String()})
	assert.EqualError(t, err, "Invalid player selection")

	require.NoError(t, act(g, order[0], "chooseFirstPlayer", map[string]interface{}{"playerId": order[2].String()}))
	ev := mb.lastToPlayer(order[1], EventCardLost)
	require.NotNil(t, ev)
	assert.Equal(t, order[2].String(), ev.Payload["chosenFirstPlayerId"].(uuid.UUID).String())

	time.Sleep(50 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Equal(t, PhasePlacement, g.Phase)
	assert.Equal(t, order[2], g.CurrentTurnID)
}

func TestSecondWinEndsGame(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	g.Mu.Lock()
	g.playerByID(order[0]).Wins = 1
	g.Mu.Unlock()

	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))

	assert.True(t, g.GameOver)
	assert.Equal(t, order[0], g.WinnerID)
	ev := mb.lastToPlayer(order[1], EventGameOver)
	require.NotNil(t, ev)
	assert.Equal(t, "Player"+fmt.Sprint(g.playerIndex(order[0])+1), ev.Payload["winnerName"])

	// Terminal: further actions are ignored.
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[1].String()}))
	assert.Equal(t, 1, g.RevealedCount)
}

func TestLastStandingEndsGame(t *testing.T) {
	g, mb, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	// Third seat is already out; challenger is on their last disc.
	g.Mu.Lock()
	g.playerByID(order[0]).Hand = []models.CardKind{models.KindSkull}
	g.playerByID(order[2]).Hand = nil
	g.Mu.Unlock()

	placeKind(t, g, order[0], models.KindSkull)
	placeKind(t, g, order[1], models.KindFlower)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.NoError(t, act(g, order[0], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))

	assert.True(t, g.GameOver)
	assert.Equal(t, order[1], g.WinnerID)
	ev := mb.lastToPlayer(order[1], EventGameOver)
	require.NotNil(t, ev)
	assert.Equal(t, "lastStanding", ev.Payload["reason"])
}

func TestCardConservation(t *testing.T) {
	g, _, ids := setupTestGame(t, 4)
	order := startTestGame(t, g, ids[0])

	total := func() int {
		n := 0
		for _, p := range g.Players {
			n += p.Remaining()
		}
		return n
	}
	require.Equal(t, 16, total())

	placeKind(t, g, order[0], models.KindSkull)
	placeKind(t, g, order[1], models.KindFlower)
	placeKind(t, g, order[2], models.KindFlower)
	placeKind(t, g, order[3], models.KindFlower)
	assert.Equal(t, 16, total(), "placement moves discs, never creates or destroys them")

	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 2}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.NoError(t, act(g, order[3], "pass", nil))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.Equal(t, PhaseCardLoss, g.Phase)
	require.NoError(t, act(g, order[0], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))

	assert.Equal(t, 15, total(), "exactly one disc leaves the game per card loss")
}

func TestTimeoutAutoPlacesCard(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	g.Mu.Lock()
	g.TurnTimerDuration = 50 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	assert.Len(t, g.playerByID(order[0]).Stack, 1)
	assert.Equal(t, order[1], g.CurrentTurnID)
}

func TestTimeoutAutoPasses(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))

	g.Mu.Lock()
	g.TurnTimerDuration = 50 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	assert.True(t, g.hasPassed(order[1]))
}

func TestTimeoutRandomCardLoss(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	placeKind(t, g, order[0], models.KindSkull)
	placeKind(t, g, order[1], models.KindFlower)
	placeKind(t, g, order[2], models.KindFlower)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.Equal(t, PhaseCardLoss, g.Phase)

	g.Mu.Lock()
	g.TurnTimerDuration = 50 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	assert.Equal(t, 3, g.playerByID(order[0]).Remaining())
}

func TestTimeoutEmptyHandAutoChallenges(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	// First player is down to one disc; placing it empties their hand,
	// so their second-lap default is the minimum challenge.
	g.Mu.Lock()
	g.playerByID(order[0]).Hand = []models.CardKind{models.KindFlower}
	g.Mu.Unlock()

	placeAllFlowers(t, g, order)
	require.Equal(t, 2, g.PlacementRound)
	require.Equal(t, order[0], g.CurrentTurnID)
	require.Empty(t, g.playerByID(order[0]).Hand)

	g.Mu.Lock()
	g.TurnTimerDuration = 50 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	assert.Equal(t, PhaseChallenge, g.Phase)
	assert.Equal(t, 1, g.CurrentBid)
	assert.Equal(t, order[0], g.ChallengerID)
	assert.Equal(t, order[1], g.CurrentTurnID)
}

func TestTimeoutChooseFirstPlayerPicksActive(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	g.Mu.Lock()
	g.playerByID(order[0]).Hand = []models.CardKind{models.KindSkull}
	g.Mu.Unlock()

	placeKind(t, g, order[0], models.KindSkull)
	placeKind(t, g, order[1], models.KindFlower)
	placeKind(t, g, order[2], models.KindFlower)
	require.NoError(t, act(g, order[0], "challenge", map[string]interface{}{"bid": 1}))
	require.NoError(t, act(g, order[1], "pass", nil))
	require.NoError(t, act(g, order[2], "pass", nil))
	require.NoError(t, act(g, order[0], "reveal", map[string]interface{}{"targetPlayerId": order[0].String()}))
	require.NoError(t, act(g, order[0], "selectCardLoss", map[string]interface{}{"cardIndex": 0}))
	require.Equal(t, PhaseChooseFirstPlayer, g.Phase)
	require.Equal(t, order[0], g.CurrentTurnID, "the eliminated chooser holds the turn")

	// The expiry must nominate despite the turn holder being eliminated.
	g.Mu.Lock()
	g.TurnTimerDuration = 50 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	assert.Equal(t, PhasePlacement, g.Phase)
	assert.NotEqual(t, order[0], g.FirstPlayerID)
	assert.False(t, g.playerByID(g.FirstPlayerID).IsEliminated())
	assert.Equal(t, g.FirstPlayerID, g.CurrentTurnID)
}

func TestStaleTimerIsNoOp(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])

	g.Mu.Lock()
	g.TurnTimerDuration = 30 * time.Millisecond
	g.startTurnTimer()
	g.Mu.Unlock()

	// The player acts before the deadline; the armed timer must not
	// fire a second action for the new turn holder.
	placeKind(t, g, order[0], models.KindFlower)
	g.Mu.Lock()
	g.TurnTimerDuration = 0
	g.stopTurnTimer()
	g.Mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	g.Mu.Lock()
	defer g.Mu.Unlock()
	assert.Len(t, g.playerByID(order[1]).Stack, 0)
	assert.Equal(t, order[1], g.CurrentTurnID)
}

func TestHostResetReturnsToLobby(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	order := startTestGame(t, g, ids[0])
	placeAllFlowers(t, g, order)

	// Non-host reset is ignored.
	var nonHost uuid.UUID
	for _, id := range ids {
		if id != g.HostID {
			nonHost = id
			break
		}
	}
	g.Mu.Lock()
	require.NoError(t, g.HandleReset(nonHost))
	g.Mu.Unlock()
	assert.True(t, g.GameStarted)

	g.Mu.Lock()
	require.NoError(t, g.HandleReset(g.HostID))
	g.Mu.Unlock()

	assert.Equal(t, PhaseLobby, g.Phase)
	assert.False(t, g.GameStarted)
	for i, p := range g.Players {
		assert.Len(t, p.Hand, 4)
		assert.Empty(t, p.Stack)
		assert.Equal(t, 0, p.Wins)
		assert.Equal(t, colorCodes[i], p.ColorCode)
	}
}

func TestLobbyLeaveReassignsHost(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)

	g.Mu.Lock()
	g.HandleLeave(ids[0])
	g.Mu.Unlock()

	assert.Len(t, g.Players, 2)
	assert.Equal(t, ids[1], g.HostID)
}

func TestMidGameLeaveKeepsSeat(t *testing.T) {
	g, _, ids := setupTestGame(t, 3)
	startTestGame(t, g, ids[0])

	g.Mu.Lock()
	g.HandleLeave(ids[1])
	g.Mu.Unlock()

	assert.Len(t, g.Players, 3, "mid-game seats are kept for reconnects")
	assert.False(t, g.playerByID(ids[1]).Connected)

	g.Mu.Lock()
	g.HandleReconnect(ids[1], nil)
	g.Mu.Unlock()
	assert.True(t, g.playerByID(ids[1]).Connected)
}
