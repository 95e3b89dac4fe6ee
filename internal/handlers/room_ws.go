// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/skullparty/skull/internal/database"
	"github.com/skullparty/skull/internal/game"
	"github.com/skullparty/skull/internal/middleware"
	"github.com/skullparty/skull/internal/models"
)

// RoomMessage is the envelope for incoming WebSocket messages.
type RoomMessage struct {
	Type string `json:"type"`

	// Name is the display name supplied with a join.
	Name string `json:"name,omitempty"`

	// IsCreator marks the join of the player who created the room; only
	// they may populate an empty one.
	IsCreator bool `json:"isCreator,omitempty"`

	// TimerDuration configures the turn timer on start, in seconds
	// (0 = manual play).
	TimerDuration int `json:"timerDuration,omitempty"`

	// Payload carries the per-action fields (cardType, bid,
	// targetPlayerId, cardIndex, playerId).
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// inGameActions are the message types routed through the game's action
// pipeline verbatim.
var inGameActions = map[string]bool{
	"placeCard":         true,
	"challenge":         true,
	"raise":             true,
	"pass":              true,
	"reveal":            true,
	"selectCardLoss":    true,
	"chooseFirstPlayer": true,
}

// RoomWSHandler upgrades the HTTP connection to WebSocket for a room.
// It authenticates the player first (cookies cannot be set after the
// upgrade hijacks the connection), resolves the room from the path,
// registers the connection, and runs the read loop until disconnect.
func RoomWSHandler(logger *logrus.Logger, rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Path: /room/ws/{code}
		code := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/", 2)[0]
		if code == "" {
			http.Error(w, "Missing room code in path (/room/ws/{code})", http.StatusBadRequest)
			return
		}

		playerID, err := EnsureEphemeralPlayer(w, r)
		if err != nil {
			logger.Warnf("Player authentication failed for room %s: %v", code, err)
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		// Rooms auto-register on first contact; whether an empty room may
		// actually be populated is decided at join time via the create
		// flag, so a mistyped code still gets a proper error event.
		g := rs.Store.GetOrCreateRoom(code)
		isCreator := r.URL.Query().Get("create") == "true"

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"skull"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error for room %s: %v", code, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "skull" {
			c.Close(websocket.StatusPolicyViolation, "Client must use the 'skull' subprotocol.")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		g.Mu.Lock()
		if g.BroadcastFn == nil {
			g.BroadcastFn = createBroadcastFunc(g, logger)
		}
		if g.BroadcastToPlayerFn == nil {
			g.BroadcastToPlayerFn = createBroadcastToPlayerFunc(g, logger)
		}
		if g.OnGameEnd == nil {
			g.OnGameEnd = createGameEndRecorder(g, logger)
		}
		// A returning player slots straight back into their seat and gets
		// a full state sync; everyone else waits for an explicit join.
		if g.GameStarted {
			g.HandleReconnect(playerID, c)
		}
		g.Mu.Unlock()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readRoomMessages(ctx, c, g, rs, playerID, isCreator, logger)

		g.Mu.Lock()
		g.HandleLeave(playerID)
		empty := len(g.Players) == 0
		g.Mu.Unlock()
		if empty {
			rs.Store.DeleteRoom(g.Code)
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// createBroadcastFunc returns a function suitable for SkullGame.BroadcastFn.
// It is invoked while the game lock is held, so it snapshots the target
// connections synchronously and does the marshaling and writes in a
// goroutine without touching the lock again.
func createBroadcastFunc(g *game.SkullGame, logger *logrus.Logger) func(ev game.GameEvent) {
	return func(ev game.GameEvent) {
		conns := make([]*websocket.Conn, 0, len(g.Players))
		for _, p := range g.Players {
			if p.Connected && p.Conn != nil {
				conns = append(conns, p.Conn)
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for game %s: %v", ev.Type, g.ID, err)
			return
		}

		go func(conns []*websocket.Conn, data []byte, gameID uuid.UUID) {
			for _, conn := range conns {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Warnf("Failed to write broadcast message in game %s: %v", gameID, err)
				}
			}
		}(conns, msgBytes, g.ID)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for
// SkullGame.BroadcastToPlayerFn. Same locking contract as
// createBroadcastFunc.
func createBroadcastToPlayerFunc(g *game.SkullGame, logger *logrus.Logger) func(targetPlayerID uuid.UUID, ev game.GameEvent) {
	return func(targetPlayerID uuid.UUID, ev game.GameEvent) {
		var targetConn *websocket.Conn
		for _, p := range g.Players {
			if p.ID == targetPlayerID {
				if p.Connected && p.Conn != nil {
					targetConn = p.Conn
				}
				break
			}
		}
		if targetConn == nil {
			return
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for player %s in game %s: %v", ev.Type, targetPlayerID, g.ID, err)
			return
		}

		go func(conn *websocket.Conn, data []byte, playerID uuid.UUID, gameID uuid.UUID) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to player %s in game %s: %v", playerID, gameID, err)
			}
		}(targetConn, msgBytes, targetPlayerID, g.ID)
	}
}

// createGameEndRecorder returns the SkullGame.OnGameEnd hook. It runs in
// its own goroutine after the game reaches a terminal state, so it takes
// the game lock itself to snapshot the final seats.
func createGameEndRecorder(g *game.SkullGame, logger *logrus.Logger) game.OnGameEndFunc {
	return func(gameID uuid.UUID, winnerID uuid.UUID, reason string) {
		if database.DB == nil {
			return
		}
		g.Mu.Lock()
		players := make([]*models.Player, len(g.Players))
		copy(players, g.Players)
		g.Mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := database.RecordGameResult(ctx, gameID, players, winnerID, reason); err != nil {
			logger.Errorf("Failed to record result for game %s: %v", gameID, err)
		}
	}
}

// readRoomMessages reads messages off the socket, takes the game lock
// and routes each one into the game logic. Rule rejections go back to
// the sender only as error events; state-changing outcomes reach
// everyone through the game's own broadcasts.
func readRoomMessages(ctx context.Context, c *websocket.Conn, g *game.SkullGame, rs *RoomServer, playerID uuid.UUID, isCreator bool, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for player %s in game %s.", playerID, g.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for player %s in game %s.", playerID, g.ID)
			} else {
				logger.Warnf("Error reading from WebSocket for player %s in game %s: %v", playerID, g.ID, err)
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		var msg RoomMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from player %s in game %s: %v", playerID, g.ID, err)
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		logger.Debugf("Received '%s' from player %s in room %s.", msg.Type, playerID, g.Code)

		switch msg.Type {
		case "join":
			g.Mu.Lock()
			err := g.HandleJoin(playerID, msg.Name, isCreator || msg.IsCreator, c)
			g.Mu.Unlock()
			if errors.Is(err, game.ErrRoomNotFound) {
				sendWsError(ctx, c, err.Error())
				rs.Store.DeleteRoom(g.Code)
				c.Close(websocket.StatusPolicyViolation, "room not found")
				return
			}
			if err != nil {
				sendWsError(ctx, c, err.Error())
			}

		case "leave":
			c.Close(websocket.StatusNormalClosure, "left room")
			return

		case "start":
			g.Mu.Lock()
			err := g.HandleStart(playerID, msg.TimerDuration)
			g.Mu.Unlock()
			if err != nil {
				sendWsError(ctx, c, err.Error())
			}

		case "reset":
			g.Mu.Lock()
			err := g.HandleReset(playerID)
			g.Mu.Unlock()
			if err != nil {
				sendWsError(ctx, c, err.Error())
			}

		case "ping":
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})

		default:
			if !inGameActions[msg.Type] {
				sendWsError(ctx, c, fmt.Sprintf("Unknown action type: %s", msg.Type))
				continue
			}
			action := models.GameAction{
				ActionType: msg.Type,
				Payload:    msg.Payload,
			}
			g.Mu.Lock()
			err := g.HandlePlayerAction(playerID, action)
			g.Mu.Unlock()
			if err != nil {
				sendWsError(ctx, c, err.Error())
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client
// with a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("Error writing WebSocket message: %v", err)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
