// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/skullparty/skull/internal/game"
)

// RoomServer owns the in-memory room registry shared by the HTTP and
// WebSocket surfaces.
type RoomServer struct {
	Store *game.RoomStore
}

func NewRoomServer() *RoomServer {
	return &RoomServer{
		Store: game.NewRoomStore(),
	}
}

// CreateRoomHandler mints a fresh room and returns its join code. The
// creator then connects to /room/ws/{code}?create=true and joins over
// the socket.
func CreateRoomHandler(rs *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if _, err := EnsureEphemeralPlayer(w, r); err != nil {
			http.Error(w, "authentication failed", http.StatusForbidden)
			return
		}

		g := rs.Store.CreateRoom()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"code": g.Code,
		})
	}
}
