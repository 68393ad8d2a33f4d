package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/devaloi/wagertrivia/internal/client"
	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades a player's connection and registers it with the lobby.
// The player is identified by the player query parameter; name defaults to it.
func ServeWS(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		player := r.URL.Query().Get("player")
		if player == "" {
			writeJSON(w, http.StatusBadRequest, domain.ErrorMessage{Message: "player query param required", Code: domain.ErrInvalidPayload.Code})
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = player
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}

		c := client.New(h, conn, player, name)
		h.Register(c)
		go c.ReadPump()
		go c.WritePump()
	}
}
