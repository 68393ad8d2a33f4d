package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devaloi/wagertrivia/internal/hub"
	"github.com/devaloi/wagertrivia/internal/middleware"
)

// NewRouter wires the HTTP and WebSocket endpoints behind the logging and
// CORS middleware.
func NewRouter(h *hub.Hub) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.CORS)

	r.HandleFunc("/health", Health(h)).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", ListRooms(h)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/rooms/{id}", RoomInfo(h)).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/ws", ServeWS(h))
	return r
}
