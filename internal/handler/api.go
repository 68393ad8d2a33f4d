package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/devaloi/wagertrivia/internal/domain"
	"github.com/devaloi/wagertrivia/internal/hub"
)

// RoomDetail is the response of the room info endpoint.
type RoomDetail struct {
	Room  domain.Room        `json:"room"`
	Round *domain.RoundState `json:"round,omitempty"`
}

// HealthStatus is the response of the health endpoint.
type HealthStatus struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}

// Health reports the server as up along with its number of open rooms.
func Health(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HealthStatus{Status: "ok", Rooms: h.RoomCount()})
	}
}

// ListRooms returns the rooms that are still accepting players.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.RoomList{AvailableRooms: h.ListJoinable()})
	}
}

// RoomInfo returns a room and, once its game started, the round progress.
func RoomInfo(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if id == "" {
			writeJSON(w, http.StatusBadRequest, domain.ErrorMessage{Message: "room id required", Code: domain.ErrInvalidPayload.Code})
			return
		}

		room, ok := h.RoomInfo(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, domain.ErrorMessage{Message: "room not found", Code: domain.ErrRoomNotFound.Code})
			return
		}
		detail := RoomDetail{Room: room}
		state, err := h.RoundState(id)
		switch {
		case err == nil:
			detail.Round = &state
		case !errors.Is(err, domain.ErrGameNotFound) && !errors.Is(err, domain.ErrRoomNotFound):
			log.Printf("room info %s: %v", id, err)
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}
