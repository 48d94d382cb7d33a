package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"voice-rooms/internal/store"
	"voice-rooms/internal/ws"
)

const (
	roomListLimit  = 100
	roomNameMaxLen = 100
)

type RoomsAPI struct {
	DB  store.Store
	Hub *ws.Hub
	Log *slog.Logger
}

type createRoomReq struct {
	Name string `json:"name"`
}

// Create persists a new room
func (a *RoomsAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoomReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || utf8.RuneCountInString(req.Name) > roomNameMaxLen {
		writeError(w, http.StatusBadRequest, "name must be 1-100 characters")
		return
	}

	room := store.Room{ID: uuid.NewString(), Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := a.DB.InsertRoom(r.Context(), room); err != nil {
		a.Log.Error("rooms.create", "err", err)
		writeError(w, http.StatusInternalServerError, "could not create room")
		return
	}
	writeJSON(w, a.Hub.View(room.ID, &room))
}

// List returns up to 100 rooms with their live members
func (a *RoomsAPI) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.DB.ListRooms(r.Context(), roomListLimit)
	if err != nil {
		a.Log.Error("rooms.list", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list rooms")
		return
	}

	resp := make([]ws.RoomView, 0, len(rooms))
	for i := range rooms {
		resp = append(resp, a.Hub.View(rooms[i].ID, &rooms[i]))
	}
	writeJSON(w, resp)
}

// Get returns one room with its live members
func (a *RoomsAPI) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("room_id")
	room, err := a.DB.FindRoom(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	if err != nil {
		a.Log.Error("rooms.get", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load room")
		return
	}
	writeJSON(w, a.Hub.View(room.ID, &room))
}
