package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"
	"voice-rooms/internal/store"
	"voice-rooms/pkg/metrics"
)

const storeTimeout = 5 * time.Second

// RoomStore is the read side of persistence the hub needs for room_info
type RoomStore interface {
	FindRoom(ctx context.Context, id string) (store.Room, error)
	FindMessages(ctx context.Context, roomID string, limit int) ([]store.Message, error)
}

type HubConfig struct {
	Origins      []string
	SendBuffer   int
	PingInterval time.Duration
	HistoryLimit int
}

type Hub struct {
	log   *slog.Logger
	reg   *Registry
	rooms RoomStore
	m     *metrics.Metrics
	cfg   HubConfig
}

// NewHub sets up the hub around a registry + room store
func NewHub(logger *slog.Logger, reg *Registry, rooms RoomStore, m *metrics.Metrics, cfg HubConfig) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"*"}
	}
	return &Hub{log: logger, reg: reg, rooms: rooms, m: m, cfg: cfg}
}

func (h *Hub) Registry() *Registry { return h.reg }

// Shutdown closes every live connection with a normal closure and waits for
// the close handshakes until ctx expires. Call it after the HTTP server has
// stopped accepting, since hijacked websockets are not tracked by http.Server.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.reg.CloseAll()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ws shutdown: %w", ctx.Err())
	}
}

// ServeWS handles GET /api/ws/{room_id}?user_id=&username=
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(r.PathValue("room_id"))
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if roomID == "" || userID == "" || username == "" {
		http.Error(w, "room_id, user_id and username required", http.StatusBadRequest)
		return
	}

	conn, err := Accept(w, r, h.cfg.Origins)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := NewConn(conn, h.cfg.SendBuffer, h.cfg.PingInterval)
	go c.WriteLoop(ctx)

	me, total := h.reg.Connect(c, roomID, userID, username)
	h.log.Info("ws.connect", "room", roomID, "user", userID, "total", total)

	// leave before closing: the close handshake may wait on the peer
	code, reason := websocket.StatusNormalClosure, "bye"
	defer func() {
		h.leave(c)
		_ = c.CloseWith(code, reason)
	}()

	for {
		payload, ok := c.Read(ctx)
		if !ok {
			return
		}
		ev, err := Decode(payload)
		if err != nil {
			h.log.Debug("ws.malformed", "room", roomID, "user", userID, "err", err)
			code, reason = websocket.StatusUnsupportedData, "malformed frame"
			return
		}
		h.m.Event(ev.Type())
		h.dispatch(ctx, c, me, ev)
	}
}

// dispatch applies one decoded event from me
func (h *Hub) dispatch(ctx context.Context, c *Conn, me Member, ev Event) {
	switch e := ev.(type) {
	case SignalEvent:
		h.reg.Broadcast(me.RoomID, json.RawMessage(e.Raw), c)

	case JoinEvent:
		h.reg.SendTo(c, h.roomInfo(ctx, me.RoomID))

	case VoiceEvent:
		if !h.reg.SetVoiceStatus(me.RoomID, me.UserID, e.InVoice) {
			return
		}
		h.reg.Broadcast(me.RoomID, UserVoiceUpdateMsg{
			Type:      TypeUserVoiceUpdate,
			UserID:    me.UserID,
			Username:  me.Username,
			IsInVoice: e.InVoice,
		}, nil)

	case TypingEvent:
		h.reg.SetTyping(c, e.IsTyping)
		h.reg.Broadcast(me.RoomID, UserTypingMsg{
			Type:     TypeUserTyping,
			UserID:   me.UserID,
			Username: me.Username,
			IsTyping: e.IsTyping,
		}, c)

	case UnknownEvent:
		// ignored
	}
}

// leave disconnects t and tells whoever is left
func (h *Hub) leave(t Transport) {
	me, remaining, ok := h.reg.Disconnect(t)
	if !ok {
		return
	}
	h.log.Info("ws.disconnect", "room", me.RoomID, "user", me.UserID, "remaining", remaining)
	h.reg.Broadcast(me.RoomID, UserLeftMsg{
		Type:       TypeUserLeft,
		RoomID:     me.RoomID,
		User:       me.Info(),
		TotalUsers: remaining,
	}, nil)
}

// PublishMessage announces a persisted chat message to the whole room.
// Safe to call from any goroutine, e.g. REST handlers.
func (h *Hub) PublishMessage(m store.Message) {
	h.reg.Broadcast(m.RoomID, NewMessageMsg{Type: TypeNewMessage, Message: m}, nil)
}

// View merges a room record (nil when there is none) with live presence
func (h *Hub) View(roomID string, rec *store.Room) RoomView {
	v := RoomView{ID: roomID, Users: h.reg.Members(roomID)}
	v.ActiveUsers = len(v.Users)
	if rec != nil {
		v.Name = rec.Name
		created := rec.CreatedAt
		v.CreatedAt = &created
	}
	return v
}

// roomInfo builds the join reply. Store failures only shrink the reply:
// presence keeps working without the database.
func (h *Hub) roomInfo(ctx context.Context, roomID string) RoomInfoMsg {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var rec *store.Room
	r, err := h.rooms.FindRoom(ctx, roomID)
	switch {
	case err == nil:
		rec = &r
	case !errors.Is(err, store.ErrNotFound):
		h.log.Warn("ws.room_info.room", "room", roomID, "err", err)
	}

	msgs, err := h.rooms.FindMessages(ctx, roomID, h.cfg.HistoryLimit)
	if err != nil {
		h.log.Warn("ws.room_info.messages", "room", roomID, "err", err)
		msgs = nil
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	return RoomInfoMsg{Type: TypeRoomInfo, Data: h.View(roomID, rec), Messages: msgs}
}
