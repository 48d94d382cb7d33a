package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"voice-rooms/internal/store"
	"voice-rooms/internal/ws"
	"voice-rooms/pkg/metrics"
)

const maxHistory = 200

type MessagesAPI struct {
	DB      store.Store
	Hub     *ws.Hub
	Uploads *store.Uploads
	Metrics *metrics.Metrics
	Log     *slog.Logger

	MaxLen       int
	DefaultLimit int
}

type createMessageReq struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Message     string `json:"message"`
	MessageType string `json:"message_type"`
}

// List returns the latest messages of a room, oldest first
func (a *MessagesAPI) List(w http.ResponseWriter, r *http.Request) {
	limit := a.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}

	roomID := r.PathValue("room_id")
	msgs, err := a.DB.FindMessages(r.Context(), roomID, limit)
	if err != nil {
		a.Log.Error("messages.list", "room", roomID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load messages")
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	writeJSON(w, map[string]any{"messages": msgs})
}

// Create persists a text message and pushes it to everyone in the room
func (a *MessagesAPI) Create(w http.ResponseWriter, r *http.Request) {
	var req createMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Username = strings.TrimSpace(req.Username)
	req.Message = strings.TrimSpace(req.Message)
	if req.UserID == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "user_id and username are required")
		return
	}
	if req.Message == "" || utf8.RuneCountInString(req.Message) > a.MaxLen {
		writeError(w, http.StatusBadRequest, "message must be 1-"+strconv.Itoa(a.MaxLen)+" characters")
		return
	}
	if req.MessageType != "" && req.MessageType != store.MessageText {
		writeError(w, http.StatusBadRequest, "use the upload endpoint for files")
		return
	}

	_ = a.publish(w, r, store.Message{
		RoomID:      r.PathValue("room_id"),
		UserID:      req.UserID,
		Username:    req.Username,
		Message:     req.Message,
		MessageType: store.MessageText,
	})
}

// Upload stores a multipart file and posts it to the room as an image or file message
func (a *MessagesAPI) Upload(w http.ResponseWriter, r *http.Request) {
	// headroom for the other form fields
	r.Body = http.MaxBytesReader(w, r.Body, a.Uploads.MaxSize()+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	userID := strings.TrimSpace(r.FormValue("user_id"))
	username := strings.TrimSpace(r.FormValue("username"))
	if userID == "" || username == "" {
		writeError(w, http.StatusBadRequest, "user_id and username are required")
		return
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	st, err := a.Uploads.Save(f)
	if errors.Is(err, store.ErrTooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if err != nil {
		a.Log.Error("messages.upload", "err", err)
		writeError(w, http.StatusInternalServerError, "could not store file")
		return
	}

	kind := store.MessageFile
	if st.IsImage() {
		kind = store.MessageImage
	}
	ok := a.publish(w, r, store.Message{
		RoomID:      r.PathValue("room_id"),
		UserID:      userID,
		Username:    username,
		Message:     filepath.Base(hdr.Filename),
		MessageType: kind,
		FileURL:     "/api/uploads/" + st.Name,
	})
	if !ok {
		// nothing references the file
		if err := a.Uploads.Remove(st.Name); err != nil {
			a.Log.Warn("messages.upload.cleanup", "name", st.Name, "err", err)
		}
	}
}

// publish stamps, persists and broadcasts m, then writes it back.
// It reports false when the message was not saved.
func (a *MessagesAPI) publish(w http.ResponseWriter, r *http.Request, m store.Message) bool {
	m.ID = uuid.NewString()
	m.Timestamp = time.Now().UTC()
	if err := a.DB.InsertMessage(r.Context(), m); err != nil {
		a.Log.Error("messages.insert", "room", m.RoomID, "err", err)
		writeError(w, http.StatusInternalServerError, "could not save message")
		return false
	}
	a.Metrics.Message(m.MessageType)
	a.Hub.PublishMessage(m)
	writeJSON(w, m)
	return true
}

// ServeUpload streams a stored attachment back with the type it was saved as.
// Only images render inline; everything else is a download.
func (a *MessagesAPI) ServeUpload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, ct, err := a.Uploads.Open(name)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		a.Log.Error("messages.serve_upload", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "could not read file")
		return
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		a.Log.Error("messages.serve_upload", "name", name, "err", err)
		writeError(w, http.StatusInternalServerError, "could not read file")
		return
	}

	h := w.Header()
	h.Set("Content-Type", ct)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; sandbox")
	if !strings.HasPrefix(ct, "image/") {
		h.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	}
	http.ServeContent(w, r, name, fi.ModTime(), f)
}
