package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"voice-rooms/internal/store"
	"voice-rooms/internal/turn"
	"voice-rooms/internal/ws"
)

type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type ICEAPI struct {
	STUN    []string
	TURN    []string
	Secret  string
	CredTTL time.Duration
	Log     *slog.Logger
}

// Servers lists the STUN/TURN servers clients should hand to RTCPeerConnection
func (a *ICEAPI) Servers(w http.ResponseWriter, _ *http.Request) {
	out := []ICEServer{}
	if len(a.STUN) > 0 {
		out = append(out, ICEServer{URLs: a.STUN})
	}
	if len(a.TURN) > 0 {
		s := ICEServer{URLs: a.TURN}
		if a.Secret != "" {
			user, pass, err := turn.Credentials(a.Secret, a.CredTTL)
			if err != nil {
				a.Log.Error("ice.credentials", "err", err)
				writeError(w, http.StatusInternalServerError, "could not issue credentials")
				return
			}
			s.Username, s.Credential = user, pass
		}
		out = append(out, s)
	}
	writeJSON(w, map[string]any{"ice_servers": out})
}

type HealthAPI struct {
	DB  store.Store
	Hub *ws.Hub
}

// Health reports store connectivity plus live presence counts
func (a *HealthAPI) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	reg := a.Hub.Registry()
	resp := map[string]any{
		"status":      "healthy",
		"database":    "connected",
		"rooms":       reg.Rooms(),
		"connections": reg.Connections(),
	}
	if err := a.DB.Ping(ctx); err != nil {
		resp["status"] = "unhealthy"
		resp["database"] = "disconnected"
		writeJSONStatus(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, resp)
}

// Root answers GET /api/
func Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"message": "Voice Chat API"})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSONStatus(w, code, map[string]string{"error": msg})
}
