package httpx

import (
	"log/slog"
	"net/http"

	"voice-rooms/internal/app"
	"voice-rooms/internal/store"
	"voice-rooms/internal/ws"
	"voice-rooms/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, logger *slog.Logger, hub *ws.Hub, db store.Store, uploads *store.Uploads, m *metrics.Metrics) http.Handler {
	mw := NewMiddleware(cfg)
	rooms := &RoomsAPI{DB: db, Hub: hub, Log: logger}
	msgs := &MessagesAPI{
		DB:           db,
		Hub:          hub,
		Uploads:      uploads,
		Metrics:      m,
		Log:          logger,
		MaxLen:       cfg.MessageMaxLen,
		DefaultLimit: cfg.HistoryLimit,
	}
	ice := &ICEAPI{
		STUN:    cfg.STUNURLs,
		TURN:    cfg.TURNURLs,
		Secret:  cfg.TURNSecret,
		CredTTL: cfg.TURNCredTTL,
		Log:     logger,
	}
	health := &HealthAPI{DB: db, Hub: hub}

	mux := http.NewServeMux()

	// Health / readiness / metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoint
	mux.HandleFunc("GET /api/ws/{room_id}", hub.ServeWS)

	mux.HandleFunc("GET /api/{$}", Root)
	mux.HandleFunc("GET /api/health", health.Health)
	mux.HandleFunc("GET /api/ice-servers", ice.Servers)

	// Rooms
	mux.HandleFunc("POST /api/rooms", rooms.Create)
	mux.HandleFunc("GET /api/rooms", rooms.List)
	mux.HandleFunc("GET /api/rooms/{room_id}", rooms.Get)

	// Chat
	mux.HandleFunc("GET /api/rooms/{room_id}/messages", msgs.List)
	mux.HandleFunc("POST /api/rooms/{room_id}/messages", msgs.Create)
	mux.HandleFunc("POST /api/rooms/{room_id}/upload", msgs.Upload)
	mux.HandleFunc("GET /api/uploads/{name}", msgs.ServeUpload)

	return mw.Wrap(mux) // CORS + rate limit applied globally
}
