package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	app "voice-rooms/internal/app"
	httpx "voice-rooms/internal/http"
	store "voice-rooms/internal/store"
	turn "voice-rooms/internal/turn"
	ws "voice-rooms/internal/ws"
	"voice-rooms/pkg/metrics"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg := app.LoadConfig()
	logger := app.NewLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Error("config", "err", err)
		log.Fatal(err)
	}

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres connection + migrations
	pg, err := store.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("postgres connect", "err", err)
		log.Fatal(err)
	}
	defer pg.Close()
	if err := store.RunMigrations(ctx, pg, logger); err != nil {
		logger.Error("migrations", "err", err)
		log.Fatal(err)
	}

	// Optional redis room cache
	var db store.Store = pg
	if cfg.RedisAddr != "" {
		rdb, err := store.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		cached := store.NewCachedStore(pg, rdb, cfg.RoomCacheTTL, logger)
		defer cached.Close()
		db = cached
	}

	uploads, err := store.NewUploads(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		logger.Error("uploads", "err", err)
		log.Fatal(err)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// WebSocket hub
	hub := ws.NewHub(logger, ws.NewRegistry(logger, m), db, m, ws.HubConfig{
		Origins:      cfg.WSOriginPatterns(),
		SendBuffer:   cfg.WSSendBuffer,
		PingInterval: cfg.WSPingInterval,
		HistoryLimit: cfg.HistoryLimit,
	})

	// Embedded TURN relay
	if cfg.TURNEnabled {
		ts, err := turn.Start(turn.Config{
			Listen:   cfg.TURNListen,
			PublicIP: cfg.TURNPublicIP,
			Realm:    cfg.TURNRealm,
			Secret:   cfg.TURNSecret,
		}, logger)
		if err != nil {
			logger.Error("turn start", "err", err)
			log.Fatal(err)
		}
		defer ts.Close()
	}

	// HTTP + WS router
	router := httpx.NewRouter(cfg, logger, hub, db, uploads, m)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	// shutdown
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Shutdown(shutdownCtx)
	// hijacked websockets outlive srv.Shutdown, close them before the stores go away
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ws.shutdown", "err", err)
	}

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
