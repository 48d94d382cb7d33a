// Package turn runs an embedded TURN relay for clients that cannot reach each
// other directly, and mints the time-limited credentials it accepts.
package turn

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/turn/v4"
)

type Config struct {
	Listen   string // udp host:port
	PublicIP string // address handed out in relay candidates
	Realm    string
	Secret   string // shared secret for time-windowed credentials
}

type Server struct {
	srv  *turn.Server
	addr net.Addr
	log  *slog.Logger
}

// Start binds the UDP listener and serves TURN allocations until Close
func Start(cfg Config, log *slog.Logger) (*Server, error) {
	ip := net.ParseIP(cfg.PublicIP)
	if ip == nil {
		return nil, fmt.Errorf("turn: invalid public ip %q", cfg.PublicIP)
	}
	if cfg.Secret == "" {
		return nil, fmt.Errorf("turn: secret required")
	}

	pc, err := net.ListenPacket("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("turn listen: %w", err)
	}

	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = logging.LogLevelWarn

	srv, err := turn.NewServer(turn.ServerConfig{
		Realm:         cfg.Realm,
		AuthHandler:   turn.NewLongTermAuthHandler(cfg.Secret, lf.NewLogger("turn-auth")),
		LoggerFactory: lf,
		PacketConnConfigs: []turn.PacketConnConfig{
			{
				PacketConn: pc,
				RelayAddressGenerator: &turn.RelayAddressGeneratorStatic{
					RelayAddress: ip,
					Address:      "0.0.0.0",
				},
			},
		},
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("turn server: %w", err)
	}

	log.Info("turn.listening", "addr", pc.LocalAddr().String(), "relay_ip", cfg.PublicIP, "realm", cfg.Realm)
	return &Server{srv: srv, addr: pc.LocalAddr(), log: log}, nil
}

func (s *Server) Addr() net.Addr { return s.addr }

func (s *Server) Close() error {
	s.log.Info("turn.stopped")
	return s.srv.Close()
}

// Credentials returns a username/password pair valid for ttl against any
// server sharing secret
func Credentials(secret string, ttl time.Duration) (username, password string, err error) {
	return turn.GenerateLongTermCredentials(secret, ttl)
}
