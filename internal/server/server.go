package server

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scythe504/turing-party-backend/internal/events"
	"github.com/scythe504/turing-party-backend/internal/game"
)

const (
	DefaultHeartbeatInterval = 15 * time.Second
	// PlayerHeader carries the caller's player id on room actions.
	PlayerHeader = "X-Player-Id"
)

type Config struct {
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	RateLimitRPS      float64
	RateLimitBurst    int
}

// Server exposes the orchestrator over HTTP, SSE and WebSocket.
type Server struct {
	manager  *game.Manager
	bus      *events.Bus
	cfg      Config
	limiter  *ipLimiter
	upgrader websocket.Upgrader
}

func NewServer(manager *game.Manager, bus *events.Bus, cfg Config) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	s := &Server{
		manager: manager,
		bus:     bus,
		cfg:     cfg,
		limiter: newIPLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	return s
}

func (s *Server) originAllowed(origin string) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}
