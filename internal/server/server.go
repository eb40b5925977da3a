package server

import (
	"log/slog"
	"net/http"

	"github.com/Tyrowin/medrelay/internal/relay"
	"github.com/gorilla/websocket"
)

// Server bundles the WebSocket upgrader, origin policy and relay hub behind
// the HTTP handlers.
type Server struct {
	config   *Config
	hub      *relay.Hub
	origins  *originPolicy
	upgrader websocket.Upgrader
	log      *slog.Logger
}

// NewServer creates a Server. The hub must be running before connections
// arrive.
func NewServer(cfg *Config, hub *relay.Hub, log *slog.Logger) *Server {
	s := &Server{
		config:  cfg,
		hub:     hub,
		origins: newOriginPolicy(cfg.OriginList(), log),
		log:     log,
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.origins.allows(r) {
		return true
	}
	s.log.Warn("blocked websocket connection from disallowed origin",
		"origin", r.Header.Get("Origin"), "addr", r.RemoteAddr)
	return false
}
