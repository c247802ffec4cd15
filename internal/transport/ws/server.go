// Package ws carries the chat event protocol over gorilla websockets.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The development client is served from another port.
		return true
	},
}

type Server struct {
	log        *slog.Logger
	registry   *broker.Registry
	rooms      *broker.RoomStore
	sendBuffer int
}

func NewServer(log *slog.Logger, registry *broker.Registry, rooms *broker.RoomStore, sendBuffer int) *Server {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Server{log: log, registry: registry, rooms: rooms, sendBuffer: sendBuffer}
}

// Handler routes the websocket endpoint and the health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(protocol.Path, s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return s.loggingMiddleware(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		if !errors.Is(err, http.ErrHijacked) {
			s.log.Warn("Websocket upgrade failed", "error", err)
		}
		return
	}

	client := newWSConn(uuid.NewString(), s.log, s.registry, conn, s.sendBuffer)
	if err := s.registry.Connect(client); err != nil {
		s.log.Error("Connection not registered", "error", err)
		_ = conn.Close()
		return
	}

	go client.writeLoop()
	client.readLoop()
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:      "ok",
		Rooms:       s.rooms.Len(),
		Connections: s.registry.Connections(),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
