package broker

import (
	"log/slog"
	"sync"
)

// Server to client event names.
const (
	EventJoinResponse = "join-response"
	EventChatUpdate   = "chat update"
	EventRoomUsers    = "room-users"
	EventTyping       = "typing"
)

// Outbound is one event pushed to a connection.
type Outbound struct {
	Event string
	Data  any
}

// Peer is the sending half of a connection. Send must not block: the
// transport queues or drops.
//
//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_peer.go -package=mocks . Peer
type Peer interface {
	ID() string
	Send(Outbound)
}

// JoinResponse answers a join attempt. A non-empty Error means failure.
type JoinResponse struct {
	UserName string `json:"userName"`
	RoomName string `json:"roomName"`
	Error    string `json:"error,omitempty"`
}

type UpdateKind int

const (
	UpdateChat UpdateKind = iota
	UpdateUsers
	UpdateTyping
	updateKinds
)

func (k UpdateKind) event() string {
	switch k {
	case UpdateChat:
		return EventChatUpdate
	case UpdateUsers:
		return EventRoomUsers
	default:
		return EventTyping
	}
}

// fanoutGate remembers, per update kind, the newest room version handed to
// members so an older snapshot is never delivered after a newer one.
type fanoutGate struct {
	mu   sync.Mutex
	last [updateKinds]uint64
}

// Router pushes room snapshots to the members they were taken from.
type Router struct {
	log *slog.Logger
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{log: log}
}

// Publish delivers the requested parts of snap to every member captured in
// it. Delivery is best-effort: no acknowledgment, no retry.
func (r *Router) Publish(snap Snapshot, kinds ...UpdateKind) {
	if snap.gate == nil {
		return
	}
	snap.gate.mu.Lock()
	defer snap.gate.mu.Unlock()

	for _, kind := range kinds {
		if snap.Version <= snap.gate.last[kind] {
			r.log.Debug("Stale snapshot skipped", "room", snap.Room, "event", kind.event(), "version", snap.Version)
			continue
		}
		snap.gate.last[kind] = snap.Version

		out := Outbound{Event: kind.event(), Data: snap.payload(kind)}
		for _, peer := range snap.peers {
			peer.Send(out)
		}
	}
}

func (s Snapshot) payload(kind UpdateKind) any {
	switch kind {
	case UpdateChat:
		return s.Log
	case UpdateUsers:
		return s.Members
	default:
		return s.Typing
	}
}
