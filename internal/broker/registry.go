package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const defaultMaxMessageRunes = 2000

// State is the lifecycle position of a connection.
type State int

const (
	Disconnected State = iota
	Connected
	Joined
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Joined:
		return "joined"
	default:
		return "disconnected"
	}
}

// Options tunes a Registry. Zero values pick defaults.
type Options struct {
	Journal         Journal
	MaxMessageRunes int
}

// Registry maps live connections to at most one (user, room) pair and
// drives every state transition of a connection.
type Registry struct {
	log       *slog.Logger
	users     *UserDirectory
	rooms     *RoomStore
	router    *Router
	journal   Journal
	validate  *validator.Validate
	maxRunes  int
	timestamp func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// session is guarded by its own mutex, always taken before any room lock.
type session struct {
	mu    sync.Mutex
	peer  Peer
	color string
	state State
	user  *User
	room  *Room
}

func NewRegistry(log *slog.Logger, users *UserDirectory, rooms *RoomStore, router *Router, opts Options) *Registry {
	journal := opts.Journal
	if journal == nil {
		journal = nopJournal{}
	}
	maxRunes := opts.MaxMessageRunes
	if maxRunes <= 0 {
		maxRunes = defaultMaxMessageRunes
	}
	return &Registry{
		log:       log,
		users:     users,
		rooms:     rooms,
		router:    router,
		journal:   journal,
		validate:  validator.New(),
		maxRunes:  maxRunes,
		timestamp: time.Now,
		sessions:  make(map[string]*session),
	}
}

// Connect registers a new transport channel in the Connected state.
func (r *Registry) Connect(peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[peer.ID()]; exists {
		return fmt.Errorf("connect %s: connection already registered", peer.ID())
	}
	r.sessions[peer.ID()] = &session{
		peer:  peer,
		color: colorFor(peer.ID()),
		state: Connected,
	}
	r.log.Debug("Connection opened", "connection", peer.ID())
	return nil
}

// Dispatch routes an inbound event to the matching transition.
func (r *Registry) Dispatch(connID string, evt Event) error {
	switch e := evt.(type) {
	case JoinEvent:
		return r.Join(connID, e.UserName, e.RoomName)
	case MessageEvent:
		return r.Message(connID, e.Text)
	case TypingEvent:
		return r.Typing(connID, e.IsTyping)
	case EditEvent:
		return r.Edit(connID, e.NewText)
	case DeleteEvent:
		return r.Delete(connID)
	case LeaveEvent:
		r.Leave(connID)
		return nil
	case DisconnectEvent:
		r.Disconnect(connID)
		return nil
	default:
		return fmt.Errorf("dispatch %T: unsupported event", evt)
	}
}

// Join attaches the connection to roomName as userName, leaving any room it
// was in first. Identity conflicts are answered on the connection only.
func (r *Registry) Join(connID, userName, roomName string) error {
	s, ok := r.session(connID)
	if !ok {
		return ErrUnknownConnection
	}

	req := JoinEvent{UserName: strings.TrimSpace(userName), RoomName: strings.TrimSpace(roomName)}
	if err := r.validate.Struct(req); err != nil {
		s.peer.Send(joinResponse(req, ErrInvalidJoin))
		return fmt.Errorf("join: %w", ErrInvalidJoin)
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return ErrUnknownConnection
	}
	// A taken name leaves the session exactly as it was.
	keepName := s.state == Joined && s.user.Name == req.UserName
	if !keepName {
		if err := r.users.Register(req.UserName); err != nil {
			s.mu.Unlock()
			s.peer.Send(joinResponse(req, ErrIdentityConflict))
			r.log.Info("Join rejected", "connection", connID, "user", req.UserName, "room", req.RoomName, "error", err)
			return err
		}
	}
	var previous *Snapshot
	if s.state == Joined {
		old := s.user.Name
		snap := r.detachLocked(s)
		if !keepName {
			r.users.Unregister(old)
		}
		previous = &snap
	}
	// The response goes out before the first room update can reach the peer.
	s.peer.Send(joinResponse(req, nil))
	user := User{Name: req.UserName, Color: s.color, RoomName: req.RoomName, ConnectionID: connID}
	room := r.rooms.GetOrCreate(req.RoomName)
	snap := room.Join(user, s.peer)
	s.user, s.room, s.state = &user, room, Joined
	s.mu.Unlock()

	r.log.Info("User joined", "connection", connID, "user", user.Name, "room", room.Name())
	r.record(ActivityJoined, room.Name(), user.Name, "")
	r.publishMembership(previous)
	r.router.Publish(snap, UpdateChat, UpdateUsers, UpdateTyping)
	return nil
}

// Leave detaches the connection from its room and frees its name. It is a
// no-op for a connection that has not joined.
func (r *Registry) Leave(connID string) {
	s, ok := r.session(connID)
	if !ok {
		return
	}
	s.mu.Lock()
	if s.state != Joined {
		s.mu.Unlock()
		return
	}
	snap := r.leaveLocked(s)
	s.mu.Unlock()
	r.publishMembership(&snap)
}

// Disconnect is an implicit leave followed by forgetting the connection.
// Calling it more than once has no further effect.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	s, ok := r.sessions[connID]
	delete(r.sessions, connID)
	r.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	var snap *Snapshot
	if s.state == Joined {
		left := r.leaveLocked(s)
		snap = &left
	}
	s.state = Disconnected
	s.mu.Unlock()

	r.log.Debug("Connection closed", "connection", connID)
	r.publishMembership(snap)
}

func (r *Registry) Message(connID, text string) error {
	if err := r.checkText(text); err != nil {
		return err
	}
	s, user, room, err := r.lockJoined(connID)
	if err != nil {
		return err
	}
	_, snap := room.AppendMessage(user.Name, text, user.Color)
	s.mu.Unlock()

	r.log.Debug("Message appended", "user", user.Name, "room", room.Name())
	r.record(ActivityMessage, room.Name(), user.Name, text)
	r.router.Publish(snap, UpdateChat)
	return nil
}

func (r *Registry) Typing(connID string, isTyping bool) error {
	s, user, room, err := r.lockJoined(connID)
	if err != nil {
		return err
	}
	snap, changed := room.SetTyping(user.Name, isTyping)
	s.mu.Unlock()

	if changed {
		r.router.Publish(snap, UpdateTyping)
	}
	return nil
}

// Edit rewrites the sender's most recent message. Nothing is broadcast when
// there is no eligible message.
func (r *Registry) Edit(connID, newText string) error {
	if err := r.checkText(newText); err != nil {
		return err
	}
	s, user, room, err := r.lockJoined(connID)
	if err != nil {
		return err
	}
	snap, err := room.EditMostRecent(user.Name, newText)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	r.record(ActivityEdited, room.Name(), user.Name, newText)
	r.router.Publish(snap, UpdateChat)
	return nil
}

func (r *Registry) Delete(connID string) error {
	s, user, room, err := r.lockJoined(connID)
	if err != nil {
		return err
	}
	snap, err := room.DeleteMostRecent(user.Name)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	r.record(ActivityDeleted, room.Name(), user.Name, "")
	r.router.Publish(snap, UpdateChat)
	return nil
}

// State reports where connID is in its lifecycle.
func (r *Registry) State(connID string) State {
	s, ok := r.session(connID)
	if !ok {
		return Disconnected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentUser returns the identity held by connID, if joined.
func (r *Registry) CurrentUser(connID string) (User, bool) {
	s, ok := r.session(connID)
	if !ok {
		return User{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

func (r *Registry) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) session(connID string) (*session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

// lockJoined returns the session locked. The caller must unlock it.
func (r *Registry) lockJoined(connID string) (*session, User, *Room, error) {
	s, ok := r.session(connID)
	if !ok {
		return nil, User{}, nil, ErrUnknownConnection
	}
	s.mu.Lock()
	if s.state != Joined {
		s.mu.Unlock()
		return nil, User{}, nil, ErrNotJoined
	}
	return s, *s.user, s.room, nil
}

// leaveLocked must be called with s.mu held and s joined.
func (r *Registry) leaveLocked(s *session) Snapshot {
	name := s.user.Name
	snap := r.detachLocked(s)
	r.users.Unregister(name)
	return snap
}

// detachLocked removes the session from its room but keeps its name claimed.
func (r *Registry) detachLocked(s *session) Snapshot {
	user, room := *s.user, s.room
	snap, _ := room.Leave(user.Name)
	s.user, s.room, s.state = nil, nil, Connected

	r.log.Info("User left", "connection", user.ConnectionID, "user", user.Name, "room", room.Name())
	r.record(ActivityLeft, room.Name(), user.Name, "")
	return snap
}

func (r *Registry) publishMembership(snap *Snapshot) {
	if snap == nil {
		return
	}
	r.router.Publish(*snap, UpdateChat, UpdateUsers, UpdateTyping)
}

func (r *Registry) checkText(text string) error {
	if strings.TrimSpace(text) == "" || utf8.RuneCountInString(text) > r.maxRunes {
		return ErrInvalidMessage
	}
	return nil
}

func (r *Registry) record(kind ActivityKind, room, user, text string) {
	r.journal.Record(Activity{Kind: kind, Room: room, User: user, Text: text, At: r.timestamp()})
}

func joinResponse(req JoinEvent, err error) Outbound {
	resp := JoinResponse{UserName: req.UserName, RoomName: req.RoomName}
	switch {
	case err == nil:
	case errors.Is(err, ErrIdentityConflict):
		resp.Error = fmt.Sprintf("User name %q is already taken", req.UserName)
	default:
		resp.Error = "User name and room name are required"
	}
	return Outbound{Event: EventJoinResponse, Data: resp}
}
