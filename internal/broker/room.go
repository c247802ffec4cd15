package broker

import (
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// User is the identity a connection holds while joined to a room.
type User struct {
	Name         string
	Color        string
	RoomName     string
	ConnectionID string
}

// Member is the public view of a room member.
type Member struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type member struct {
	user User
	peer Peer
}

// Snapshot is a consistent copy of a room's state taken inside the same
// critical section as the mutation it reports.
type Snapshot struct {
	Room    string
	Version uint64
	Log     []Message
	Members []Member
	Typing  []string

	peers []Peer
	gate  *fanoutGate
}

// Room owns one room's log, membership and typing presence. All mutations
// are serialized by mu, and every mutation bumps version.
type Room struct {
	name string
	now  func() time.Time
	gate fanoutGate

	mu      sync.Mutex
	version uint64
	last    time.Time
	log     []Message
	members map[string]member
	joined  []string
	typing  []string
}

func newRoom(name string, now func() time.Time) *Room {
	if now == nil {
		now = time.Now
	}
	return &Room{
		name:    name,
		now:     now,
		members: make(map[string]member),
	}
}

func (r *Room) Name() string { return r.name }

// Join adds the user as a member and announces it in the log.
func (r *Room) Join(user User, peer Peer) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[user.Name]; !ok {
		r.joined = append(r.joined, user.Name)
	}
	r.members[user.Name] = member{user: user, peer: peer}
	r.appendLocked("", fmt.Sprintf("%s has joined the room", user.Name), "")
	r.version++
	return r.snapshotLocked()
}

// Leave removes the member from both membership and typing and announces
// the departure. ok is false when name was not a member.
func (r *Room) Leave(name string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[name]; !ok {
		return r.snapshotLocked(), false
	}
	delete(r.members, name)
	r.joined = lo.Without(r.joined, name)
	r.typing = lo.Without(r.typing, name)
	r.appendLocked("", fmt.Sprintf("%s has left the room", name), "")
	r.version++
	return r.snapshotLocked(), true
}

func (r *Room) AppendMessage(sender, text, color string) (Message, Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.appendLocked(sender, text, color)
	r.version++
	return msg, r.snapshotLocked()
}

// EditMostRecent rewrites the text of sender's latest message that is not
// deleted. Sender, timestamp and position stay unchanged.
func (r *Room) EditMostRecent(sender, newText string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.mostRecentLocked(sender)
	if i < 0 {
		return Snapshot{}, ErrNoMessageToEdit
	}
	at := r.tickLocked()
	r.log[i].Text = newText
	r.log[i].EditedAt = &at
	r.version++
	return r.snapshotLocked(), nil
}

// DeleteMostRecent tombstones sender's latest message that is not deleted.
// The entry keeps its place in the log.
func (r *Room) DeleteMostRecent(sender string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.mostRecentLocked(sender)
	if i < 0 {
		return Snapshot{}, ErrNoMessageToDelete
	}
	at := r.tickLocked()
	r.log[i].DeletedAt = &at
	r.version++
	return r.snapshotLocked(), nil
}

// SetTyping updates presence for a member. Non-members are ignored and
// changed reports whether the typing set moved.
func (r *Room) SetTyping(name string, isTyping bool) (snap Snapshot, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[name]; !ok {
		return r.snapshotLocked(), false
	}
	typing := lo.Contains(r.typing, name)
	switch {
	case isTyping && !typing:
		r.typing = append(r.typing, name)
	case !isTyping && typing:
		r.typing = lo.Without(r.typing, name)
	default:
		return r.snapshotLocked(), false
	}
	r.version++
	return r.snapshotLocked(), true
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

func (r *Room) appendLocked(sender, text, color string) Message {
	msg := Message{
		Sender:    sender,
		Text:      text,
		Timestamp: r.tickLocked(),
		Color:     color,
	}
	r.log = append(r.log, msg)
	return msg
}

func (r *Room) mostRecentLocked(sender string) int {
	for i := len(r.log) - 1; i >= 0; i-- {
		if r.log[i].Sender == sender && !r.log[i].Deleted() {
			return i
		}
	}
	return -1
}

// tickLocked returns the current time, never earlier than the last one
// handed out by this room.
func (r *Room) tickLocked() time.Time {
	now := r.now()
	if now.Before(r.last) {
		now = r.last
	}
	r.last = now
	return now
}

func (r *Room) snapshotLocked() Snapshot {
	members := make([]Member, 0, len(r.joined))
	peers := make([]Peer, 0, len(r.joined))
	for _, name := range r.joined {
		m := r.members[name]
		members = append(members, Member{Name: m.user.Name, Color: m.user.Color})
		if m.peer != nil {
			peers = append(peers, m.peer)
		}
	}
	log := make([]Message, len(r.log))
	copy(log, r.log)
	typing := make([]string, len(r.typing))
	copy(typing, r.typing)

	return Snapshot{
		Room:    r.name,
		Version: r.version,
		Log:     log,
		Members: members,
		Typing:  typing,
		peers:   peers,
		gate:    &r.gate,
	}
}
