package broker

// Event is an inbound client intent. The set of implementations is closed;
// Registry.Dispatch handles each one.
type Event interface {
	isEvent()
}

type JoinEvent struct {
	UserName string `json:"userName" validate:"required"`
	RoomName string `json:"roomName" validate:"required"`
}

type MessageEvent struct {
	Text string
}

type TypingEvent struct {
	RoomName string `json:"roomName"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type EditEvent struct {
	NewText string `json:"newText"`
}

type DeleteEvent struct{}

type LeaveEvent struct{}

type DisconnectEvent struct{}

func (JoinEvent) isEvent()       {}
func (MessageEvent) isEvent()    {}
func (TypingEvent) isEvent()     {}
func (EditEvent) isEvent()       {}
func (DeleteEvent) isEvent()     {}
func (LeaveEvent) isEvent()      {}
func (DisconnectEvent) isEvent() {}
