package broker

import (
	"encoding/json"
	"time"
)

// Message is one entry of a room log. Sender is empty for system messages.
type Message struct {
	Sender    string
	Text      string
	Timestamp time.Time
	Color     string
	EditedAt  *time.Time
	DeletedAt *time.Time
}

func (m Message) Deleted() bool { return m.DeletedAt != nil }

func (m Message) System() bool { return m.Sender == "" }

// wireMessage is the JSON shape sent to clients. Times are Unix milliseconds.
type wireMessage struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Color     string `json:"color"`
	EditedAt  *int64 `json:"editedAt,omitempty"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`
}

// MarshalJSON hides the text of tombstoned messages.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp.UnixMilli(),
		Color:     m.Color,
		EditedAt:  toMillis(m.EditedAt),
		DeletedAt: toMillis(m.DeletedAt),
	}
	if m.Deleted() {
		w.Text = ""
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		Sender:    w.Sender,
		Text:      w.Text,
		Timestamp: time.UnixMilli(w.Timestamp),
		Color:     w.Color,
		EditedAt:  fromMillis(w.EditedAt),
		DeletedAt: fromMillis(w.DeletedAt),
	}
	return nil
}

func toMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := time.UnixMilli(*ms)
	return &t
}
