package broker

import "time"

type ActivityKind string

const (
	ActivityJoined  ActivityKind = "joined"
	ActivityLeft    ActivityKind = "left"
	ActivityMessage ActivityKind = "message"
	ActivityEdited  ActivityKind = "edited"
	ActivityDeleted ActivityKind = "deleted"
)

// Activity is one audited room event.
type Activity struct {
	Kind ActivityKind
	Room string
	User string
	Text string
	At   time.Time
}

// Journal receives room activity after it has been applied. Record must not
// block the caller.
//
//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_journal.go -package=mocks . Journal
type Journal interface {
	Record(Activity)
}

type nopJournal struct{}

func (nopJournal) Record(Activity) {}
