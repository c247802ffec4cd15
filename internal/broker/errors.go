package broker

import "errors"

var (
	ErrIdentityConflict  = errors.New("user name is already taken")
	ErrInvalidJoin       = errors.New("user name and room name are required")
	ErrNoMessageToEdit   = errors.New("no message to edit")
	ErrNoMessageToDelete = errors.New("no message to delete")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrInvalidMessage    = errors.New("message text is empty or too long")
	ErrUnknownConnection = errors.New("unknown connection")
)
