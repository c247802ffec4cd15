package broker

import (
	"fmt"
	"sync"
)

// UserDirectory is the process-wide table of active user names.
type UserDirectory struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func NewUserDirectory() *UserDirectory {
	return &UserDirectory{names: make(map[string]struct{})}
}

// Register claims name. Exactly one of several concurrent calls for the same
// name succeeds; the others get ErrIdentityConflict.
func (d *UserDirectory) Register(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.names[name]; taken {
		return fmt.Errorf("register %q: %w", name, ErrIdentityConflict)
	}
	d.names[name] = struct{}{}
	return nil
}

func (d *UserDirectory) Unregister(name string) {
	d.mu.Lock()
	delete(d.names, name)
	d.mu.Unlock()
}

func (d *UserDirectory) IsTaken(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, taken := d.names[name]
	return taken
}

func (d *UserDirectory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.names)
}
