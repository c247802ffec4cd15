package broker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserDirectory_Register_Conflict(t *testing.T) {
	req := require.New(t)
	dir := NewUserDirectory()

	// Given alice is registered
	req.NoError(dir.Register("alice"))
	req.True(dir.IsTaken("alice"))

	// When alice registers again
	err := dir.Register("alice")

	// Then the second registration conflicts
	req.ErrorIs(err, ErrIdentityConflict)
	req.Equal(1, dir.Len())
}

func TestUserDirectory_Unregister_Idempotent(t *testing.T) {
	req := require.New(t)
	dir := NewUserDirectory()
	req.NoError(dir.Register("alice"))

	dir.Unregister("alice")
	dir.Unregister("alice")

	req.False(dir.IsTaken("alice"))
	req.NoError(dir.Register("alice"))
}

func TestUserDirectory_Register_ConcurrentSameName(t *testing.T) {
	req := require.New(t)
	dir := NewUserDirectory()

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range 64 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := dir.Register("alice")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrIdentityConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	req.Equal(int32(1), wins.Load())
	req.Equal(int32(63), conflicts.Load())
}
