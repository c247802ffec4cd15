package broker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoomStore_GetOrCreate_SameInstance(t *testing.T) {
	req := require.New(t)
	store := NewRoomStore(nil)

	rooms := make([]*Room, 32)
	var wg sync.WaitGroup
	for i := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rooms[i] = store.GetOrCreate("general")
		}()
	}
	wg.Wait()

	for _, room := range rooms {
		req.Same(rooms[0], room)
	}
	req.Equal(1, store.Len())
}

func TestRoomStore_Lookup_DoesNotCreate(t *testing.T) {
	req := require.New(t)
	store := NewRoomStore(nil)

	_, ok := store.Lookup("general")
	req.False(ok)
	req.Equal(0, store.Len())

	created := store.GetOrCreate("general")
	found, ok := store.Lookup("general")
	req.True(ok)
	req.Same(created, found)
}
