package broker

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

var palette = []string{
	"#e53935", "#d81b60", "#8e24aa", "#5e35b1",
	"#3949ab", "#1e88e5", "#039be5", "#00897b",
	"#43a047", "#7cb342", "#f4511e", "#6d4c41",
}

// colorFor derives a session color from the connection id, so a connection
// keeps its color across rooms.
func colorFor(connectionID string) string {
	sum := blake2b.Sum256([]byte(connectionID))
	return palette[binary.BigEndian.Uint64(sum[:8])%uint64(len(palette))]
}
