//go:build tools

// Package roomchat pins the tools run by go generate.
package roomchat

import (
	_ "go.uber.org/mock/mockgen"
)
