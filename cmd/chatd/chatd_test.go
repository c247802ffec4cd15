package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/config"
	"roomchat/internal/protocol"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestServeFlags_OverrideOnlyWhenSet(t *testing.T) {
	req := require.New(t)
	cmd := newServeCmd()
	req.NoError(cmd.Flags().Parse([]string{"--port", "9100"}))

	cfg := config.Config{Host: "0.0.0.0", Port: 9000, JournalPath: "chat.db"}
	serveFlags{port: 9100}.apply(cmd, &cfg)

	req.Equal(9100, cfg.Port)
	req.Equal("0.0.0.0", cfg.Host)
	req.Equal("chat.db", cfg.JournalPath)
}

func TestFormatMessage(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	edited := at.Add(time.Minute)

	tests := []struct {
		name     string
		msg      broker.Message
		contains []string
	}{
		{name: "system", msg: broker.Message{Text: "alice has joined the room", Timestamp: at}, contains: []string{"* alice has joined the room"}},
		{name: "plain", msg: broker.Message{Sender: "alice", Text: "hi", Color: "#e53935", Timestamp: at}, contains: []string{"alice", ": hi"}},
		{name: "edited", msg: broker.Message{Sender: "alice", Text: "hello", Color: "#e53935", Timestamp: at, EditedAt: &edited}, contains: []string{"hello", "(edited)"}},
		{name: "deleted", msg: broker.Message{Sender: "alice", Color: "#e53935", Timestamp: at, DeletedAt: &edited}, contains: []string{"(deleted)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatMessage(tt.msg)
			for _, want := range tt.contains {
				require.Contains(t, got, want)
			}
		})
	}
}

func TestRenderActivities(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer

	renderActivities(&out, []broker.Activity{
		{Kind: broker.ActivityJoined, Room: "general", User: "alice", At: time.Now()},
		{Kind: broker.ActivityMessage, Room: "general", User: "alice", Text: "hello", At: time.Now()},
	})

	req.Contains(out.String(), "alice")
	req.Contains(out.String(), "hello")
	req.Contains(out.String(), string(broker.ActivityMessage))
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	req := require.New(t)
	root := newRootCmd()

	for _, name := range []string{"serve", "connect", "history"} {
		cmd, _, err := root.Find([]string{name})
		req.NoError(err)
		req.Equal(name, cmd.Name())
	}
}

func chatUpdate(t *testing.T, msgs ...broker.Message) protocol.Envelope {
	t.Helper()
	data, err := json.Marshal(msgs)
	require.NoError(t, err)
	return protocol.Envelope{Event: broker.EventChatUpdate, Data: data}
}

func TestRoomView_PrintsOnlyChangedEntries(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	view := &roomView{out: &out, log: logs.GetLoggerFromLevel(slog.LevelDebug)}
	at := time.UnixMilli(1714557600000)
	edited := at.Add(time.Minute)
	joined := broker.Message{Text: "alice has joined the room", Timestamp: at}
	first := broker.Message{Sender: "alice", Text: "first", Color: "#e53935", Timestamp: at}
	second := broker.Message{Sender: "alice", Text: "second", Color: "#e53935", Timestamp: at}

	// Given a log already on screen
	view.print(chatUpdate(t, joined, first, second))
	req.Equal(3, strings.Count(out.String(), "\n"))
	out.Reset()

	// When an earlier message is edited
	first.Text, first.EditedAt = "first!", &edited
	view.print(chatUpdate(t, joined, first, second))

	// Then only the edited entry is printed
	req.Equal(1, strings.Count(out.String(), "\n"))
	req.Contains(out.String(), "first!")
	req.Contains(out.String(), "(edited)")
	out.Reset()

	// When it is deleted
	first.DeletedAt = &edited
	view.print(chatUpdate(t, joined, first, second))
	req.Equal(1, strings.Count(out.String(), "\n"))
	req.Contains(out.String(), "(deleted)")
	out.Reset()

	// When nothing changed
	view.print(chatUpdate(t, joined, first, second))
	req.Empty(out.String())
}

func TestRoomView_JoinResetsLog(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	view := &roomView{out: &out, log: logs.GetLoggerFromLevel(slog.LevelDebug)}
	at := time.UnixMilli(1714557600000)
	joined := broker.Message{Text: "alice has joined the room", Timestamp: at}
	view.print(chatUpdate(t, joined))

	resp, err := json.Marshal(broker.JoinResponse{UserName: "alice", RoomName: "random"})
	req.NoError(err)
	view.print(protocol.Envelope{Event: broker.EventJoinResponse, Data: resp})
	out.Reset()

	view.print(chatUpdate(t, joined))

	req.Contains(out.String(), "alice has joined the room")
}
