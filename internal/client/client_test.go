package client

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/protocol"
	"roomchat/internal/transport/ws"

	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		page    string
		want    string
		wantErr bool
	}{
		{name: "dev page goes to local server", page: "http://localhost:5173/", want: "ws://localhost:9000/ws"},
		{name: "plain origin", page: "http://chat.example.com/room", want: "ws://chat.example.com/ws"},
		{name: "tls origin keeps port", page: "https://chat.example.com:8443/", want: "wss://chat.example.com:8443/ws"},
		{name: "no host", page: "/relative", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveEndpoint(tt.page)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + protocol.Path
}

func newChatServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	rooms := broker.NewRoomStore(nil)
	registry := broker.NewRegistry(log, broker.NewUserDirectory(), rooms, broker.NewRouter(log), broker.Options{})
	srv := httptest.NewServer(ws.NewServer(log, registry, rooms, 16).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func waitFor(t *testing.T, c *Client, event string) protocol.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env, ok := <-c.Events():
			require.True(t, ok, "events closed while waiting for %q", event)
			if env.Event == event {
				return env
			}
		case <-timeout:
			require.FailNow(t, "timed out", "waiting for %q", event)
		}
	}
}

func TestClient_JoinAndSend(t *testing.T) {
	req := require.New(t)
	srv := newChatServer(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)

	// Given a connected client
	c, err := Dial(context.Background(), wsURL(srv), log, Options{})
	req.NoError(err)
	defer c.Close()

	// When it joins and posts
	req.NoError(c.Join("alice", "general"))
	resp, err := protocol.DecodeData[broker.JoinResponse](waitFor(t, c, broker.EventJoinResponse))
	req.NoError(err)
	req.Empty(resp.Error)
	waitFor(t, c, broker.EventTyping)

	req.NoError(c.Send("hello"))

	// Then the room log carries the message
	msgs, err := protocol.DecodeData[[]broker.Message](waitFor(t, c, broker.EventChatUpdate))
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("hello", msgs[1].Text)
}

func TestOptions_Defaults(t *testing.T) {
	req := require.New(t)

	opts := Options{}.withDefaults()

	req.Equal(uint(5), opts.Attempts)
	req.Equal(time.Second, opts.Delay)
	req.NotNil(opts.Dialer)
}

func TestClient_DialGivesUp(t *testing.T) {
	req := require.New(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), wsURL(srv), logs.GetLoggerFromLevel(slog.LevelDebug), Options{
		Attempts: 3,
		Delay:    10 * time.Millisecond,
	})

	req.ErrorIs(err, ErrConnection)
	req.EqualValues(3, hits.Load())
}

func TestClient_DialWaitsBetweenAttempts(t *testing.T) {
	req := require.New(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := wsURL(srv)
	srv.Close()

	start := time.Now()
	_, err := Dial(context.Background(), endpoint, logs.GetLoggerFromLevel(slog.LevelDebug), Options{
		Attempts: 3,
		Delay:    50 * time.Millisecond,
	})

	req.ErrorIs(err, ErrConnection)
	req.GreaterOrEqual(time.Since(start), 100*time.Millisecond)
}

func TestClient_ReconnectReplaysJoin(t *testing.T) {
	req := require.New(t)
	var (
		upgrader websocket.Upgrader
		accepted atomic.Int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		n := accepted.Add(1)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if n == 1 {
			// drop the first channel right after the join
			return
		}
		env, err := protocol.DecodeEvent(raw)
		if err != nil {
			return
		}
		joinEvt, ok := env.(broker.JoinEvent)
		if !ok {
			return
		}
		payload, _ := protocol.Encode(broker.EventJoinResponse, broker.JoinResponse{
			UserName: joinEvt.UserName,
			RoomName: joinEvt.RoomName,
		})
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	c, err := Dial(context.Background(), wsURL(srv), logs.GetLoggerFromLevel(slog.LevelDebug), Options{
		Delay: 10 * time.Millisecond,
	})
	req.NoError(err)
	defer c.Close()

	req.NoError(c.Join("alice", "general"))

	resp, err := protocol.DecodeData[broker.JoinResponse](waitFor(t, c, broker.EventJoinResponse))
	req.NoError(err)
	req.Equal("alice", resp.UserName)
	req.Equal("general", resp.RoomName)
	req.EqualValues(2, accepted.Load())
}

func TestClient_CloseEndsEvents(t *testing.T) {
	req := require.New(t)
	srv := newChatServer(t)

	c, err := Dial(context.Background(), wsURL(srv), logs.GetLoggerFromLevel(slog.LevelDebug), Options{})
	req.NoError(err)

	req.NoError(c.Close())
	req.NoError(c.Close())

	select {
	case _, ok := <-c.Events():
		req.False(ok)
	case <-time.After(2 * time.Second):
		req.FailNow("events channel not closed")
	}
	req.NoError(c.Err())
	req.ErrorIs(c.Send("late"), ErrConnection)
}
