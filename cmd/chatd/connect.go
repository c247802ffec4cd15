package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/client"
	"roomchat/internal/protocol"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

type connectFlags struct {
	url      string
	user     string
	room     string
	logLevel string
}

func newConnectCmd() *cobra.Command {
	var flags connectFlags
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a room from the terminal",
		Long: `Join a room and chat from stdin.

Lines are sent as messages, except:
  /edit <text>   replace your most recent message
  /delete        delete your most recent message
  /leave         leave the room and quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return connect(ctx, flags, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&flags.url, "url", "http://localhost:9000", "page or server URL the endpoint is resolved from")
	cmd.Flags().StringVar(&flags.user, "user", "", "user name")
	cmd.Flags().StringVar(&flags.room, "room", "", "room name")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "WARN", "client log level")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func connect(ctx context.Context, flags connectFlags, in io.Reader, out io.Writer) error {
	log := logs.GetLoggerFromString(flags.logLevel)

	endpoint, err := client.ResolveEndpoint(flags.url)
	if err != nil {
		return err
	}
	c, err := client.Dial(ctx, endpoint, log, client.Options{})
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Join(flags.user, flags.room); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		view := &roomView{out: out, log: log}
		for env := range c.Events() {
			view.print(env)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return c.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := sendLine(c, line)
			if err != nil {
				fmt.Fprintln(out, err)
			}
			if quit {
				return nil
			}
		}
	}
}

func sendLine(c *client.Client, line string) (quit bool, err error) {
	switch {
	case line == "/leave":
		return true, c.Leave()
	case line == "/delete":
		return false, c.Delete()
	case strings.HasPrefix(line, "/edit "):
		return false, c.Edit(strings.TrimPrefix(line, "/edit "))
	case strings.TrimSpace(line) == "":
		return false, nil
	default:
		return false, c.Send(line)
	}
}

// roomView prints server frames as terminal lines. It remembers the last
// chat log so that only new or changed entries are printed.
type roomView struct {
	out  io.Writer
	log  *slog.Logger
	seen []broker.Message
}

func (v *roomView) print(env protocol.Envelope) {
	switch env.Event {
	case broker.EventJoinResponse:
		resp, err := protocol.DecodeData[broker.JoinResponse](env)
		if err != nil {
			v.log.Debug("Bad join response", "error", err)
			return
		}
		if resp.Error != "" {
			fmt.Fprintf(v.out, "! %s\n", resp.Error)
			return
		}
		v.seen = nil
		fmt.Fprintf(v.out, "* joined %s as %s\n", resp.RoomName, resp.UserName)
	case broker.EventChatUpdate:
		msgs, err := protocol.DecodeData[[]broker.Message](env)
		if err != nil {
			v.log.Debug("Bad chat update", "error", err)
			return
		}
		for _, m := range v.changed(msgs) {
			fmt.Fprintln(v.out, formatMessage(m))
		}
	case broker.EventRoomUsers:
		members, err := protocol.DecodeData[[]broker.Member](env)
		if err != nil {
			return
		}
		names := make([]string, 0, len(members))
		for _, m := range members {
			names = append(names, m.Name)
		}
		fmt.Fprintf(v.out, "* in room: %s\n", strings.Join(names, ", "))
	case broker.EventTyping:
		typing, err := protocol.DecodeData[[]string](env)
		if err != nil || len(typing) == 0 {
			return
		}
		fmt.Fprintf(v.out, "* typing: %s\n", strings.Join(typing, ", "))
	}
}

// changed returns the entries of msgs that differ from the previous log. The
// log only grows and entries keep their position, so entries are compared by
// index.
func (v *roomView) changed(msgs []broker.Message) []broker.Message {
	if len(msgs) < len(v.seen) {
		v.seen = nil
	}
	var out []broker.Message
	for i, m := range msgs {
		if i >= len(v.seen) || !sameEntry(v.seen[i], m) {
			out = append(out, m)
		}
	}
	v.seen = msgs
	return out
}

func sameEntry(a, b broker.Message) bool {
	return a.Sender == b.Sender &&
		a.Text == b.Text &&
		a.Timestamp.Equal(b.Timestamp) &&
		sameTime(a.EditedAt, b.EditedAt) &&
		sameTime(a.DeletedAt, b.DeletedAt)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func formatMessage(m broker.Message) string {
	at := m.Timestamp.Local().Format("15:04:05")
	if m.System() {
		return color.Gray.Render(fmt.Sprintf("[%s] * %s", at, m.Text))
	}
	sender := color.HEX(m.Color).Sprint(m.Sender)
	switch {
	case m.Deleted():
		return fmt.Sprintf("[%s] %s: %s", at, sender, color.Gray.Render("(deleted)"))
	case m.EditedAt != nil:
		return fmt.Sprintf("[%s] %s: %s (edited)", at, sender, m.Text)
	default:
		return fmt.Sprintf("[%s] %s: %s", at, sender, m.Text)
	}
}
