package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roomchat/internal/broker"
	"roomchat/internal/config"
	"roomchat/internal/journal"
	"roomchat/internal/transport/ws"

	"github.com/mama165/sdk-go/logs"
	"github.com/spf13/cobra"
)

type serveFlags struct {
	host    string
	port    int
	journal string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&flags.host, "host", "", "listen host, overrides CHAT_HOST")
	cmd.Flags().IntVar(&flags.port, "port", 0, "listen port, overrides CHAT_PORT")
	cmd.Flags().StringVar(&flags.journal, "journal", "", "sqlite activity journal path, overrides CHAT_JOURNAL_PATH")
	return cmd
}

func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Host = f.host
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = f.port
	}
	if cmd.Flags().Changed("journal") {
		cfg.JournalPath = f.journal
	}
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logs.GetLoggerFromString(cfg.LogLevel)

	opts := broker.Options{MaxMessageRunes: cfg.MaxMessageRunes}
	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath, cfg.JournalBuffer, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("Closing activity journal...")
			if err := j.Close(); err != nil {
				log.Error("Close journal", "error", err)
			}
		}()
		opts.Journal = j
	}

	rooms := broker.NewRoomStore(nil)
	registry := broker.NewRegistry(log, broker.NewUserDirectory(), rooms, broker.NewRouter(log), opts)

	httpServer := &http.Server{
		Addr:              cfg.Address(),
		Handler:           ws.NewServer(log, registry, rooms, cfg.SendBuffer).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat server", "address", httpServer.Addr, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("Shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly", slog.Int("rooms", rooms.Len()))
	return nil
}
