package main

import (
	"fmt"
	"io"

	"roomchat/internal/broker"
	"roomchat/internal/config"
	"roomchat/internal/journal"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var (
		path  string
		room  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recent activity recorded in the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("journal") {
				cfg.JournalPath = path
			}
			if cfg.JournalPath == "" {
				return fmt.Errorf("no journal configured, set CHAT_JOURNAL_PATH or --journal")
			}

			log := logs.GetLoggerFromString(cfg.LogLevel)
			j, err := journal.Open(cmd.Context(), cfg.JournalPath, cfg.JournalBuffer, log)
			if err != nil {
				return err
			}
			defer j.Close()

			activities, err := j.Recent(cmd.Context(), room, limit)
			if err != nil {
				return err
			}
			renderActivities(cmd.OutOrStdout(), activities)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "journal", "", "sqlite activity journal path, overrides CHAT_JOURNAL_PATH")
	cmd.Flags().StringVar(&room, "room", "", "room name")
	cmd.Flags().IntVar(&limit, "limit", 50, "number of entries")
	_ = cmd.MarkFlagRequired("room")
	return cmd
}

func renderActivities(out io.Writer, activities []broker.Activity) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"At", "Kind", "User", "Text"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, a := range activities {
		table.Append([]string{a.At.Local().Format("2006-01-02 15:04:05"), string(a.Kind), a.User, a.Text})
	}
	table.Render()
}
