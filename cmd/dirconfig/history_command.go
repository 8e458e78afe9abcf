package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"dirconfig/internal/journal"
)

func newHistoryCommand() *cobra.Command {
	var journalPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent file moves from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if _, err := os.Stat(journalPath); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(out, "No journal at %s\n", journalPath)
				return nil
			}
			store, err := journal.Open(journalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "No moves recorded")
				return nil
			}
			fmt.Fprint(out, renderTable([]column{
				{title: "Time"}, {title: "Entry"}, {title: "From"}, {title: "To"}, {title: "Result"},
			}, historyRows(entries)))
			return nil
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", defaultJournalPath, "Move journal database path")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of moves to list")
	return cmd
}

func historyRows(entries []journal.Entry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		result := "moved"
		if entry.Failed() {
			result = "failed: " + entry.Error
		}
		rows = append(rows, []string{
			entry.MovedAt.Local().Format(time.DateTime),
			entry.Entry,
			filepath.Dir(entry.From),
			filepath.Dir(entry.To),
			result,
		})
	}
	return rows
}
