package main

import (
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath  = "config.yaml"
	defaultLogPath     = "dirconfig.log"
	defaultPIDPath     = "dirconfig.pid"
	defaultJournalPath = "dirconfig.db"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dirconfig",
		Short:         "Rule-driven directory organizer daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newStartCommand())
	rootCmd.AddCommand(newStopCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newLogsCommand())

	return rootCmd
}
