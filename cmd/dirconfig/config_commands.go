package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dirconfig/internal/config"
	"dirconfig/internal/preflight"
)

func newGenerateCommand() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := config.ExpandPath(strings.TrimSpace(output))
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}
			if err := config.CreateSample(target, force); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the task sources and rules, then run `dirconfig validate`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", defaultConfigPath, "Destination for the configuration file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newValidateCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and list its tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", path)
			fmt.Fprintf(out, "Match policy: %s, debounce: %s, scan on start: %s\n",
				cfg.Settings.MatchPolicy, cfg.Settings.Debounce, yesNo(cfg.Settings.ScanOnStart))
			fmt.Fprint(out, renderTable([]column{
				{title: "Task", right: true, merge: true},
				{title: "Type"},
				{title: "Source", merge: true},
				{title: "Extensions"},
				{title: "Destination"},
			}, taskRows(cfg.Tasks)))
			if cfg.Backup != nil {
				fmt.Fprintf(out, "Backup: client %q, %s, %d directories\n",
					cfg.Backup.Name, cfg.Backup.Type, len(cfg.Backup.Directories))
			}
			fmt.Fprintln(out)
			results := preflight.RunAll(cmd.Context(), cfg, "")
			writeSection(out, "Checks", isTerminal(out), checkLines(results)...)
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", defaultConfigPath, "Configuration file path")
	return cmd
}

func taskRows(tasks []config.Task) [][]string {
	var rows [][]string
	for i, task := range tasks {
		switch t := task.(type) {
		case config.FileOrganizationTask:
			for _, rule := range t.Rules {
				rows = append(rows, []string{
					fmt.Sprint(i + 1), string(t.Kind()), t.Source,
					strings.Join(rule.Extensions, ", "), rule.Destination,
				})
			}
		default:
			rows = append(rows, []string{fmt.Sprint(i + 1), string(task.Kind()), "", "", ""})
		}
	}
	return rows
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
