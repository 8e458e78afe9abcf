package preflight

import (
	"context"
	"fmt"
	"os"

	"dirconfig/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check that applies to cfg. Dot-prefixed task sources
// resolve against cwd, or the working directory when cwd is empty.
func RunAll(ctx context.Context, cfg *config.Config, cwd string) []Result {
	if cfg == nil {
		return nil
	}

	if cwd == "" {
		cwd, _ = os.Getwd()
	}

	var results []Result
	for i, task := range config.FileOrganizationTasks(cfg.Tasks) {
		name := fmt.Sprintf("Task %d source", i+1)
		source, err := task.ResolveSource(cwd)
		if err != nil {
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", task.Source, err)})
			continue
		}
		results = append(results, CheckDirectoryAccess(name, source))
	}

	if cfg.Backup != nil {
		for _, dir := range cfg.Backup.Directories {
			results = append(results, CheckDirectoryAccess("Backup directory", dir))
		}
		if cfg.Backup.Connection.Server != "" {
			results = append(results, CheckBackupServer(ctx, cfg.Backup.Connection.Server))
		}
	}
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
