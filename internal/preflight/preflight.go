package preflight

import (
	"context"

	"cratesync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the directory and session checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Serato directory", cfg.Paths.SeratoDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	}
	if cfg.Paths.VolumeRoot != "" && cfg.Paths.VolumeRoot != "/" {
		results = append(results, CheckDirectoryAccess("Volume root", cfg.Paths.VolumeRoot))
	}
	results = append(results, CheckTidalSession(cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
