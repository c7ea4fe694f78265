package preflight

import (
	"context"

	"github.com/lad75020/SendToOneNote/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the local preflight checks: state directory, queue
// layout, and required binaries. The network check is left to callers.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))
	results = append(results, CheckQueueLayout(cfg.Paths.QueueRoot)...)

	for _, status := range CheckSystemDeps(ctx, cfg) {
		detail := status.Detail
		if detail == "" {
			detail = status.Command
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}
	return results
}

// Failed returns only the failed results.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
