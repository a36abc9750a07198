// Package engine spawns a target program and supervises its process tree
// until it exits or breaches its limits.
package engine

import (
	"context"

	"fms/internal/sandbox/result"
	"fms/internal/sandbox/spec"
)

// Engine executes a RunSpec under supervision.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	// KillJob terminates a running job; it ends with the Aborted outcome.
	KillJob(ctx context.Context, jobID string) error
}
