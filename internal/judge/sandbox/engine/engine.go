// Package engine runs one command inside an isolated, resource-limited sandbox.
package engine

import (
	"context"

	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
)

// Engine executes RunSpecs. Cancelling the context passed to Run kills the
// whole process group of that run.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	// Probe reports whether a run could start right now.
	Probe(ctx context.Context) error
}
