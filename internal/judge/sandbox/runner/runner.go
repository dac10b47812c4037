// Package runner turns language specs into sandbox runs for compile and execute steps.
package runner

import (
	"context"

	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
)

// CompileRequest describes one compilation task.
// WorkDir is a host directory; the source file is written into it.
type CompileRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	Source       string
	Limits       spec.ResourceLimit
}

// RunRequest describes one execution task against one test input.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	InputPath    string
	Limits       spec.ResourceLimit
}

// Recorder receives one sample per compile and per test run.
type Recorder interface {
	ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64)
	ObserveRun(ctx context.Context, languageID string, outcome string, timeMs int64, memoryKB int64, outputKB int64)
}

type discardRecorder struct{}

func (discardRecorder) ObserveCompile(context.Context, string, bool, int64, int64) {}

func (discardRecorder) ObserveRun(context.Context, string, string, int64, int64, int64) {}

// Runner orchestrates compile and run workflows.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}
