// Package result defines raw sandbox outcomes and their run-level classification.
package result

// Outcome classifies how a single sandboxed run ended, before output comparison.
type Outcome string

const (
	OutcomeOK             Outcome = "OK"
	OutcomeTimeLimit      Outcome = "TLE"
	OutcomeMemoryLimit    Outcome = "MLE"
	OutcomeOutputLimit    Outcome = "OLE"
	OutcomeRuntimeError   Outcome = "RE"
	OutcomeSystemError    Outcome = "SE"
	OutcomeCompileFailure Outcome = "CE"
)

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
	// TimedOut is set when the wall watch or the CPU limit ended the run.
	TimedOut bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK       bool
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	Log      string
}

// TestcaseResult contains per-testcase execution outcomes.
type TestcaseResult struct {
	TestID     string
	Outcome    Outcome
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	ExitCode   int
	Stdout     string
	Stderr     string
}

// JudgeResult is everything the sandbox learned about one submission.
// Tests is empty when compilation failed.
type JudgeResult struct {
	SubmissionID string
	Language     string
	Compile      *CompileResult
	Tests        []TestcaseResult
}

// CompileFailed reports whether the submission never reached the run phase.
func (r JudgeResult) CompileFailed() bool {
	return r.Compile != nil && !r.Compile.OK
}
