// Package model defines judging verdicts.
package model

// Status is the overall outcome of judging one submission.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusCompileError   Status = "compileError"
	StatusRuntimeError   Status = "runtimeError"
	StatusTimeout        Status = "timeout"
	StatusMemoryExceeded Status = "memoryExceeded"
	StatusInternalError  Status = "internalError"
)

// FailureKind explains why a single test case failed.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureWrongAnswer    FailureKind = "wrongAnswer"
	FailureTimeout        FailureKind = "timeout"
	FailureMemoryExceeded FailureKind = "memoryExceeded"
	FailureRuntimeError   FailureKind = "runtimeError"
	FailureCompileError   FailureKind = "compileError"
	FailureInternalError  FailureKind = "internalError"
)

// TestResult is the outcome of one test case.
type TestResult struct {
	Index           int         `json:"index"`
	Passed          bool        `json:"passed"`
	Hidden          bool        `json:"hidden"`
	ObservedOutput  string      `json:"observedOutput,omitempty"`
	ExpectedOutput  string      `json:"expectedOutput,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
	MemoryUsedKb    int64       `json:"memoryUsedKb"`
	FailureKind     FailureKind `json:"failureKind,omitempty"`
}

// Verdict is the full judging outcome of one submission.
type Verdict struct {
	SubmissionID string       `json:"submissionId"`
	Language     string       `json:"language"`
	Status       Status       `json:"status"`
	PassedAll    bool         `json:"passedAll"`
	PassedCount  int          `json:"passedCount"`
	TotalCount   int          `json:"totalCount"`
	Tests        []TestResult `json:"tests"`
	CompileLog   string       `json:"compileLog,omitempty"`
	JudgedAtMs   int64        `json:"judgedAtMs"`
}

// Redacted returns a copy safe to send to clients: hidden tests keep only
// their pass/fail state and failure kind.
func (v Verdict) Redacted() Verdict {
	out := v
	out.Tests = make([]TestResult, len(v.Tests))
	for i, t := range v.Tests {
		if t.Hidden {
			t.ObservedOutput = ""
			t.ExpectedOutput = ""
			t.ExecutionTimeMs = 0
			t.MemoryUsedKb = 0
		}
		out.Tests[i] = t
	}
	return out
}

// statusByFailure orders non-answer failures by how they surface overall.
var statusByFailure = map[FailureKind]Status{
	FailureCompileError:   StatusCompileError,
	FailureInternalError:  StatusInternalError,
	FailureTimeout:        StatusTimeout,
	FailureMemoryExceeded: StatusMemoryExceeded,
	FailureRuntimeError:   StatusRuntimeError,
}

// Finalize derives PassedAll, the counters and the overall status from Tests.
// The overall status is the first non wrong-answer failure; wrong answers keep it completed.
func (v *Verdict) Finalize() {
	v.TotalCount = len(v.Tests)
	v.PassedCount = 0
	v.Status = StatusCompleted
	statusSet := false
	for _, t := range v.Tests {
		if t.Passed {
			v.PassedCount++
			continue
		}
		if s, ok := statusByFailure[t.FailureKind]; ok && !statusSet {
			v.Status = s
			statusSet = true
		}
	}
	v.PassedAll = v.TotalCount > 0 && v.PassedCount == v.TotalCount
}
