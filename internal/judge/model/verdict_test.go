package model_test

import (
	"testing"

	"algoarena/internal/judge/model"
)

func TestRedactedBlanksHiddenOutputs(t *testing.T) {
	v := model.Verdict{Tests: []model.TestResult{
		{Index: 0, ObservedOutput: "1", ExpectedOutput: "1", Passed: true, ExecutionTimeMs: 12, MemoryUsedKb: 2048},
		{Index: 1, ObservedOutput: "2", ExpectedOutput: "3", Hidden: true, FailureKind: model.FailureWrongAnswer, ExecutionTimeMs: 1873, MemoryUsedKb: 65536},
	}}
	r := v.Redacted()
	if r.Tests[1].ObservedOutput != "" || r.Tests[1].ExpectedOutput != "" {
		t.Fatalf("hidden outputs leaked: %+v", r.Tests[1])
	}
	if r.Tests[1].ExecutionTimeMs != 0 || r.Tests[1].MemoryUsedKb != 0 {
		t.Fatalf("hidden resource usage leaked: %+v", r.Tests[1])
	}
	if r.Tests[1].FailureKind != model.FailureWrongAnswer || r.Tests[1].Passed {
		t.Fatalf("hidden pass/fail lost: %+v", r.Tests[1])
	}
	if r.Tests[0].ExpectedOutput != "1" || r.Tests[0].ExecutionTimeMs != 12 || r.Tests[0].MemoryUsedKb != 2048 {
		t.Fatalf("visible outputs must stay")
	}
	if v.Tests[1].ExpectedOutput != "3" || v.Tests[1].ExecutionTimeMs != 1873 {
		t.Fatalf("redaction must not mutate the original")
	}
}

func TestFinalize(t *testing.T) {
	cases := []struct {
		name      string
		tests     []model.TestResult
		status    model.Status
		passedAll bool
	}{
		{name: "all pass", tests: []model.TestResult{{Passed: true}, {Passed: true}}, status: model.StatusCompleted, passedAll: true},
		{name: "wrong answer stays completed", tests: []model.TestResult{{Passed: true}, {FailureKind: model.FailureWrongAnswer}}, status: model.StatusCompleted},
		{name: "first runtime failure wins", tests: []model.TestResult{{FailureKind: model.FailureWrongAnswer}, {FailureKind: model.FailureTimeout}, {FailureKind: model.FailureRuntimeError}}, status: model.StatusTimeout},
		{name: "compile error", tests: []model.TestResult{{FailureKind: model.FailureCompileError}}, status: model.StatusCompileError},
		{name: "empty never passes", tests: nil, status: model.StatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := model.Verdict{Tests: tc.tests}
			v.Finalize()
			if v.Status != tc.status || v.PassedAll != tc.passedAll {
				t.Fatalf("expected %s/%v, got %s/%v", tc.status, tc.passedAll, v.Status, v.PassedAll)
			}
		})
	}
}
