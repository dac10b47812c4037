package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"algoarena/internal/judge/model"
	"algoarena/internal/judge/sandbox"
	"algoarena/internal/judge/sandbox/result"
	problemmodel "algoarena/internal/problem/model"
	appErr "algoarena/pkg/errors"

	"github.com/jonboulle/clockwork"
)

type fakeExecutor struct {
	mu      sync.Mutex
	calls   []sandbox.JudgeRequest
	res     result.JudgeResult
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeExecutor) Execute(ctx context.Context, req sandbox.JudgeRequest) (result.JudgeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return result.JudgeResult{}, ctx.Err()
		}
	}
	return f.res, f.err
}

type staticLanguages []string

func (s staticLanguages) Languages() []string { return s }

func sumProblem() *problemmodel.Problem {
	return &problemmodel.Problem{
		ID:                "sum",
		Title:             "Sum",
		Difficulty:        problemmodel.DifficultyEasy,
		TimeLimitMs:       1000,
		MemoryLimitMb:     128,
		AcceptedLanguages: []string{"python", "cpp"},
		TestCases: []problemmodel.TestCase{
			{Input: "1 2", ExpectedOutput: "3"},
			{Input: "5 5", ExpectedOutput: "10", IsHidden: true},
		},
	}
}

func newTestService(t *testing.T, exec sandbox.Executor, workers int) *Service {
	t.Helper()
	svc, err := NewService(Config{
		Workers:      workers,
		WorkRoot:     t.TempDir(),
		QueueTimeout: 50 * time.Millisecond,
		MaxCodeBytes: 1024,
	}, exec, staticLanguages{"python", "cpp", "java"}, nil, clockwork.NewFakeClock())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestJudgeRejectsBeforeExecution(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newTestService(t, exec, 1)

	tests := []struct {
		name string
		req  Request
		code appErr.ErrorCode
	}{
		{"empty code", Request{Code: "  ", Language: "python", Problem: sumProblem()}, appErr.ValidationFailed},
		{"too large", Request{Code: string(make([]byte, 2048)) + "x", Language: "python", Problem: sumProblem()}, appErr.CodeTooLarge},
		{"not accepted", Request{Code: "print(3)", Language: "java", Problem: sumProblem()}, appErr.LanguageNotSupported},
		{"not configured", Request{Code: "print(3)", Language: "rust", Problem: &problemmodel.Problem{AcceptedLanguages: []string{"rust"}}}, appErr.LanguageNotSupported},
		{"missing problem", Request{Code: "print(3)", Language: "python"}, appErr.ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Judge(context.Background(), tt.req)
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
	if len(exec.calls) != 0 {
		t.Fatalf("executor must not run, got %d calls", len(exec.calls))
	}
}

func TestJudgeBuildsVerdict(t *testing.T) {
	tests := []struct {
		name       string
		res        result.JudgeResult
		status     model.Status
		passedAll  bool
		passed     int
		firstKind  model.FailureKind
		secondKind model.FailureKind
	}{
		{
			name: "all pass with trailing whitespace",
			res: result.JudgeResult{Compile: &result.CompileResult{OK: true}, Tests: []result.TestcaseResult{
				{TestID: "0", Outcome: result.OutcomeOK, Stdout: "3\n"},
				{TestID: "1", Outcome: result.OutcomeOK, Stdout: "10  \r\n\n"},
			}},
			status: model.StatusCompleted, passedAll: true, passed: 2,
		},
		{
			name: "wrong answer keeps completed",
			res: result.JudgeResult{Tests: []result.TestcaseResult{
				{TestID: "0", Outcome: result.OutcomeOK, Stdout: "3"},
				{TestID: "1", Outcome: result.OutcomeOK, Stdout: "11"},
			}},
			status: model.StatusCompleted, passed: 1, secondKind: model.FailureWrongAnswer,
		},
		{
			name: "timeout",
			res: result.JudgeResult{Tests: []result.TestcaseResult{
				{TestID: "0", Outcome: result.OutcomeTimeLimit},
				{TestID: "1", Outcome: result.OutcomeOK, Stdout: "10"},
			}},
			status: model.StatusTimeout, passed: 1, firstKind: model.FailureTimeout,
		},
		{
			name: "compile error fails every test",
			res: result.JudgeResult{Compile: &result.CompileResult{OK: false, Log: "boom"}},
			status: model.StatusCompileError, firstKind: model.FailureCompileError, secondKind: model.FailureCompileError,
		},
		{
			name: "missing results are internal errors",
			res: result.JudgeResult{Tests: []result.TestcaseResult{
				{TestID: "0", Outcome: result.OutcomeOK, Stdout: "3"},
			}},
			status: model.StatusInternalError, passed: 1, secondKind: model.FailureInternalError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakeExecutor{res: tt.res}, 1)
			v, err := svc.Judge(context.Background(), Request{SubmissionID: "s1", Code: "code", Language: "python", Problem: sumProblem()})
			if err != nil {
				t.Fatalf("judge: %v", err)
			}
			if v.Status != tt.status || v.PassedAll != tt.passedAll || v.PassedCount != tt.passed || v.TotalCount != 2 {
				t.Fatalf("unexpected verdict: %+v", v)
			}
			if v.Tests[0].FailureKind != tt.firstKind || v.Tests[1].FailureKind != tt.secondKind {
				t.Fatalf("unexpected failure kinds: %q %q", v.Tests[0].FailureKind, v.Tests[1].FailureKind)
			}
			if !v.Tests[1].Hidden {
				t.Fatalf("second test should be hidden")
			}
		})
	}
}

func TestJudgeSandboxFailureIsInternalErrorVerdict(t *testing.T) {
	svc := newTestService(t, &fakeExecutor{err: errors.New("cgroup gone")}, 1)
	v, err := svc.Judge(context.Background(), Request{Code: "code", Language: "cpp", Problem: sumProblem()})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if v.Status != model.StatusInternalError || v.PassedAll {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if v.SubmissionID == "" {
		t.Fatalf("submission id should be generated")
	}
	for _, tr := range v.Tests {
		if tr.FailureKind != model.FailureInternalError {
			t.Fatalf("expected internal error, got %q", tr.FailureKind)
		}
	}
}

func TestJudgePassesLimitsToExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	svc := newTestService(t, exec, 1)
	if _, err := svc.Judge(context.Background(), Request{Code: "code", Language: "python", Problem: sumProblem()}); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if len(exec.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(exec.calls))
	}
	req := exec.calls[0]
	if len(req.Tests) != 2 || req.Tests[1].Input != "5 5" {
		t.Fatalf("unexpected tests: %+v", req.Tests)
	}
	if req.Tests[0].Limits.CPUTimeMs != 1000 || req.Tests[0].Limits.WallTimeMs != 2000 || req.Tests[0].Limits.MemoryMB != 128 {
		t.Fatalf("unexpected limits: %+v", req.Tests[0].Limits)
	}
}

func TestJudgeQueueFull(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newTestService(t, exec, 1)

	done := make(chan error, 1)
	err := svc.JudgeAsync(context.Background(), Request{Code: "a", Language: "python", Problem: sumProblem()}, func(v model.Verdict, err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("judge async: %v", err)
	}
	<-exec.started

	_, err = svc.Judge(context.Background(), Request{Code: "b", Language: "python", Problem: sumProblem()})
	if !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("expected queue full, got %v", err)
	}

	close(exec.block)
	if err := <-done; err != nil {
		t.Fatalf("async judge: %v", err)
	}
	if err := svc.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestJudgeAsyncSurvivesCallerCancel(t *testing.T) {
	exec := &fakeExecutor{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := newTestService(t, exec, 1)

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan model.Verdict, 1)
	err := svc.JudgeAsync(ctx, Request{Code: "a", Language: "python", Problem: sumProblem()}, func(v model.Verdict, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		got <- v
	})
	if err != nil {
		t.Fatalf("judge async: %v", err)
	}
	<-exec.started
	cancel()
	close(exec.block)

	v := <-got
	if v.Status == model.StatusInternalError {
		t.Fatalf("caller cancel should not abort judging")
	}
}

func TestJudgeAsyncValidatesSynchronously(t *testing.T) {
	svc := newTestService(t, &fakeExecutor{}, 1)
	called := false
	err := svc.JudgeAsync(context.Background(), Request{Code: "a", Language: "java", Problem: sumProblem()}, func(model.Verdict, error) {
		called = true
	})
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected language not supported, got %v", err)
	}
	if err := svc.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if called {
		t.Fatalf("callback must not run on rejection")
	}
}

func TestJudgeIsRecomputedOnEveryCall(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.UnixMilli(1_000_000))
	exec := &fakeExecutor{res: result.JudgeResult{Tests: []result.TestcaseResult{
		{TestID: "0", Outcome: result.OutcomeOK, Stdout: "3", WallTimeMs: 7},
		{TestID: "1", Outcome: result.OutcomeOK, Stdout: "11", WallTimeMs: 9},
	}}}
	svc, err := NewService(Config{Workers: 1, WorkRoot: t.TempDir(), MaxCodeBytes: 1024},
		exec, staticLanguages{"python"}, nil, clock)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	req := Request{Code: "print(sum(map(int, input().split())))", Language: "python", Problem: sumProblem()}

	first, err := svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("first judge: %v", err)
	}
	clock.Advance(3 * time.Second)
	exec.res.Tests[0].WallTimeMs = 21
	second, err := svc.Judge(context.Background(), req)
	if err != nil {
		t.Fatalf("second judge: %v", err)
	}

	if len(exec.calls) != 2 {
		t.Fatalf("expected two executions, got %d", len(exec.calls))
	}
	if first.PassedAll != second.PassedAll || first.PassedCount != second.PassedCount || first.Status != second.Status {
		t.Fatalf("outcomes differ: %+v vs %+v", first, second)
	}
	for i := range first.Tests {
		if first.Tests[i].Passed != second.Tests[i].Passed || first.Tests[i].FailureKind != second.Tests[i].FailureKind {
			t.Fatalf("test %d outcome differs", i)
		}
	}
	if second.JudgedAtMs-first.JudgedAtMs != 3000 {
		t.Fatalf("expected independent judge times, got %d and %d", first.JudgedAtMs, second.JudgedAtMs)
	}
	if first.Tests[0].ExecutionTimeMs != 7 || second.Tests[0].ExecutionTimeMs != 21 {
		t.Fatalf("timings must come from each run: %d %d", first.Tests[0].ExecutionTimeMs, second.Tests[0].ExecutionTimeMs)
	}
}
