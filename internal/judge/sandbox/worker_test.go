package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"algoarena/internal/judge/sandbox"
	"algoarena/internal/judge/sandbox/config"
	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/runner"
)

// scriptedRunner fakes compilation by writing the binary and echoes input as output.
type scriptedRunner struct {
	compileOK bool
	runs      []runner.RunRequest
	outcome   map[string]result.Outcome
	seenDirs  map[string]bool
}

func (s *scriptedRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	if err := os.MkdirAll(req.WorkDir, 0755); err != nil {
		return result.CompileResult{}, err
	}
	if !s.compileOK {
		return result.CompileResult{OK: false, ExitCode: 1, Log: "syntax error"}, nil
	}
	if err := os.WriteFile(filepath.Join(req.WorkDir, req.Language.BinaryFile), []byte("bin:"+req.Source), 0755); err != nil {
		return result.CompileResult{}, err
	}
	return result.CompileResult{OK: true}, nil
}

func (s *scriptedRunner) Run(ctx context.Context, req runner.RunRequest) (result.TestcaseResult, error) {
	s.runs = append(s.runs, req)
	if s.seenDirs[req.WorkDir] {
		return result.TestcaseResult{}, os.ErrExist
	}
	s.seenDirs[req.WorkDir] = true
	bin, err := os.ReadFile(filepath.Join(req.WorkDir, req.Language.BinaryFile))
	if err != nil {
		return result.TestcaseResult{}, err
	}
	input, err := os.ReadFile(req.InputPath)
	if err != nil {
		return result.TestcaseResult{}, err
	}
	outcome := result.OutcomeOK
	if o, ok := s.outcome[req.TestID]; ok {
		outcome = o
	}
	return result.TestcaseResult{TestID: req.TestID, Outcome: outcome, Stdout: strings.TrimPrefix(string(bin), "bin:") + string(input)}, nil
}

func newRepo() *config.LocalRepository {
	return config.NewLocalRepository(
		[]profile.LanguageSpec{{ID: "cpp", SourceFile: "main.cpp", BinaryFile: "main", CompileEnabled: true}},
		[]profile.TaskProfile{
			{LanguageID: "cpp", TaskType: profile.TaskTypeCompile},
			{LanguageID: "cpp", TaskType: profile.TaskTypeRun},
		},
	)
}

func TestWorkerRunsEveryTestInFreshDir(t *testing.T) {
	r := &scriptedRunner{compileOK: true, outcome: map[string]result.Outcome{"1": result.OutcomeRuntimeError}, seenDirs: map[string]bool{}}
	repo := newRepo()
	w := sandbox.NewWorker(r, repo, repo)
	root := t.TempDir()

	res, err := w.Execute(context.Background(), sandbox.JudgeRequest{
		SubmissionID: "sub-1",
		LanguageID:   "cpp",
		WorkRoot:     root,
		Source:       "x",
		Tests: []sandbox.TestcaseSpec{
			{TestID: "0", Input: "a"},
			{TestID: "1", Input: "b"},
			{TestID: "2", Input: "c"},
		},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(res.Tests) != 3 {
		t.Fatalf("expected all 3 tests to run after a failure, got %d", len(res.Tests))
	}
	if res.Tests[1].Outcome != result.OutcomeRuntimeError || res.Tests[2].Stdout != "xc" {
		t.Fatalf("unexpected results %+v", res.Tests)
	}
	if _, err := os.Stat(filepath.Join(root, "sub-1")); !os.IsNotExist(err) {
		t.Fatalf("expected submission root to be removed, stat err=%v", err)
	}
}

func TestWorkerCompileErrorSkipsRuns(t *testing.T) {
	r := &scriptedRunner{compileOK: false, seenDirs: map[string]bool{}}
	repo := newRepo()
	w := sandbox.NewWorker(r, repo, repo)

	res, err := w.Execute(context.Background(), sandbox.JudgeRequest{
		SubmissionID: "sub-2",
		LanguageID:   "cpp",
		WorkRoot:     t.TempDir(),
		Source:       "x",
		Tests:        []sandbox.TestcaseSpec{{TestID: "0"}},
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !res.CompileFailed() || len(r.runs) != 0 {
		t.Fatalf("expected compile failure without runs, got %+v", res)
	}
}

func TestWorkerRejectsUnknownLanguage(t *testing.T) {
	r := &scriptedRunner{seenDirs: map[string]bool{}}
	repo := newRepo()
	w := sandbox.NewWorker(r, repo, repo)

	_, err := w.Execute(context.Background(), sandbox.JudgeRequest{
		SubmissionID: "sub-3",
		LanguageID:   "cobol",
		WorkRoot:     t.TempDir(),
		Tests:        []sandbox.TestcaseSpec{{TestID: "0"}},
	})
	if err == nil {
		t.Fatalf("expected error for unknown language")
	}
}
