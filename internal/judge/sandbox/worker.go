// Package sandbox executes one submission against prepared test inputs.
package sandbox

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"algoarena/internal/judge/sandbox/config"
	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/runner"
	"algoarena/internal/judge/sandbox/spec"
	appErr "algoarena/pkg/errors"
)

// JudgeRequest contains all data needed to execute one submission.
type JudgeRequest struct {
	SubmissionID string
	LanguageID   string
	// WorkRoot is the host directory under which per-submission workspaces are created.
	WorkRoot string
	Source   string
	Tests    []TestcaseSpec
}

// TestcaseSpec describes one test input and its limits.
type TestcaseSpec struct {
	TestID string
	Input  string
	Limits spec.ResourceLimit
}

// Executor runs a full submission. Worker is the production implementation.
type Executor interface {
	Execute(ctx context.Context, req JudgeRequest) (result.JudgeResult, error)
}

// Worker compiles once and runs every test in its own clean directory.
// Every test runs even after a failure so the verdict covers all cases.
type Worker struct {
	runner      runner.Runner
	langRepo    config.LanguageSpecRepository
	profileRepo config.TaskProfileRepository
}

// NewWorker creates a new worker with required dependencies.
func NewWorker(r runner.Runner, langRepo config.LanguageSpecRepository, profileRepo config.TaskProfileRepository) *Worker {
	return &Worker{runner: r, langRepo: langRepo, profileRepo: profileRepo}
}

// Execute runs the compile step and then every test case in order.
// The submission workspace is removed before returning.
func (w *Worker) Execute(ctx context.Context, req JudgeRequest) (result.JudgeResult, error) {
	if err := validateJudgeRequest(req); err != nil {
		return result.JudgeResult{}, err
	}

	lang, err := w.langRepo.GetLanguageSpec(ctx, req.LanguageID)
	if err != nil {
		return result.JudgeResult{}, err
	}
	runProfile, err := w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeRun, lang.ID)
	if err != nil {
		return result.JudgeResult{}, err
	}
	var compileProfile profile.TaskProfile
	if lang.CompileEnabled {
		compileProfile, err = w.profileRepo.GetTaskProfile(ctx, profile.TaskTypeCompile, lang.ID)
		if err != nil {
			return result.JudgeResult{}, err
		}
	}

	res := result.JudgeResult{SubmissionID: req.SubmissionID, Language: lang.ID}

	submissionRoot := filepath.Join(req.WorkRoot, req.SubmissionID)
	if err := os.MkdirAll(submissionRoot, 0755); err != nil {
		return res, appErr.Wrapf(err, appErr.JudgeSystemError, "create submission work root failed")
	}
	defer os.RemoveAll(submissionRoot)

	compileDir := filepath.Join(submissionRoot, "compile")
	compileRes, err := w.runner.Compile(ctx, runner.CompileRequest{
		SubmissionID: req.SubmissionID,
		Language:     lang,
		Profile:      compileProfile,
		WorkDir:      compileDir,
		Source:       req.Source,
	})
	if err != nil {
		return res, err
	}
	res.Compile = &compileRes
	if !compileRes.OK {
		return res, nil
	}

	artifact := lang.SourceFile
	if lang.CompileEnabled {
		artifact = lang.BinaryFile
	}
	inputDir := filepath.Join(submissionRoot, "inputs")
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		return res, appErr.Wrapf(err, appErr.JudgeSystemError, "create input dir failed")
	}

	res.Tests = make([]result.TestcaseResult, 0, len(req.Tests))
	for _, tc := range req.Tests {
		testDir := filepath.Join(submissionRoot, "test-"+tc.TestID)
		if err := copyArtifact(filepath.Join(compileDir, artifact), filepath.Join(testDir, artifact)); err != nil {
			return res, err
		}
		inputPath := filepath.Join(inputDir, tc.TestID+".in")
		if err := os.WriteFile(inputPath, []byte(tc.Input), 0644); err != nil {
			return res, appErr.Wrapf(err, appErr.JudgeSystemError, "write test input failed")
		}

		runRes, err := w.runner.Run(ctx, runner.RunRequest{
			SubmissionID: req.SubmissionID,
			TestID:       tc.TestID,
			Language:     lang,
			Profile:      runProfile,
			WorkDir:      testDir,
			InputPath:    inputPath,
			Limits:       tc.Limits,
		})
		if err != nil {
			return res, err
		}
		res.Tests = append(res.Tests, runRes)
	}
	return res, nil
}

func validateJudgeRequest(req JudgeRequest) error {
	switch {
	case req.SubmissionID == "":
		return appErr.ValidationError("submission_id", "required")
	case req.LanguageID == "":
		return appErr.ValidationError("language", "required")
	case req.WorkRoot == "":
		return appErr.ValidationError("work_root", "required")
	case len(req.Tests) == 0:
		return appErr.ValidationError("tests", "required")
	}
	for _, tc := range req.Tests {
		if tc.TestID == "" {
			return appErr.ValidationError("test_id", "required")
		}
	}
	return nil
}

func copyArtifact(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create test workdir failed")
	}
	in, err := os.Open(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "open build artifact failed")
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create test artifact failed")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return appErr.Wrapf(err, appErr.JudgeSystemError, "copy build artifact failed")
	}
	if err := out.Close(); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "close test artifact failed")
	}
	return nil
}
