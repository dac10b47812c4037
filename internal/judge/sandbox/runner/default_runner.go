package runner

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"algoarena/internal/judge/sandbox/config"
	"algoarena/internal/judge/sandbox/engine"
	"algoarena/internal/judge/sandbox/profile"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
	appErr "algoarena/pkg/errors"

	"github.com/google/shlex"
)

const (
	containerWorkDir = "/work"
	inputFileName    = "input.txt"
	outputFileName   = "output.txt"
	compileLogName   = "compile.log"
	runtimeLogName   = "runtime.log"

	// compileLogMaxBytes caps the compiler output surfaced to the submitter.
	compileLogMaxBytes = 4096
)

// DefaultRunner implements compile and run workflows on top of the sandbox engine.
type DefaultRunner struct {
	eng     engine.Engine
	metrics Recorder
}

// NewRunner creates a new runner with metrics hooks; a nil recorder is a no-op.
func NewRunner(eng engine.Engine, metrics Recorder) *DefaultRunner {
	if metrics == nil {
		metrics = discardRecorder{}
	}
	return &DefaultRunner{eng: eng, metrics: metrics}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CompileResult{}, err
	}
	if err := WriteSource(req.WorkDir, req.Language.SourceFile, req.Source); err != nil {
		return result.CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}

	limits := applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language)
	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language)
	if err != nil {
		return result.CompileResult{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdoutPath:   filepath.Join(containerWorkDir, compileLogName),
		StderrPath:   filepath.Join(containerWorkDir, compileLogName),
		Profile:      config.ProfileName(req.Language.ID, profile.TaskTypeCompile),
		Limits:       limits,
		BindMounts:   []spec.MountSpec{{Source: req.WorkDir, Target: containerWorkDir}},
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	compileRes := result.CompileResult{
		OK:       err == nil && runRes.ExitCode == 0 && !runRes.TimedOut,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
	}
	r.metrics.ObserveCompile(ctx, req.Language.ID, compileRes.OK, compileRes.TimeMs, compileRes.MemoryKB)
	if err != nil {
		return compileRes, appErr.Wrapf(err, appErr.JudgeSystemError, "compile run failed")
	}
	if !compileRes.OK {
		compileRes.Log = truncate(runRes.Stderr, compileLogMaxBytes)
		if runRes.TimedOut {
			compileRes.Log = strings.TrimSpace(compileRes.Log + "\ncompilation time limit exceeded")
		}
	}
	return compileRes, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.TestcaseResult{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.TestcaseResult{}, err
	}

	limits := applyLimits(req.Limits, req.Profile.DefaultLimits, req.Language)
	runSpec, err := buildRunSpec(req, limits)
	if err != nil {
		return result.TestcaseResult{}, err
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		r.metrics.ObserveRun(ctx, req.Language.ID, string(result.OutcomeSystemError), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
		return result.TestcaseResult{TestID: req.TestID, Outcome: result.OutcomeSystemError},
			appErr.Wrapf(runErr, appErr.JudgeSystemError, "sandbox run failed")
	}

	outcome := classifyRun(runRes, limits)
	r.metrics.ObserveRun(ctx, req.Language.ID, string(outcome), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
	return result.TestcaseResult{
		TestID:     req.TestID,
		Outcome:    outcome,
		TimeMs:     runRes.TimeMs,
		WallTimeMs: runRes.WallTimeMs,
		MemoryKB:   runRes.MemoryKB,
		OutputKB:   runRes.OutputKB,
		ExitCode:   runRes.ExitCode,
		Stdout:     runRes.Stdout,
		Stderr:     runRes.Stderr,
	}, nil
}

func validateCompileRequest(req CompileRequest) error {
	switch {
	case req.SubmissionID == "":
		return appErr.ValidationError("submission_id", "required")
	case req.WorkDir == "":
		return appErr.ValidationError("work_dir", "required")
	case req.Language.ID == "":
		return appErr.ValidationError("language_id", "required")
	case req.Language.CompileEnabled && req.Profile.TaskType != profile.TaskTypeCompile:
		return appErr.ValidationError("task_profile", "compile profile required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	switch {
	case req.SubmissionID == "":
		return appErr.ValidationError("submission_id", "required")
	case req.TestID == "":
		return appErr.ValidationError("test_id", "required")
	case req.WorkDir == "":
		return appErr.ValidationError("work_dir", "required")
	case req.Language.ID == "":
		return appErr.ValidationError("language_id", "required")
	case req.Profile.TaskType == "":
		return appErr.ValidationError("task_profile", "required")
	case req.InputPath == "":
		return appErr.ValidationError("input_path", "required")
	}
	return nil
}

func buildRunSpec(req RunRequest, limits spec.ResourceLimit) (spec.RunSpec, error) {
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language)
	if err != nil {
		return spec.RunSpec{}, err
	}
	input := filepath.Join(containerWorkDir, inputFileName)
	return spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdinPath:    input,
		StdoutPath:   filepath.Join(containerWorkDir, outputFileName),
		StderrPath:   filepath.Join(containerWorkDir, runtimeLogName),
		Profile:      config.ProfileName(req.Language.ID, profile.TaskTypeRun),
		Limits:       limits,
		BindMounts: []spec.MountSpec{
			{Source: req.WorkDir, Target: containerWorkDir},
			{Source: req.InputPath, Target: input, ReadOnly: true},
		},
	}, nil
}

func buildCommand(tpl string, lang profile.LanguageSpec) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.JudgeSystemError).WithMessagef("command template for %s is empty", lang.ID)
	}
	expanded := strings.NewReplacer(
		"{src}", filepath.Join(containerWorkDir, lang.SourceFile),
		"{bin}", filepath.Join(containerWorkDir, lang.BinaryFile),
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.JudgeSystemError).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func applyLimits(override, defaults spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	return applyMultipliers(mergeLimits(defaults, override), lang)
}

func mergeLimits(base, override spec.ResourceLimit) spec.ResourceLimit {
	pick := func(dst *int64, v int64) {
		if v > 0 {
			*dst = v
		}
	}
	pick(&base.CPUTimeMs, override.CPUTimeMs)
	pick(&base.WallTimeMs, override.WallTimeMs)
	pick(&base.MemoryMB, override.MemoryMB)
	pick(&base.StackMB, override.StackMB)
	pick(&base.OutputMB, override.OutputMB)
	pick(&base.PIDs, override.PIDs)
	return base
}

func applyMultipliers(limits spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.WallTimeMs = scaleLimit(limits.WallTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

// classifyRun maps raw run data onto an outcome. Order matters: a run the
// watcher killed is a timeout even though it also died by SIGKILL.
func classifyRun(res result.RunResult, limits spec.ResourceLimit) result.Outcome {
	switch {
	case res.TimedOut:
		return result.OutcomeTimeLimit
	case res.OomKilled:
		return result.OutcomeMemoryLimit
	case limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024:
		return result.OutcomeMemoryLimit
	case limits.OutputMB > 0 && res.OutputKB > limits.OutputMB*1024:
		return result.OutcomeOutputLimit
	case res.ExitCode != 0:
		return result.OutcomeRuntimeError
	}
	return result.OutcomeOK
}

func prepareWorkDir(workDir string) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "create work dir failed")
	}
	return nil
}

// WriteSource writes the submission source into dir under the language's file name.
func WriteSource(dir, fileName, source string) error {
	if fileName == "" {
		return appErr.ValidationError("source_file_name", "required")
	}
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(source), 0644); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write source failed")
	}
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s\n... (%d bytes truncated)", s[:max], len(s)-max)
}
