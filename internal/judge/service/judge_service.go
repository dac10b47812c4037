// Package service judges submissions against problem test cases on a bounded pool.
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"algoarena/internal/judge/model"
	"algoarena/internal/judge/sandbox"
	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
	problemmodel "algoarena/internal/problem/model"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	defaultWorkers        = 4
	defaultQueueTimeout   = 5 * time.Second
	defaultJudgeTimeout   = 2 * time.Minute
	defaultMaxCodeBytes   = 64 * 1024
	defaultWallTimeFactor = 2.0
	defaultOutputLimitMB  = 16
	displayOutputMaxBytes = 4096
)

// LanguageChecker reports whether the sandbox can run a language.
type LanguageChecker interface {
	Languages() []string
}

// Metrics receives judge level measurements.
type Metrics interface {
	ObserveVerdict(ctx context.Context, language string, status string, duration time.Duration)
	SetInFlight(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveVerdict(context.Context, string, string, time.Duration) {}
func (noopMetrics) SetInFlight(int)                                               {}

// Config holds judge pool settings.
type Config struct {
	Workers        int           `yaml:"workers"`
	QueueTimeout   time.Duration `yaml:"queueTimeout"`
	JudgeTimeout   time.Duration `yaml:"judgeTimeout"`
	WorkRoot       string        `yaml:"workRoot"`
	MaxCodeBytes   int           `yaml:"maxCodeBytes"`
	WallTimeFactor float64       `yaml:"wallTimeFactor"`
	OutputLimitMB  int64         `yaml:"outputLimitMB"`
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = defaultQueueTimeout
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = defaultJudgeTimeout
	}
	if c.MaxCodeBytes <= 0 {
		c.MaxCodeBytes = defaultMaxCodeBytes
	}
	if c.WallTimeFactor < 1 {
		c.WallTimeFactor = defaultWallTimeFactor
	}
	if c.OutputLimitMB <= 0 {
		c.OutputLimitMB = defaultOutputLimitMB
	}
}

// Request is one submission to judge.
type Request struct {
	SubmissionID string
	Code         string
	Language     string
	Problem      *problemmodel.Problem
}

// Callback receives the outcome of an asynchronous judge call.
type Callback func(verdict model.Verdict, err error)

// Service is the judging engine. It is stateless per call and safe for concurrent use.
type Service struct {
	cfg       Config
	executor  sandbox.Executor
	languages LanguageChecker
	metrics   Metrics
	clock     clockwork.Clock
	sem       chan struct{}
	inflight  sync.WaitGroup
}

// NewService creates a judge service.
func NewService(cfg Config, executor sandbox.Executor, languages LanguageChecker, metrics Metrics, clock clockwork.Clock) (*Service, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if languages == nil {
		return nil, fmt.Errorf("language checker is required")
	}
	if cfg.WorkRoot == "" {
		return nil, fmt.Errorf("work root is required")
	}
	cfg.applyDefaults()
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		cfg:       cfg,
		executor:  executor,
		languages: languages,
		metrics:   metrics,
		clock:     clock,
		sem:       make(chan struct{}, cfg.Workers),
	}, nil
}

// CheckLanguage fails with LanguageNotSupported unless the problem accepts
// lang and the sandbox has it configured.
func (s *Service) CheckLanguage(problem *problemmodel.Problem, lang string) error {
	if problem == nil {
		return appErr.ValidationError("problem", "required")
	}
	if !problem.AcceptsLanguage(lang) {
		return appErr.Newf(appErr.LanguageNotSupported, "language %q is not accepted for this problem", lang).
			WithDetail("accepted", problem.AcceptedLanguages)
	}
	for _, known := range s.languages.Languages() {
		if known == lang {
			return nil
		}
	}
	return appErr.Newf(appErr.LanguageNotSupported, "language %q is not available on this server", lang)
}

// Validate runs every check that happens before execution.
func (s *Service) Validate(req Request) error {
	if strings.TrimSpace(req.Code) == "" {
		return appErr.ValidationError("code", "required")
	}
	if len(req.Code) > s.cfg.MaxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.cfg.MaxCodeBytes)
	}
	if req.Language == "" {
		return appErr.ValidationError("language", "required")
	}
	return s.CheckLanguage(req.Problem, req.Language)
}

// Judge validates, waits for a worker slot and runs the submission.
// Sandbox failures become an internalError verdict rather than an error;
// errors are reserved for rejections that happen before anything runs.
func (s *Service) Judge(ctx context.Context, req Request) (model.Verdict, error) {
	if err := s.Validate(req); err != nil {
		return model.Verdict{}, err
	}
	return s.run(ctx, req)
}

// JudgeAsync validates synchronously, then judges on the pool and reports
// through cb. Cancelling ctx after the call returns does not abort judging.
func (s *Service) JudgeAsync(ctx context.Context, req Request, cb Callback) error {
	if err := s.Validate(req); err != nil {
		return err
	}
	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		v, err := s.run(detached, req)
		cb(v, err)
	}()
	return nil
}

// Wait blocks until asynchronous calls finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) run(ctx context.Context, req Request) (model.Verdict, error) {
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	if err := s.acquireSlot(ctx); err != nil {
		return model.Verdict{}, err
	}
	defer s.releaseSlot()

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.JudgeTimeout)
	defer cancel()

	start := s.clock.Now()
	res, err := s.executor.Execute(runCtx, sandbox.JudgeRequest{
		SubmissionID: req.SubmissionID,
		LanguageID:   req.Language,
		WorkRoot:     s.cfg.WorkRoot,
		Source:       req.Code,
		Tests:        s.buildTests(req.Problem),
	})

	var verdict model.Verdict
	if err != nil {
		logger.Error(ctx, "sandbox execution failed",
			zap.String("submission_id", req.SubmissionID),
			zap.String("language", req.Language),
			zap.Error(err),
		)
		verdict = internalErrorVerdict(req)
	} else {
		verdict = buildVerdict(req, res)
	}
	verdict.JudgedAtMs = s.clock.Now().UnixMilli()
	s.metrics.ObserveVerdict(ctx, req.Language, string(verdict.Status), s.clock.Since(start))
	return verdict, nil
}

func (s *Service) buildTests(p *problemmodel.Problem) []sandbox.TestcaseSpec {
	limits := spec.ResourceLimit{
		CPUTimeMs:  p.TimeLimitMs,
		WallTimeMs: int64(float64(p.TimeLimitMs) * s.cfg.WallTimeFactor),
		MemoryMB:   p.MemoryLimitMb,
		OutputMB:   s.cfg.OutputLimitMB,
	}
	tests := make([]sandbox.TestcaseSpec, len(p.TestCases))
	for i, tc := range p.TestCases {
		tests[i] = sandbox.TestcaseSpec{TestID: strconv.Itoa(i), Input: tc.Input, Limits: limits}
	}
	return tests
}

func buildVerdict(req Request, res result.JudgeResult) model.Verdict {
	cases := req.Problem.TestCases
	v := model.Verdict{
		SubmissionID: req.SubmissionID,
		Language:     req.Language,
		Tests:        make([]model.TestResult, len(cases)),
	}

	if res.CompileFailed() {
		v.CompileLog = res.Compile.Log
		for i, tc := range cases {
			v.Tests[i] = model.TestResult{Index: i, Hidden: tc.IsHidden, FailureKind: model.FailureCompileError}
		}
		v.Finalize()
		return v
	}

	for i, tc := range cases {
		tr := model.TestResult{Index: i, Hidden: tc.IsHidden, ExpectedOutput: tc.ExpectedOutput}
		if i >= len(res.Tests) {
			tr.FailureKind = model.FailureInternalError
			v.Tests[i] = tr
			continue
		}
		run := res.Tests[i]
		tr.ObservedOutput = clip(run.Stdout, displayOutputMaxBytes)
		tr.ExecutionTimeMs = run.WallTimeMs
		tr.MemoryUsedKb = run.MemoryKB
		tr.FailureKind = failureFor(run.Outcome)
		if tr.FailureKind == model.FailureNone {
			if outputsMatch(run.Stdout, tc.ExpectedOutput) {
				tr.Passed = true
			} else {
				tr.FailureKind = model.FailureWrongAnswer
			}
		}
		v.Tests[i] = tr
	}
	v.Finalize()
	return v
}

func failureFor(outcome result.Outcome) model.FailureKind {
	switch outcome {
	case result.OutcomeOK:
		return model.FailureNone
	case result.OutcomeTimeLimit:
		return model.FailureTimeout
	case result.OutcomeMemoryLimit:
		return model.FailureMemoryExceeded
	case result.OutcomeRuntimeError, result.OutcomeOutputLimit:
		return model.FailureRuntimeError
	case result.OutcomeCompileFailure:
		return model.FailureCompileError
	default:
		return model.FailureInternalError
	}
}

func internalErrorVerdict(req Request) model.Verdict {
	v := model.Verdict{
		SubmissionID: req.SubmissionID,
		Language:     req.Language,
		Tests:        make([]model.TestResult, len(req.Problem.TestCases)),
	}
	for i, tc := range req.Problem.TestCases {
		v.Tests[i] = model.TestResult{Index: i, Hidden: tc.IsHidden, FailureKind: model.FailureInternalError}
	}
	v.Finalize()
	return v
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
