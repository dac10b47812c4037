// Package service records judged submissions and serves the practice judging path.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"algoarena/internal/auth"
	"algoarena/internal/common/storage"
	"algoarena/internal/judge/model"
	judgeService "algoarena/internal/judge/service"
	problemModel "algoarena/internal/problem/model"
	"algoarena/internal/submit/repository"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	defaultSourcePrefix = "submissions"
	sourceContentType   = "application/zstd"
	maxSourceBytes      = 1 << 20
)

// Judge runs a submission synchronously.
type Judge interface {
	Judge(ctx context.Context, req judgeService.Request) (model.Verdict, error)
}

// ProblemGetter loads a problem by id.
type ProblemGetter interface {
	GetByID(ctx context.Context, id string) (*problemModel.Problem, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration `yaml:"db"`
	Storage time.Duration `yaml:"storage"`
	Judge   time.Duration `yaml:"judge"`
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	Storage        storage.ObjectStorage
	Judge          Judge
	Problems       ProblemGetter

	SourceBucket    string
	SourceKeyPrefix string
	Timeouts        TimeoutConfig
}

// SubmitService archives sources and stores submission records.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	storage        storage.ObjectStorage
	judge          Judge
	problems       ProblemGetter

	sourceBucket    string
	sourceKeyPrefix string
	timeouts        TimeoutConfig

	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// Record is a judged submission to persist.
type Record struct {
	SubmissionID string
	UserID       string
	ProblemID    string
	RoomID       string
	Language     string
	Code         string
	Verdict      model.Verdict
}

// PracticeInput is a non-duel judging request.
type PracticeInput struct {
	ProblemID string
	Language  string
	Code      string
}

// NewSubmitService creates a new submit service. Judge and Problems are only
// needed for Practice.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.SourceBucket == "" {
		return nil, fmt.Errorf("source bucket is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxSourceBytes*4))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &SubmitService{
		submissionRepo:  cfg.SubmissionRepo,
		storage:         cfg.Storage,
		judge:           cfg.Judge,
		problems:        cfg.Problems,
		sourceBucket:    cfg.SourceBucket,
		sourceKeyPrefix: cfg.SourceKeyPrefix,
		timeouts:        cfg.Timeouts,
		encoder:         encoder,
		decoder:         decoder,
		now:             time.Now,
	}, nil
}

// Practice judges code against a problem outside any duel and records the result.
func (s *SubmitService) Practice(ctx context.Context, caller auth.Identity, input PracticeInput) (*repository.Submission, error) {
	if s.judge == nil || s.problems == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("practice judging is not enabled")
	}
	if input.ProblemID == "" {
		return nil, appErr.ValidationError("problemId", "required")
	}
	problem, err := s.problems.GetByID(ctx, input.ProblemID)
	if err != nil {
		return nil, err
	}

	submissionID := uuid.NewString()
	ctxJudge, cancel := withTimeout(ctx, s.timeouts.Judge)
	defer cancel()
	verdict, err := s.judge.Judge(ctxJudge, judgeService.Request{
		SubmissionID: submissionID,
		Code:         input.Code,
		Language:     input.Language,
		Problem:      problem,
	})
	if err != nil {
		return nil, err
	}

	record := Record{
		SubmissionID: submissionID,
		UserID:       caller.UserID,
		ProblemID:    problem.ID,
		Language:     input.Language,
		Code:         input.Code,
		Verdict:      verdict,
	}
	submission, err := s.record(ctx, record)
	if err != nil {
		return nil, err
	}
	submission.Verdict = submission.Verdict.Redacted()
	return submission, nil
}

// RecordSubmission archives the source and stores the record. It returns the submission id.
func (s *SubmitService) RecordSubmission(ctx context.Context, rec Record) (string, error) {
	submission, err := s.record(ctx, rec)
	if err != nil {
		return "", err
	}
	return submission.ID, nil
}

func (s *SubmitService) record(ctx context.Context, rec Record) (*repository.Submission, error) {
	if rec.UserID == "" {
		return nil, appErr.ValidationError("userId", "required")
	}
	if rec.ProblemID == "" {
		return nil, appErr.ValidationError("problemId", "required")
	}
	if len(rec.Code) > maxSourceBytes {
		return nil, appErr.New(appErr.CodeTooLarge)
	}
	if rec.SubmissionID == "" {
		rec.SubmissionID = rec.Verdict.SubmissionID
	}
	if rec.SubmissionID == "" {
		rec.SubmissionID = uuid.NewString()
	}

	sourceKey := s.buildSourceKey(rec.SubmissionID)
	if err := s.uploadSource(ctx, sourceKey, rec.Code); err != nil {
		return nil, err
	}

	submission := &repository.Submission{
		ID:          rec.SubmissionID,
		UserID:      rec.UserID,
		ProblemID:   rec.ProblemID,
		RoomID:      rec.RoomID,
		Language:    rec.Language,
		SourceKey:   sourceKey,
		SourceHash:  hashSource(rec.Code),
		SourceBytes: int64(len(rec.Code)),
		Verdict:     rec.Verdict,
		CreatedAt:   s.now().UTC(),
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	if err := s.submissionRepo.Create(ctxDB, submission); err != nil {
		return nil, appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	logger.Info(ctx, "submission recorded",
		zap.String("submission_id", submission.ID),
		zap.String("problem_id", submission.ProblemID),
		zap.String("status", string(submission.Verdict.Status)),
	)
	return submission, nil
}

// Get returns a submission owned by caller with hidden test output redacted.
func (s *SubmitService) Get(ctx context.Context, caller auth.Identity, submissionID string) (*repository.Submission, error) {
	submission, err := s.load(ctx, caller, submissionID)
	if err != nil {
		return nil, err
	}
	submission.Verdict = submission.Verdict.Redacted()
	return submission, nil
}

// GetSource returns the archived source of a submission owned by caller.
func (s *SubmitService) GetSource(ctx context.Context, caller auth.Identity, submissionID string) (string, error) {
	submission, err := s.load(ctx, caller, submissionID)
	if err != nil {
		return "", err
	}
	ctxStorage, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	reader, err := s.storage.GetObject(ctxStorage, s.sourceBucket, submission.SourceKey)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "read source failed")
	}
	defer reader.Close()
	compressed, err := io.ReadAll(io.LimitReader(reader, maxSourceBytes))
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "read source failed")
	}
	source, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.ObjectStorageError, "decode source failed")
	}
	return string(source), nil
}

func (s *SubmitService) load(ctx context.Context, caller auth.Identity, submissionID string) (*repository.Submission, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submissionId", "required")
	}
	ctxDB, cancel := withTimeout(ctx, s.timeouts.DB)
	defer cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	// Other users' submissions look absent rather than forbidden.
	if submission.UserID != caller.UserID && !caller.IsAdmin {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return submission, nil
}

func (s *SubmitService) uploadSource(ctx context.Context, objectKey, source string) error {
	compressed := s.encoder.EncodeAll([]byte(source), nil)
	ctxStorage, cancel := withTimeout(ctx, s.timeouts.Storage)
	defer cancel()
	if err := s.storage.PutObject(ctxStorage, s.sourceBucket, objectKey, bytes.NewReader(compressed), int64(len(compressed)), sourceContentType); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "upload source failed")
	}
	return nil
}

func (s *SubmitService) buildSourceKey(submissionID string) string {
	return fmt.Sprintf("%s/%s/source.zst", s.sourceKeyPrefix, submissionID)
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
