package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"algoarena/internal/common/cache"
	"algoarena/internal/common/db"
	"algoarena/internal/judge/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "submission:"
)

var ErrSubmissionNotFound = errors.New("submission not found")

// Submission is one judged submission. Source code lives in object storage under SourceKey.
type Submission struct {
	ID          string        `json:"id"`
	UserID      string        `json:"userId"`
	ProblemID   string        `json:"problemId"`
	RoomID      string        `json:"roomId,omitempty"`
	Language    string        `json:"language"`
	SourceKey   string        `json:"sourceKey"`
	SourceHash  string        `json:"sourceHash"`
	SourceBytes int64         `json:"sourceBytes"`
	Verdict     model.Verdict `json:"verdict"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *Submission) error
	GetByID(ctx context.Context, submissionID string) (*Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      defaultSubmissionCacheTTL,
		emptyTTL: defaultSubmissionCacheEmptyTTL,
	}
}

const submissionColumns = "id, user_id, problem_id, room_id, language, source_key, source_hash, source_bytes, verdict, created_at"

// Create inserts a submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.UserID == "" {
		return errors.New("user id is required")
	}
	if submission.SourceKey == "" {
		return errors.New("source key is required")
	}
	verdict, err := json.Marshal(submission.Verdict)
	if err != nil {
		return fmt.Errorf("encode verdict: %w", err)
	}

	const query = `
		INSERT INTO submissions
		(id, user_id, problem_id, room_id, language, source_key, source_hash, source_bytes,
		 status, passed_all, passed_count, total_count, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(ctx, query,
		submission.ID,
		submission.UserID,
		submission.ProblemID,
		nullableString(submission.RoomID),
		submission.Language,
		submission.SourceKey,
		submission.SourceHash,
		submission.SourceBytes,
		string(submission.Verdict.Status),
		submission.Verdict.PassedAll,
		submission.Verdict.PassedCount,
		submission.Verdict.TotalCount,
		string(verdict),
		submission.CreatedAt,
	)
	if err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, submissionCacheKey(submission.ID))
	}
	return nil
}

// GetByID retrieves a submission by id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submission id is required")
	}
	if r.cache == nil {
		return r.getByIDFromDB(ctx, submissionID)
	}
	submission, err := cache.GetWithCached[*Submission](
		ctx,
		r.cache,
		submissionCacheKey(submissionID),
		r.ttl,
		r.emptyTTL,
		func(submission *Submission) bool { return submission == nil },
		marshalSubmission,
		unmarshalSubmission,
		func(ctx context.Context) (*Submission, error) {
			submission, err := r.getByIDFromDB(ctx, submissionID)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return submission, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)
	submission := &Submission{}
	var (
		roomID  *string
		verdict string
	)
	if err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&roomID,
		&submission.Language,
		&submission.SourceKey,
		&submission.SourceHash,
		&submission.SourceBytes,
		&verdict,
		&submission.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if roomID != nil {
		submission.RoomID = *roomID
	}
	if err := json.Unmarshal([]byte(verdict), &submission.Verdict); err != nil {
		return nil, fmt.Errorf("decode verdict: %w", err)
	}
	return submission, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}
