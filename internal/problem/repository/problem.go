package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"algoarena/internal/common/cache"
	"algoarena/internal/common/db"
	"algoarena/internal/problem/model"
	appErr "algoarena/pkg/errors"
)

const (
	defaultProblemTTL      = 30 * time.Minute
	defaultProblemEmptyTTL = 5 * time.Minute
	defaultCatalogTTL      = time.Minute

	problemKeyPrefix = "problem:detail:"
	catalogKey       = "problem:approved:catalog"
)

var ErrProblemNotFound = errors.New("problem not found")

// CatalogEntry is the slice of a problem needed to choose one for a duel.
type CatalogEntry struct {
	ID                string   `json:"id"`
	AcceptedLanguages []string `json:"acceptedLanguages"`
}

// ProblemRepository reads and seeds problems.
type ProblemRepository interface {
	GetByID(ctx context.Context, id string) (*model.Problem, error)
	ListApproved(ctx context.Context) ([]CatalogEntry, error)
	Upsert(ctx context.Context, problem *model.Problem) error
}

// MySQLProblemRepository keeps problems in MySQL behind a Redis read-through cache.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewProblemRepository(database db.Database, cacheClient cache.Cache) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemTTL, defaultProblemEmptyTTL)
}

func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemEmptyTTL
	}
	return &MySQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

func (r *MySQLProblemRepository) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	if r.cache == nil {
		return r.getFromDB(ctx, id)
	}
	problem, err := cache.GetWithCached[*model.Problem](
		ctx,
		r.cache,
		problemKey(id),
		r.ttl,
		r.emptyTTL,
		func(p *model.Problem) bool { return p == nil },
		marshalJSON[*model.Problem],
		unmarshalJSON[*model.Problem],
		func(ctx context.Context) (*model.Problem, error) {
			p, err := r.getFromDB(ctx, id)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

func (r *MySQLProblemRepository) ListApproved(ctx context.Context) ([]CatalogEntry, error) {
	if r.cache == nil {
		return r.listApprovedFromDB(ctx)
	}
	return cache.GetWithCached[[]CatalogEntry](
		ctx,
		r.cache,
		catalogKey,
		defaultCatalogTTL,
		defaultCatalogTTL,
		func(entries []CatalogEntry) bool { return len(entries) == 0 },
		marshalJSON[[]CatalogEntry],
		unmarshalJSON[[]CatalogEntry],
		r.listApprovedFromDB,
	)
}

// Upsert writes the problem and replaces its test cases in one transaction.
func (r *MySQLProblemRepository) Upsert(ctx context.Context, problem *model.Problem) error {
	if problem == nil {
		return errors.New("problem is nil")
	}
	langs, err := json.Marshal(problem.AcceptedLanguages)
	if err != nil {
		return fmt.Errorf("encode languages: %w", err)
	}
	write := func(ctx context.Context) error {
		return r.db.Transaction(ctx, func(tx db.Transaction) error {
			const upsert = `
				INSERT INTO problems (id, slug, title, description, difficulty, time_limit_ms, memory_limit_mb, accepted_languages, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE slug = VALUES(slug), title = VALUES(title), description = VALUES(description),
					difficulty = VALUES(difficulty), time_limit_ms = VALUES(time_limit_ms), memory_limit_mb = VALUES(memory_limit_mb),
					accepted_languages = VALUES(accepted_languages), status = VALUES(status)`
			if _, err := tx.Exec(ctx, upsert,
				problem.ID, problem.Slug, problem.Title, problem.Description, string(problem.Difficulty),
				problem.TimeLimitMs, problem.MemoryLimitMb, string(langs), string(problem.Status),
			); err != nil {
				if key, ok := db.UniqueViolation(err); ok {
					return appErr.New(appErr.RecordAlreadyExists).
						WithMessagef("slug %q belongs to another problem", problem.Slug).
						WithDetail("key", key)
				}
				return fmt.Errorf("upsert problem: %w", err)
			}
			if _, err := tx.Exec(ctx, "DELETE FROM problem_test_cases WHERE problem_id = ?", problem.ID); err != nil {
				return fmt.Errorf("clear test cases: %w", err)
			}
			for i, tc := range problem.TestCases {
				if _, err := tx.Exec(ctx,
					"INSERT INTO problem_test_cases (problem_id, idx, input, expected_output, is_hidden) VALUES (?, ?, ?, ?, ?)",
					problem.ID, i, tc.Input, tc.ExpectedOutput, tc.IsHidden,
				); err != nil {
					return fmt.Errorf("insert test case %d: %w", i, err)
				}
			}
			return nil
		})
	}
	if r.cache == nil {
		return write(ctx)
	}
	return cache.UpdateCached(ctx, r.cache, write, problemKey(problem.ID), catalogKey)
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, id string) (*model.Problem, error) {
	const query = `
		SELECT id, slug, title, description, difficulty, time_limit_ms, memory_limit_mb, accepted_languages, status
		FROM problems
		WHERE id = ?`
	problem, err := scanProblem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx,
		"SELECT input, expected_output, is_hidden FROM problem_test_cases WHERE problem_id = ? ORDER BY idx", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput, &tc.IsHidden); err != nil {
			return nil, err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problem, nil
}

func (r *MySQLProblemRepository) listApprovedFromDB(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := r.db.Query(ctx,
		"SELECT id, accepted_languages FROM problems WHERE status = ? ORDER BY id", string(model.StatusApproved))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var entry CatalogEntry
		var langs string
		if err := rows.Scan(&entry.ID, &langs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(langs), &entry.AcceptedLanguages); err != nil {
			return nil, fmt.Errorf("decode languages for %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanProblem(scanner db.Scanner) (*model.Problem, error) {
	var (
		p          model.Problem
		difficulty string
		status     string
		langs      string
	)
	if err := scanner.Scan(&p.ID, &p.Slug, &p.Title, &p.Description, &difficulty,
		&p.TimeLimitMs, &p.MemoryLimitMb, &langs, &status); err != nil {
		return nil, err
	}
	p.Difficulty = model.Difficulty(difficulty)
	p.Status = model.Status(status)
	if err := json.Unmarshal([]byte(langs), &p.AcceptedLanguages); err != nil {
		return nil, fmt.Errorf("decode languages: %w", err)
	}
	return &p, nil
}

func problemKey(id string) string {
	return problemKeyPrefix + id
}

func marshalJSON[T any](v T) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalJSON[T any](data string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return v, err
	}
	return v, nil
}
