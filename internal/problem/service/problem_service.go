package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"algoarena/internal/problem/model"
	"algoarena/internal/problem/repository"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// ProblemService is the read side duels and the judge use, plus seeding.
type ProblemService struct {
	repo repository.ProblemRepository
	pick func(n int) int
}

// NewProblemService creates a new ProblemService.
func NewProblemService(repo repository.ProblemRepository) *ProblemService {
	return &ProblemService{repo: repo, pick: rand.IntN}
}

// GetByID returns any problem by id, approved or not.
func (s *ProblemService) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErr.ValidationError("id", "required")
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound).WithDetail("problem_id", id)
		}
		return nil, appErr.Wrapf(err, appErr.ProblemSourceFailed, "load problem %s failed", id)
	}
	return p, nil
}

// GetApprovedProblem picks a random approved problem matching filter.
// When filter.Languages is set, the problem must accept at least one of them.
func (s *ProblemService) GetApprovedProblem(ctx context.Context, filter model.Filter) (*model.Problem, error) {
	catalog, err := s.repo.ListApproved(ctx)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProblemSourceFailed, "list approved problems failed")
	}

	candidates := matchCatalog(catalog, filter)
	if len(candidates) == 0 {
		return nil, appErr.New(appErr.NoProblemAvailable).WithDetail("languages", filter.Languages)
	}

	// A problem can disappear between listing and loading; try the others before giving up.
	for len(candidates) > 0 {
		i := s.pick(len(candidates))
		id := candidates[i]
		candidates = append(candidates[:i], candidates[i+1:]...)

		p, err := s.GetByID(ctx, id)
		if appErr.Is(err, appErr.ProblemNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if p.Status != model.StatusApproved {
			continue
		}
		if err := p.Validate(); err != nil {
			logger.Warn(ctx, "skipping invalid approved problem", zap.String("problem_id", id), zap.Error(err))
			continue
		}
		return p, nil
	}
	return nil, appErr.New(appErr.NoProblemAvailable)
}

// Seed validates and stores problems, deriving missing slugs and ids from titles.
func (s *ProblemService) Seed(ctx context.Context, problems []*model.Problem) (int, error) {
	seeded := 0
	for _, p := range problems {
		if p.Slug == "" {
			p.Slug = slug.Make(p.Title)
		}
		if p.ID == "" {
			p.ID = p.Slug
		}
		if p.Status == "" {
			p.Status = model.StatusApproved
		}
		if err := p.Validate(); err != nil {
			return seeded, fmt.Errorf("problem %q: %w", p.Title, err)
		}
		if err := s.repo.Upsert(ctx, p); err != nil {
			return seeded, appErr.Wrapf(err, appErr.DatabaseError, "seed problem %s failed", p.ID)
		}
		seeded++
	}
	return seeded, nil
}

func matchCatalog(catalog []repository.CatalogEntry, filter model.Filter) []string {
	excluded := mapset.NewThreadUnsafeSet(filter.ExcludeIDs...)
	wanted := mapset.NewThreadUnsafeSet(filter.Languages...)

	out := make([]string, 0, len(catalog))
	for _, entry := range catalog {
		if len(entry.AcceptedLanguages) == 0 || excluded.Contains(entry.ID) {
			continue
		}
		if wanted.Cardinality() > 0 {
			accepted := mapset.NewThreadUnsafeSet(entry.AcceptedLanguages...)
			if accepted.Intersect(wanted).Cardinality() == 0 {
				continue
			}
		}
		out = append(out, entry.ID)
	}
	return out
}
