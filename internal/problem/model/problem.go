// Package model holds the problem entity shared by duel rooms and the judge.
package model

import (
	"slices"
	"strings"

	appErr "algoarena/pkg/errors"
)

// Difficulty ranks a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Status is the moderation state. Only approved problems are served to duels.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// TestCase is one input with its expected output.
type TestCase struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expectedOutput" yaml:"expectedOutput"`
	IsHidden       bool   `json:"isHidden" yaml:"isHidden"`
}

// Problem is immutable once loaded; rooms share a pointer to one value.
type Problem struct {
	ID                string     `json:"id" yaml:"id"`
	Slug              string     `json:"slug" yaml:"slug"`
	Title             string     `json:"title" yaml:"title"`
	Description       string     `json:"description" yaml:"description"`
	Difficulty        Difficulty `json:"difficulty" yaml:"difficulty"`
	TestCases         []TestCase `json:"testCases" yaml:"testCases"`
	TimeLimitMs       int64      `json:"timeLimitMs" yaml:"timeLimitMs"`
	MemoryLimitMb     int64      `json:"memoryLimitMb" yaml:"memoryLimitMb"`
	AcceptedLanguages []string   `json:"acceptedLanguages" yaml:"acceptedLanguages"`
	Status            Status     `json:"status" yaml:"status"`
}

// Validate checks the invariants every served problem must hold.
func (p *Problem) Validate() error {
	switch {
	case p == nil:
		return errInvalid("problem is nil")
	case strings.TrimSpace(p.Title) == "":
		return errInvalid("title is required")
	case len(p.TestCases) == 0:
		return errInvalid("at least one test case is required")
	case len(p.AcceptedLanguages) == 0:
		return errInvalid("accepted languages must not be empty")
	case p.TimeLimitMs <= 0:
		return errInvalid("time limit must be positive")
	case p.MemoryLimitMb <= 0:
		return errInvalid("memory limit must be positive")
	}
	switch p.Difficulty {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
	default:
		return errInvalid("unknown difficulty " + string(p.Difficulty))
	}
	return nil
}

// AcceptsLanguage reports whether code in lang may be submitted.
func (p *Problem) AcceptsLanguage(lang string) bool {
	return slices.Contains(p.AcceptedLanguages, lang)
}

// PublicView is the problem as players see it: hidden test cases are removed.
type PublicView struct {
	ID                string     `json:"id"`
	Slug              string     `json:"slug"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Difficulty        Difficulty `json:"difficulty"`
	Examples          []TestCase `json:"examples"`
	HiddenTestCount   int        `json:"hiddenTestCount"`
	TimeLimitMs       int64      `json:"timeLimitMs"`
	MemoryLimitMb     int64      `json:"memoryLimitMb"`
	AcceptedLanguages []string   `json:"acceptedLanguages"`
}

// Public strips hidden test cases.
func (p *Problem) Public() *PublicView {
	if p == nil {
		return nil
	}
	view := &PublicView{
		ID:                p.ID,
		Slug:              p.Slug,
		Title:             p.Title,
		Description:       p.Description,
		Difficulty:        p.Difficulty,
		Examples:          make([]TestCase, 0, len(p.TestCases)),
		TimeLimitMs:       p.TimeLimitMs,
		MemoryLimitMb:     p.MemoryLimitMb,
		AcceptedLanguages: slices.Clone(p.AcceptedLanguages),
	}
	for _, tc := range p.TestCases {
		if tc.IsHidden {
			view.HiddenTestCount++
			continue
		}
		view.Examples = append(view.Examples, tc)
	}
	return view
}

// Filter narrows problem selection.
type Filter struct {
	// Languages, when non-empty, requires the problem to accept at least one of them.
	Languages []string
	// ExcludeIDs skips problems already used.
	ExcludeIDs []string
}

func errInvalid(msg string) error {
	return appErr.New(appErr.ProblemInvalid).WithMessage(msg)
}
