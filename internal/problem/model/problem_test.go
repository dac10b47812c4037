package model_test

import (
	"testing"

	"algoarena/internal/problem/model"
)

func sampleProblem() *model.Problem {
	return &model.Problem{
		ID:            "p1",
		Title:         "Two Sum",
		Difficulty:    model.DifficultyEasy,
		TimeLimitMs:   1000,
		MemoryLimitMb: 256,
		TestCases: []model.TestCase{
			{Input: "1 2", ExpectedOutput: "3"},
			{Input: "5 5", ExpectedOutput: "10", IsHidden: true},
		},
		AcceptedLanguages: []string{"cpp", "python"},
		Status:            model.StatusApproved,
	}
}

func TestProblemValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(p *model.Problem)
		wantErr bool
	}{
		{name: "valid", mutate: func(p *model.Problem) {}},
		{name: "no tests", mutate: func(p *model.Problem) { p.TestCases = nil }, wantErr: true},
		{name: "no languages", mutate: func(p *model.Problem) { p.AcceptedLanguages = nil }, wantErr: true},
		{name: "bad difficulty", mutate: func(p *model.Problem) { p.Difficulty = "extreme" }, wantErr: true},
		{name: "zero time limit", mutate: func(p *model.Problem) { p.TimeLimitMs = 0 }, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := sampleProblem()
			tc.mutate(p)
			if err := p.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestPublicStripsHiddenTests(t *testing.T) {
	view := sampleProblem().Public()
	if len(view.Examples) != 1 || view.Examples[0].ExpectedOutput != "3" {
		t.Fatalf("unexpected examples %+v", view.Examples)
	}
	if view.HiddenTestCount != 1 {
		t.Fatalf("expected 1 hidden test, got %d", view.HiddenTestCount)
	}
}

func TestAcceptsLanguage(t *testing.T) {
	p := sampleProblem()
	if !p.AcceptsLanguage("python") || p.AcceptsLanguage("java") {
		t.Fatalf("unexpected language acceptance")
	}
}
