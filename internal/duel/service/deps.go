package service

import (
	"context"

	"algoarena/internal/duel/model"
	judgeService "algoarena/internal/judge/service"
	problemModel "algoarena/internal/problem/model"
	submitService "algoarena/internal/submit/service"

	"github.com/jonboulle/clockwork"
)

// Notifier delivers events to connections. Both methods enqueue and never block;
// rooms call them while holding their lock.
type Notifier interface {
	Send(connID string, event string, payload any)
	Broadcast(event string, payload any)
}

// Judge runs submissions off the caller's goroutine. JudgeAsync validates the
// request synchronously and must not invoke cb before returning.
type Judge interface {
	JudgeAsync(ctx context.Context, req judgeService.Request, cb judgeService.Callback) error
}

// ProblemSource serves approved problems.
type ProblemSource interface {
	GetApprovedProblem(ctx context.Context, filter problemModel.Filter) (*problemModel.Problem, error)
}

// RoomIDReserver checks room id uniqueness across server instances.
type RoomIDReserver interface {
	Reserve(ctx context.Context, roomID string) (bool, error)
	Release(ctx context.Context, roomID string) error
}

// EventPublisher emits duel results for downstream consumers.
type EventPublisher interface {
	PublishFinished(ctx context.Context, event model.FinishedEvent) error
}

// SubmissionRecorder stores judged duel submissions.
type SubmissionRecorder interface {
	RecordSubmission(ctx context.Context, rec submitService.Record) (string, error)
}

// Metrics receives room level measurements.
type Metrics interface {
	SetRooms(counts map[string]int)
	MatchFinished(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SetRooms(map[string]int) {}
func (noopMetrics) MatchFinished(string)    {}

// Deps are the collaborators of a Registry. Clock, Notifier, Judge and Problems
// are required.
type Deps struct {
	Clock    clockwork.Clock
	Notifier Notifier
	Judge    Judge
	Problems ProblemSource
	IDs      RoomIDReserver
	Events   EventPublisher
	Recorder SubmissionRecorder
	Metrics  Metrics
}
