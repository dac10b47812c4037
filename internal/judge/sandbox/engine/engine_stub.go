//go:build !linux

package engine

import (
	"context"

	"algoarena/internal/judge/sandbox/result"
	"algoarena/internal/judge/sandbox/spec"
	appErr "algoarena/pkg/errors"
)

var errUnsupported = appErr.New(appErr.JudgeSystemError).WithMessage("sandbox requires linux")

type unsupportedEngine struct{}

// NewEngine returns an engine whose runs always fail. It lets the server
// start on developer machines; judging reports a system error.
func NewEngine(Config, ProfileResolver) (Engine, error) {
	return unsupportedEngine{}, nil
}

func (unsupportedEngine) Run(context.Context, spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, errUnsupported
}

func (unsupportedEngine) Probe(context.Context) error { return errUnsupported }
