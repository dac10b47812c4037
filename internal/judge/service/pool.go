package service

import (
	"context"
	"time"

	appErr "algoarena/pkg/errors"
)

// acquireSlot waits for a free worker slot for at most the queue timeout.
func (s *Service) acquireSlot(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		s.metrics.SetInFlight(len(s.sem))
		return nil
	default:
	}

	timer := time.NewTimer(s.cfg.QueueTimeout)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		s.metrics.SetInFlight(len(s.sem))
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "judge request canceled while queued")
	case <-timer.C:
		return appErr.New(appErr.JudgeQueueFull).WithMessage("all judge workers are busy")
	}
}

func (s *Service) releaseSlot() {
	select {
	case <-s.sem:
	default:
	}
	s.metrics.SetInFlight(len(s.sem))
}
