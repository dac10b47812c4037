package service

import (
	"context"
	"time"

	"algoarena/internal/duel/model"
	judgeModel "algoarena/internal/judge/model"
	problemModel "algoarena/internal/problem/model"
	submitService "algoarena/internal/submit/service"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/logger"

	"go.uber.org/zap"
)

// effects collects work decided under a room lock that must run after it is
// released: index cleanup, lobby broadcasts and outbound IO.
type effects struct {
	lobby     bool
	evict     bool
	unindex   []string
	finished  *model.FinishedEvent
	record    *submitService.Record
	selection *selectionJob
}

type selectionJob struct {
	roster uint64
	filter problemModel.Filter
}

// withRoom runs fn under the room lock and then applies its effects.
func (r *Registry) withRoom(room *Room, fn func(fx *effects) error) error {
	fx := &effects{}
	room.mu.Lock()
	err := fn(fx)
	room.mu.Unlock()
	r.apply(room, fx)
	return err
}

func (r *Registry) apply(room *Room, fx *effects) {
	for _, userID := range fx.unindex {
		r.unindex(userID, room.id)
	}
	if fx.evict {
		r.rooms.Compute(room.id, func(old *Room, loaded bool) (*Room, bool) {
			return old, !loaded || old == room
		})
		r.releaseID(room.id)
		logger.Info(withRoomID(r.baseCtx, room.id), "duel room evicted")
	}
	if fx.finished != nil {
		r.metrics.MatchFinished(string(fx.finished.Reason))
		if r.events != nil {
			event := *fx.finished
			r.background(func(ctx context.Context) {
				if err := r.events.PublishFinished(ctx, event); err != nil {
					logger.Warn(withRoomID(ctx, event.RoomID), "publish duel result failed", zap.Error(err))
				}
			})
		}
	}
	if fx.record != nil && r.recorder != nil {
		rec := *fx.record
		r.background(func(ctx context.Context) {
			if _, err := r.recorder.RecordSubmission(ctx, rec); err != nil {
				logger.Warn(withRoomID(ctx, rec.RoomID), "record duel submission failed",
					zap.String("submission_id", rec.SubmissionID), zap.Error(err))
			}
		})
	}
	if fx.selection != nil {
		job := *fx.selection
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.runSelection(room, job)
		}()
	}
	if fx.lobby || fx.evict {
		r.broadcastRoomList()
	}
}

// background runs fn on a tracked goroutine bounded by SelectTimeout.
func (r *Registry) background(fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.baseCtx), r.cfg.SelectTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// unindex drops userID from the user index if it still points at roomID.
func (r *Registry) unindex(userID, roomID string) {
	r.users.Compute(userID, func(old string, loaded bool) (string, bool) {
		if !loaded || old != roomID {
			return old, !loaded
		}
		return "", true
	})
}

// broadcastRoomList pushes the lobby to every connection. lobbyMu keeps
// successive snapshots in order.
func (r *Registry) broadcastRoomList() {
	r.lobbyMu.Lock()
	defer r.lobbyMu.Unlock()
	list := r.ListRooms()
	counts := map[string]int{
		string(model.StatusWaiting):    0,
		string(model.StatusStarting):   0,
		string(model.StatusInProgress): 0,
	}
	for _, s := range list {
		counts[string(s.Status)]++
	}
	r.metrics.SetRooms(counts)
	r.notifier.Broadcast(model.EventRoomList, list)
}

// evictLocked closes the room and schedules its removal from both indexes.
func (r *Registry) evictLocked(room *Room, fx *effects) {
	if room.evicted {
		return
	}
	room.close()
	fx.evict = true
	fx.unindex = append(fx.unindex, room.memberIDs()...)
}

// runSelection fetches a problem for a room whose players are all ready and
// starts the countdown if the roster did not change meanwhile.
func (r *Registry) runSelection(room *Room, job selectionJob) {
	ctx := withRoomID(r.baseCtx, room.id)
	problem, err := r.selectProblem(ctx, job.filter)

	r.withRoom(room, func(fx *effects) error {
		room.selecting = false
		if room.evicted || room.status != model.StatusWaiting {
			return nil
		}
		if room.roster != job.roster || !room.readyToStart() {
			// The roster changed; a fresh selection starts once everyone is ready again.
			if room.readyToStart() {
				room.selecting = true
				fx.selection = &selectionJob{roster: room.roster, filter: room.selectionFilter()}
			}
			return nil
		}
		now := r.clock.Now()
		if err != nil {
			logger.Error(ctx, "problem selection failed", zap.Error(err))
			for _, p := range room.players {
				p.ready = false
			}
			room.touch()
			for _, p := range room.players {
				room.sendTo(r.notifier, p, model.EventDuelError, model.ErrorPayload{
					Message: "could not load a problem, please ready up again",
					Code:    int(appErr.GetCode(err)),
					RoomID:  room.id,
				})
			}
			room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
			return nil
		}
		r.startCountdown(room, problem, now)
		fx.lobby = true
		return nil
	})
}

// selectProblem asks the problem source for an approved problem, dropping the
// language filter when nothing matches and retrying source failures.
func (r *Registry) selectProblem(ctx context.Context, filter problemModel.Filter) (*problemModel.Problem, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.ProblemRetries; attempt++ {
		if attempt > 0 {
			if wait := computeBackoff(attempt-1, r.cfg.RetryBaseDelay, r.cfg.RetryMaxDelay); wait > 0 {
				select {
				case <-r.clock.After(wait):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
		problem, err := r.fetchProblem(ctx, filter)
		if err == nil {
			return problem, nil
		}
		if appErr.Is(err, appErr.NoProblemAvailable) && len(filter.Languages) > 0 {
			logger.Info(ctx, "no problem for shared languages, selecting from all", zap.Strings("languages", filter.Languages))
			filter = problemModel.Filter{}
			problem, err = r.fetchProblem(ctx, filter)
			if err == nil {
				return problem, nil
			}
		}
		lastErr = err
		logger.Warn(ctx, "problem source failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

func (r *Registry) fetchProblem(ctx context.Context, filter problemModel.Filter) (*problemModel.Problem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SelectTimeout)
	defer cancel()
	problem, err := r.problems.GetApprovedProblem(ctx, filter)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, appErr.New(appErr.NoProblemAvailable)
	}
	return problem, nil
}

func (r *Registry) startCountdown(room *Room, problem *problemModel.Problem, now time.Time) {
	room.problem = problem
	room.status = model.StatusStarting
	room.startedAt = now
	room.countdownEndsAt = now.Add(r.cfg.Countdown)
	token := room.nextToken()
	room.countdownToken = token
	room.countdown = r.clock.AfterFunc(r.cfg.Countdown, func() {
		r.onCountdown(room, token)
	})
	room.touch()
	room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
	logger.Info(withRoomID(r.baseCtx, room.id), "duel countdown started", zap.String("problem_id", problem.ID))
}

func (r *Registry) onCountdown(room *Room, token uint64) {
	r.withRoom(room, func(fx *effects) error {
		if room.evicted || room.countdownToken != token || room.status != model.StatusStarting {
			return nil
		}
		room.countdownToken = 0
		now := r.clock.Now()
		limit := time.Duration(room.problem.TimeLimitMs) * r.cfg.MatchTimeUnit
		room.status = model.StatusInProgress
		room.matchStartedAt = now
		room.matchEndsAt = now.Add(limit)
		matchToken := room.nextToken()
		room.matchToken = matchToken
		room.matchTimer = r.clock.AfterFunc(limit, func() {
			r.onMatchTimeout(room, matchToken)
		})
		room.touch()
		room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
		fx.lobby = true
		return nil
	})
}

func (r *Registry) onMatchTimeout(room *Room, token uint64) {
	r.withRoom(room, func(fx *effects) error {
		if room.evicted || room.matchToken != token || room.status != model.StatusInProgress {
			return nil
		}
		room.matchToken = 0
		r.finish(room, "", model.EndTimeout, fx)
		return nil
	})
}

// finish completes the duel. It is the only place a winner is written, so the
// first caller under the room lock decides the outcome.
func (r *Registry) finish(room *Room, winnerID string, reason model.EndReason, fx *effects) {
	if room.status == model.StatusCompleted {
		return
	}
	now := r.clock.Now()
	room.status = model.StatusCompleted
	room.completedAt = now
	room.winnerID = winnerID
	room.endReason = reason
	stopTimer(room.countdown)
	stopTimer(room.matchTimer)
	room.countdownToken, room.matchToken = 0, 0
	for _, p := range room.players {
		stopTimer(p.graceTimer)
		p.graceToken = 0
	}
	room.touch()

	for _, p := range room.players {
		room.sendTo(r.notifier, p, model.EventDuelEnded, model.DuelEndedPayload{
			WinnerID: winnerID,
			Reason:   reason,
			Room:     room.viewFor(p.userID, now),
		})
	}

	attempts := make([]int, len(room.players))
	for i, p := range room.players {
		attempts[i] = p.attempts
	}
	event := model.FinishedEvent{
		RoomID:        room.id,
		PlayerIDs:     room.memberIDs(),
		WinnerID:      winnerID,
		Reason:        reason,
		StartedAtMs:   unixMilli(room.matchStartedAt),
		CompletedAtMs: now.UnixMilli(),
		Attempts:      attempts,
	}
	if room.problem != nil {
		event.ProblemID = room.problem.ID
	}
	fx.finished = &event
	fx.lobby = true
	if room.allGone() {
		r.evictLocked(room, fx)
	}
	logger.Info(withRoomID(r.baseCtx, room.id), "duel finished",
		zap.String("winner_id", winnerID), zap.String("reason", string(reason)))
}

// onVerdict applies a judging result to the submitter's slot.
func (r *Registry) onVerdict(room *Room, userID, subID string, verdict judgeModel.Verdict, judgeErr error) {
	r.withRoom(room, func(fx *effects) error {
		p := room.member(userID)
		if p == nil || p.sub == nil || p.sub.id != subID {
			return nil
		}
		p.sub.judging = false
		now := r.clock.Now()
		if judgeErr != nil {
			logger.Error(withRoomID(r.baseCtx, room.id), "judging failed",
				zap.String("submission_id", subID), zap.Error(judgeErr))
			room.touch()
			room.sendTo(r.notifier, p, model.EventDuelError, model.ErrorPayload{
				Message: "judging failed, please submit again",
				Code:    int(appErr.GetCode(judgeErr)),
				RoomID:  room.id,
			})
			room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
			return nil
		}

		v := verdict
		p.sub.verdict = &v
		room.touch()
		room.sendTo(r.notifier, p, model.EventSubmissionResult, model.SubmissionResultPayload{
			RoomID:       room.id,
			SubmissionID: subID,
			Verdict:      v.Redacted(),
		})
		if v.Status == judgeModel.StatusInternalError {
			room.sendTo(r.notifier, p, model.EventDuelError, model.ErrorPayload{
				Message: "the judge could not run your submission, please submit again",
				Code:    int(appErr.JudgeSystemError),
				RoomID:  room.id,
			})
		}
		if room.problem != nil {
			fx.record = &submitService.Record{
				SubmissionID: subID,
				UserID:       userID,
				ProblemID:    room.problem.ID,
				RoomID:       room.id,
				Language:     p.sub.language,
				Code:         p.sub.code,
				Verdict:      v,
			}
		}

		if room.status == model.StatusInProgress && v.PassedAll {
			r.finish(room, userID, model.EndSolved, fx)
			return nil
		}
		room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
		return nil
	})
}

// dropPlayer handles a member leaving: a waiting slot is freed, a running duel
// is forfeited and a completed room just forgets them.
func (r *Registry) dropPlayer(room *Room, p *player, fx *effects) {
	now := r.clock.Now()
	switch room.status {
	case model.StatusWaiting:
		room.removePlayer(p.userID)
		fx.unindex = append(fx.unindex, p.userID)
		for _, other := range room.players {
			other.ready = false
		}
		room.touch()
		fx.lobby = true
		if len(room.players) == 0 {
			r.evictLocked(room, fx)
			return
		}
		r.scheduleIdle(room)
		room.notifyMembers(r.notifier, model.EventDuelUpdate, now)
	case model.StatusStarting, model.StatusInProgress:
		p.connected = false
		p.departed = true
		fx.unindex = append(fx.unindex, p.userID)
		r.forfeit(room, p.userID, fx)
	case model.StatusCompleted:
		p.departed = true
		fx.unindex = append(fx.unindex, p.userID)
		room.touch()
		if room.allGone() {
			r.evictLocked(room, fx)
		}
	}
}

// forfeit ends the duel in favour of loserID's opponent. With nobody left to
// win it is recorded as a forfeit without a winner.
func (r *Registry) forfeit(room *Room, loserID string, fx *effects) {
	winner := ""
	if opp := room.opponent(loserID); opp != nil && opp.connected && !opp.departed {
		winner = opp.userID
	}
	r.finish(room, winner, model.EndForfeit, fx)
}

func (r *Registry) onGraceExpired(room *Room, userID string, token uint64) {
	r.withRoom(room, func(fx *effects) error {
		p := room.member(userID)
		if room.evicted || p == nil || p.graceToken != token || p.connected {
			return nil
		}
		p.graceToken = 0
		logger.Info(withRoomID(r.baseCtx, room.id), "disconnect grace expired", zap.String("user_id", userID))
		r.dropPlayer(room, p, fx)
		return nil
	})
}

// scheduleIdle arms the timer that closes a room nobody joins.
func (r *Registry) scheduleIdle(room *Room) {
	stopTimer(room.idleTimer)
	if r.cfg.IdleTimeout <= 0 {
		room.idleToken = 0
		return
	}
	token := room.nextToken()
	room.idleToken = token
	room.idleTimer = r.clock.AfterFunc(r.cfg.IdleTimeout, func() {
		r.onIdle(room, token)
	})
}

func (r *Registry) onIdle(room *Room, token uint64) {
	r.withRoom(room, func(fx *effects) error {
		if room.evicted || room.idleToken != token || room.status != model.StatusWaiting ||
			len(room.players) >= model.MaxPlayers {
			return nil
		}
		for _, p := range room.players {
			room.sendTo(r.notifier, p, model.EventDuelError, model.ErrorPayload{
				Message: "room expired",
				Code:    int(appErr.RoomNotFound),
				RoomID:  room.id,
			})
		}
		r.evictLocked(room, fx)
		return nil
	})
}

// departCompleted detaches userID from a finished room they are moving away from.
func (r *Registry) departCompleted(roomID, userID string) {
	room, ok := r.rooms.Load(roomID)
	if !ok {
		return
	}
	r.withRoom(room, func(fx *effects) error {
		p := room.member(userID)
		if p == nil || room.evicted || room.status != model.StatusCompleted {
			return nil
		}
		p.departed = true
		room.touch()
		if room.allGone() {
			r.evictLocked(room, fx)
		}
		return nil
	})
}
