package repl

import (
	"encoding/json"
	"strings"
	"time"

	"algoarena/internal/duel/model"
	judgeModel "algoarena/internal/judge/model"
)

func (s *Session) render(env model.Envelope) {
	switch env.Event {
	case model.EventDuelCreated, model.EventDuelJoined, model.EventDuelUpdate:
		var view model.RoomView
		if !s.decode(env, &view) {
			return
		}
		s.rememberRoom(view.ID)
		s.println("[%s]", env.Event)
		s.printRoom(view)
	case model.EventDuelEnded:
		var p model.DuelEndedPayload
		if !s.decode(env, &p) {
			return
		}
		winner := p.WinnerID
		if winner == "" {
			winner = "nobody"
		}
		s.println("[duelEnded] room %s: %s, winner %s", p.Room.ID, p.Reason, winner)
	case model.EventSubmissionResult:
		var p model.SubmissionResultPayload
		if !s.decode(env, &p) {
			return
		}
		s.printVerdict(p.Verdict)
	case model.EventOpponentSubmitted:
		var p model.OpponentSubmittedPayload
		if !s.decode(env, &p) {
			return
		}
		s.println("[opponentSubmitted] %s made attempt %d", p.UserID, p.Attempts)
	case model.EventRoomList:
		var rooms []model.Summary
		if !s.decode(env, &rooms) {
			return
		}
		s.printRooms(rooms)
	case model.EventJoinError, model.EventDuelError:
		var p model.ErrorPayload
		if !s.decode(env, &p) {
			return
		}
		s.println("[%s] %s (code %d)", env.Event, p.Message, p.Code)
	default:
		s.println("[%s] %s", env.Event, string(env.Data))
	}
}

func (s *Session) decode(env model.Envelope, dst any) bool {
	if err := json.Unmarshal(env.Data, dst); err != nil {
		s.println("[%s] undecodable payload: %v", env.Event, err)
		return false
	}
	return true
}

func (s *Session) printRooms(rooms []model.Summary) {
	if len(rooms) == 0 {
		s.println("no open rooms")
		return
	}
	for _, r := range rooms {
		s.println("  %s  %-11s %d/2  %s", r.ID, r.Status, r.PlayerCount, strings.Join(r.Players, ", "))
	}
}

func (s *Session) printRoom(v model.RoomView) {
	s.println("room %s  status %s", v.ID, v.Status)
	for _, p := range v.Players {
		flags := make([]string, 0, 2)
		if p.IsReady {
			flags = append(flags, "ready")
		}
		if !p.Connected {
			flags = append(flags, "offline")
		}
		s.println("  %s (%s) attempts %d %s", p.DisplayName, p.UserID, p.Attempts, strings.Join(flags, " "))
	}
	if v.Problem != nil {
		s.println("problem: %s [%s] %dms/%dMB, languages %s",
			v.Problem.Title, v.Problem.Difficulty, v.Problem.TimeLimitMs, v.Problem.MemoryLimitMb,
			strings.Join(v.Problem.AcceptedLanguages, ","))
	}
	switch {
	case v.Status == model.StatusStarting && v.CountdownEndsAtMs > 0:
		s.println("starts in %s", remaining(v.CountdownEndsAtMs, v.ServerTimeMs))
	case v.Status == model.StatusInProgress && v.MatchEndsAtMs > 0:
		s.println("time left %s", remaining(v.MatchEndsAtMs, v.ServerTimeMs))
	case v.Status == model.StatusCompleted:
		s.println("ended: %s, winner %s", v.EndReason, v.WinnerID)
	}
}

func (s *Session) printVerdict(v judgeModel.Verdict) {
	s.println("[submissionResult] %s %s: %d/%d passed", v.Language, v.Status, v.PassedCount, v.TotalCount)
	if v.CompileLog != "" {
		s.println("%s", v.CompileLog)
	}
	for _, t := range v.Tests {
		mark := "ok"
		if !t.Passed {
			mark = "FAIL"
			if t.FailureKind != "" {
				mark += " " + string(t.FailureKind)
			}
		}
		label := "test"
		if t.Hidden {
			label = "hidden"
		}
		s.println("  %s #%d %s %dms", label, t.Index+1, mark, t.ExecutionTimeMs)
		if !t.Passed && !t.Hidden && t.ExpectedOutput != "" {
			s.println("    expected %q got %q", t.ExpectedOutput, t.ObservedOutput)
		}
	}
}

// remaining uses the server clock so skew between hosts does not matter.
func remaining(deadlineMs, serverNowMs int64) time.Duration {
	d := time.Duration(deadlineMs-serverNowMs) * time.Millisecond
	if d < 0 {
		return 0
	}
	return d.Round(time.Second)
}
