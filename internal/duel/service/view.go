package service

import (
	"time"

	"algoarena/internal/duel/model"
)

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// viewFor renders the room for one member. Opponent code is never included and
// the opponent's language and verdict only appear once the duel is over. Hidden test output is
// always redacted.
func (r *Room) viewFor(viewerID string, now time.Time) model.RoomView {
	v := model.RoomView{
		ID:                r.id,
		Status:            r.status,
		Players:           make([]model.PlayerView, 0, len(r.players)),
		StartedAtMs:       unixMilli(r.startedAt),
		CountdownEndsAtMs: unixMilli(r.countdownEndsAt),
		MatchStartedAtMs:  unixMilli(r.matchStartedAt),
		MatchEndsAtMs:     unixMilli(r.matchEndsAt),
		WinnerID:          r.winnerID,
		EndReason:         r.endReason,
		Version:           r.version,
		ServerTimeMs:      now.UnixMilli(),
	}
	if r.problem != nil {
		v.Problem = r.problem.Public()
	}
	for _, p := range r.players {
		pv := model.PlayerView{
			UserID:      p.userID,
			DisplayName: p.displayName,
			IsReady:     p.ready,
			Connected:   p.connected && !p.departed,
			Attempts:    p.attempts,
		}
		if p.sub != nil {
			sv := &model.SubmissionView{
				ID:            p.sub.id,
				SubmittedAtMs: unixMilli(p.sub.submittedAt),
				Judging:       p.sub.judging,
			}
			own := p.userID == viewerID
			if own {
				sv.Code = p.sub.code
			}
			if own || r.status == model.StatusCompleted {
				sv.Language = p.sub.language
			}
			if p.sub.verdict != nil && (own || r.status == model.StatusCompleted) {
				redacted := p.sub.verdict.Redacted()
				sv.Verdict = &redacted
			}
			pv.Submission = sv
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// notifyMembers sends every connected member its own view under event.
func (r *Room) notifyMembers(n Notifier, event string, now time.Time) {
	for _, p := range r.players {
		if p.connected && !p.departed {
			n.Send(p.connID, event, r.viewFor(p.userID, now))
		}
	}
}

// notifyOthers is notifyMembers minus userID.
func (r *Room) notifyOthers(n Notifier, userID string, event string, now time.Time) {
	for _, p := range r.players {
		if p.userID != userID && p.connected && !p.departed {
			n.Send(p.connID, event, r.viewFor(p.userID, now))
		}
	}
}

func (r *Room) sendTo(n Notifier, p *player, event string, payload any) {
	if p != nil && p.connected && !p.departed {
		n.Send(p.connID, event, payload)
	}
}
