// Package model defines duel room views and the realtime protocol.
package model

import (
	judgeModel "algoarena/internal/judge/model"
	problemModel "algoarena/internal/problem/model"
)

// Status is the lifecycle state of a room. Rooms only move forward.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusStarting   Status = "starting"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// EndReason explains how a completed duel ended.
type EndReason string

const (
	EndSolved  EndReason = "solved"
	EndTimeout EndReason = "timeout"
	EndForfeit EndReason = "forfeit"
)

// MaxPlayers is the slot count of a room.
const MaxPlayers = 2

// SubmissionView is a player's latest submission as seen by one viewer.
// Code is only present for the submitter. Language and Verdict are present for
// the submitter, and for both members once the room is completed.
type SubmissionView struct {
	ID            string              `json:"id"`
	Language      string              `json:"language,omitempty"`
	Code          string              `json:"code,omitempty"`
	SubmittedAtMs int64               `json:"submittedAtMs"`
	Judging       bool                `json:"judging"`
	Verdict       *judgeModel.Verdict `json:"verdict,omitempty"`
}

// PlayerView is one slot of a room.
type PlayerView struct {
	UserID      string          `json:"userId"`
	DisplayName string          `json:"username"`
	IsReady     bool            `json:"isReady"`
	Connected   bool            `json:"connected"`
	Attempts    int             `json:"attempts"`
	Submission  *SubmissionView `json:"submission,omitempty"`
}

// RoomView is the room as one member sees it.
type RoomView struct {
	ID                string                   `json:"id"`
	Status            Status                   `json:"status"`
	Players           []PlayerView             `json:"players"`
	Problem           *problemModel.PublicView `json:"problem,omitempty"`
	StartedAtMs       int64                    `json:"startTime,omitempty"`
	CountdownEndsAtMs int64                    `json:"countdownEndsAtMs,omitempty"`
	MatchStartedAtMs  int64                    `json:"matchStartedAtMs,omitempty"`
	MatchEndsAtMs     int64                    `json:"matchEndsAtMs,omitempty"`
	WinnerID          string                   `json:"winnerId,omitempty"`
	EndReason         EndReason                `json:"endReason,omitempty"`
	Version           int64                    `json:"version"`
	ServerTimeMs      int64                    `json:"serverTimeMs"`
}

// Player returns the slot of userID.
func (v RoomView) Player(userID string) (PlayerView, bool) {
	for _, p := range v.Players {
		if p.UserID == userID {
			return p, true
		}
	}
	return PlayerView{}, false
}

// Summary is the lobby listing entry of a room.
type Summary struct {
	ID          string   `json:"id"`
	Status      Status   `json:"status"`
	PlayerCount int      `json:"playerCount"`
	Players     []string `json:"players"`
	CreatedAtMs int64    `json:"createdAtMs"`
}

// FinishedEvent is published when a duel completes.
type FinishedEvent struct {
	RoomID        string    `json:"roomId"`
	ProblemID     string    `json:"problemId"`
	PlayerIDs     []string  `json:"playerIds"`
	WinnerID      string    `json:"winnerId,omitempty"`
	Reason        EndReason `json:"reason"`
	StartedAtMs   int64     `json:"matchStartedAtMs"`
	CompletedAtMs int64     `json:"completedAtMs"`
	Attempts      []int     `json:"attempts"`
}
