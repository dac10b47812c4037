package model

import (
	"encoding/json"

	judgeModel "algoarena/internal/judge/model"
)

// Client actions.
const (
	ActionCreateDuel  = "createDuel"
	ActionJoinDuel    = "joinDuel"
	ActionPlayerReady = "playerReady"
	ActionSubmitCode  = "submitCode"
	ActionGetRoomList = "getRoomList"
	ActionLeaveDuel   = "leaveDuel"
)

// Server events.
const (
	EventDuelCreated       = "duelCreated"
	EventDuelJoined        = "duelJoined"
	EventDuelUpdate        = "duelUpdate"
	EventDuelEnded         = "duelEnded"
	EventSubmissionResult  = "submissionResult"
	EventOpponentSubmitted = "opponentSubmitted"
	EventRoomList          = "roomList"
	EventJoinError         = "joinError"
	EventDuelError         = "duelError"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type CreateDuelPayload struct {
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Languages []string `json:"languages,omitempty"`
}

type JoinDuelPayload struct {
	RoomID    string   `json:"roomId"`
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Languages []string `json:"languages,omitempty"`
}

type ReadyPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type SubmitPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

type LeavePayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// ErrorPayload is sent as joinError or duelError to the offending caller only.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	RoomID  string `json:"roomId,omitempty"`
}

type DuelEndedPayload struct {
	WinnerID string    `json:"winnerId,omitempty"`
	Reason   EndReason `json:"reason"`
	Room     RoomView  `json:"room"`
}

// SubmissionResultPayload carries the submitter's own redacted verdict.
type SubmissionResultPayload struct {
	RoomID       string             `json:"roomId"`
	SubmissionID string             `json:"submissionId"`
	Verdict      judgeModel.Verdict `json:"verdict"`
}

// OpponentSubmittedPayload tells a player that the other side submitted, nothing more.
type OpponentSubmittedPayload struct {
	RoomID        string `json:"roomId"`
	UserID        string `json:"userId"`
	Attempts      int    `json:"attempts"`
	SubmittedAtMs int64  `json:"submittedAtMs"`
}
