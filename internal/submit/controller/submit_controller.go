package controller

import (
	"context"

	"algoarena/internal/auth"
	"algoarena/internal/judge/model"
	"algoarena/internal/submit/repository"
	"algoarena/internal/submit/service"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SubmissionService is the part of the submit service the controller needs.
type SubmissionService interface {
	Practice(ctx context.Context, caller auth.Identity, input service.PracticeInput) (*repository.Submission, error)
	Get(ctx context.Context, caller auth.Identity, submissionID string) (*repository.Submission, error)
	GetSource(ctx context.Context, caller auth.Identity, submissionID string) (string, error)
}

// SubmitController handles submission HTTP endpoints.
type SubmitController struct {
	submitService SubmissionService
}

// NewSubmitController creates a new SubmitController.
func NewSubmitController(submitService SubmissionService) *SubmitController {
	return &SubmitController{submitService: submitService}
}

// Create judges a practice submission within the request deadline.
func (h *SubmitController) Create(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	caller, _ := auth.FromGin(c)
	submission, err := h.submitService.Practice(c.Request.Context(), caller, service.PracticeInput{
		ProblemID: req.ProblemID,
		Language:  req.Language,
		Code:      req.Code,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toResponse(submission))
}

// Get returns one of the caller's submissions.
func (h *SubmitController) Get(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	submission, err := h.submitService.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, toResponse(submission))
}

// GetSource returns the archived source code.
func (h *SubmitController) GetSource(c *gin.Context) {
	caller, _ := auth.FromGin(c)
	source, err := h.submitService.GetSource(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, SourceResponse{SubmissionID: c.Param("id"), Code: source})
}

func toResponse(s *repository.Submission) SubmissionResponse {
	return SubmissionResponse{
		SubmissionID: s.ID,
		ProblemID:    s.ProblemID,
		RoomID:       s.RoomID,
		Language:     s.Language,
		Verdict:      s.Verdict,
		CreatedAt:    s.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// SubmitRequest defines the practice submission payload.
type SubmitRequest struct {
	ProblemID string `json:"problemId" binding:"required"`
	Language  string `json:"language" binding:"required"`
	Code      string `json:"code" binding:"required"`
}

// SubmissionResponse carries a redacted verdict.
type SubmissionResponse struct {
	SubmissionID string        `json:"submissionId"`
	ProblemID    string        `json:"problemId"`
	RoomID       string        `json:"roomId,omitempty"`
	Language     string        `json:"language"`
	Verdict      model.Verdict `json:"verdict"`
	CreatedAt    string        `json:"createdAt"`
}

// SourceResponse defines source query response payload.
type SourceResponse struct {
	SubmissionID string `json:"submissionId"`
	Code         string `json:"code"`
}
