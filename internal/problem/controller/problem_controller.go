package controller

import (
	"context"

	"algoarena/internal/problem/model"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ProblemReader is the lookup the controller needs.
type ProblemReader interface {
	GetByID(ctx context.Context, id string) (*model.Problem, error)
}

// ProblemController serves the public problem view.
type ProblemController struct {
	problems ProblemReader
}

// NewProblemController creates a new ProblemController.
func NewProblemController(problems ProblemReader) *ProblemController {
	return &ProblemController{problems: problems}
}

// Get returns a problem with hidden test cases stripped.
func (h *ProblemController) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	p, err := h.problems.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p.Public())
}

// GetFull returns the stored problem including hidden test cases. Admin only.
func (h *ProblemController) GetFull(c *gin.Context) {
	p, err := h.problems.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}
