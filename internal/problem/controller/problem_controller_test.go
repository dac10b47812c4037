package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"algoarena/internal/problem/controller"
	"algoarena/internal/problem/model"
	appErr "algoarena/pkg/errors"

	"github.com/gin-gonic/gin"
)

type stubReader struct{}

func (stubReader) GetByID(ctx context.Context, id string) (*model.Problem, error) {
	if id != "p1" {
		return nil, appErr.New(appErr.ProblemNotFound)
	}
	return &model.Problem{
		ID:    "p1",
		Title: "Echo",
		TestCases: []model.TestCase{
			{Input: "a", ExpectedOutput: "a"},
			{Input: "secret-in", ExpectedOutput: "secret-out", IsHidden: true},
		},
	}, nil
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := controller.NewProblemController(stubReader{})
	r.GET("/problems/:id", h.Get)
	r.GET("/admin/problems/:id", h.GetFull)
	return r
}

func TestGetProblemHidesHiddenTests(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/problems/p1", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "secret") {
		t.Fatalf("hidden test leaked: %s", w.Body.String())
	}
	var resp struct {
		Data model.PublicView `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.HiddenTestCount != 1 || len(resp.Data.Examples) != 1 {
		t.Fatalf("unexpected view %+v", resp.Data)
	}
}

func TestGetProblemNotFound(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/problems/zzz", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetFullIncludesHiddenTests(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/problems/p1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data model.Problem `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Data.TestCases) != 2 || !resp.Data.TestCases[1].IsHidden {
		t.Fatalf("unexpected problem %+v", resp.Data)
	}
}
