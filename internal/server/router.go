// Package server assembles the HTTP surface of the duel server.
package server

import (
	"context"
	"net/http"
	"time"

	"algoarena/internal/auth"
	commonmw "algoarena/internal/common/http/middleware"
	duelController "algoarena/internal/duel/controller"
	problemController "algoarena/internal/problem/controller"
	submitController "algoarena/internal/submit/controller"
	appErr "algoarena/pkg/errors"
	"algoarena/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Limits are the rate limit policies applied to expensive routes.
type Limits struct {
	Submit    commonmw.RateLimitPolicy `yaml:"submit"`
	Handshake commonmw.RateLimitPolicy `yaml:"handshake"`
}

// Deps are the handlers mounted on the router.
type Deps struct {
	Auth        auth.Authenticator
	CORS        commonmw.CORSConfig
	Limiter     *commonmw.RateLimiter
	Limits      Limits
	Rooms       *duelController.RoomController
	Problems    *problemController.ProblemController
	Submissions *submitController.SubmitController
	WebSocket   gin.HandlerFunc
	Metrics     http.Handler
	Health      []HealthCheck
}

// NewRouter builds the gin engine with the shared middleware chain.
func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		commonmw.TraceContextMiddleware(),
		commonmw.RequestLogger(),
		commonmw.CORSMiddleware(deps.CORS),
	)

	router.GET("/healthz", healthHandler(deps.Health))
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}
	if deps.WebSocket != nil {
		router.GET("/ws", commonmw.RateLimit(deps.Limiter, "ws", deps.Limits.Handshake, commonmw.ClientIP), deps.WebSocket)
	}

	api := router.Group("/api/v1", auth.Middleware(deps.Auth))
	if deps.Rooms != nil {
		api.GET("/rooms", deps.Rooms.List)
		api.GET("/rooms/:id", deps.Rooms.Get)
	}
	if deps.Problems != nil {
		api.GET("/problems/:id", deps.Problems.Get)
		api.GET("/admin/problems/:id", auth.RequireAdmin(), deps.Problems.GetFull)
	}
	if deps.Submissions != nil {
		api.POST("/submissions", commonmw.RateLimit(deps.Limiter, "submit", deps.Limits.Submit, byUser), deps.Submissions.Create)
		api.GET("/submissions/:id", deps.Submissions.Get)
		api.GET("/submissions/:id/source", deps.Submissions.GetSource)
	}
	return router
}

func byUser(c *gin.Context) string {
	if id, ok := auth.FromGin(c); ok {
		return "user:" + id.UserID
	}
	return ""
}

func healthHandler(checks []HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{}
		healthy := true
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				status[check.Name] = err.Error()
				healthy = false
				continue
			}
			status[check.Name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{Code: appErr.ServiceUnavailable, Message: "unhealthy", Data: status})
			return
		}
		response.Success(c, status)
	}
}
