package main

import (
	"context"
	"net/http"
	"time"

	"hirejudge/internal/common/auth"
	commonmw "hirejudge/internal/common/http/middleware"
	interviewController "hirejudge/internal/interview/controller"
	"hirejudge/internal/metrics"
	questionController "hirejudge/internal/question/controller"
	submissionController "hirejudge/internal/submission/controller"
	pkgerrors "hirejudge/pkg/errors"
	"hirejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Pinger is a backing store the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type routerDeps struct {
	Verifier    commonmw.TokenVerifier
	CORS        commonmw.CORSConfig
	Interviews  *interviewController.InterviewController
	Questions   *questionController.QuestionController
	Submissions *submissionController.SubmissionController
	Health      map[string]Pinger
}

func buildRouter(deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(deps.CORS))
	router.Use(commonmw.RequestLogger())
	router.Use(metrics.Middleware())

	router.GET("/healthz", healthHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api/v1/interviews")
	recruiter := commonmw.AuthMiddleware(deps.Verifier, auth.RoleRecruiter)
	candidate := commonmw.AuthMiddleware(deps.Verifier, auth.RoleCandidate)

	api.POST("/bulk-assign", recruiter, deps.Interviews.BulkAssign)
	api.POST("/:id/cancel", recruiter, deps.Interviews.Cancel)
	api.POST("/:id/questions/assign", recruiter, deps.Interviews.AssignQuestions)

	api.POST("/:id/start", candidate, deps.Interviews.Start)
	api.POST("/:id/complete", candidate, deps.Interviews.Complete)
	api.GET("/:id/questions", candidate, deps.Questions.List)
	api.POST("/:id/questions/:questionId/submit", candidate, deps.Submissions.Submit)
	api.GET("/:id/submissions", candidate, deps.Submissions.List)

	return router
}

func healthHandler(checks map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := make(map[string]string, len(checks))
		healthy := true
		for name, p := range checks {
			if err := p.Ping(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}
		if !healthy {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Code:    pkgerrors.ServiceUnavailable,
				Message: "unhealthy",
				Data:    status,
			})
			return
		}
		response.Success(c, status)
	}
}

func buildHTTPServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
