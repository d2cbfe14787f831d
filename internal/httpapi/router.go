// Package httpapi binds the judging engine's Service to an HTTP surface
// using gin.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/originjudge/oj/internal/apperr"
	"github.com/originjudge/oj/internal/metrics"
	"github.com/originjudge/oj/internal/service"
	"github.com/originjudge/oj/internal/token"
)

// Deps are the collaborators the router needs.
type Deps struct {
	Service     *service.Service
	Tokens      *token.Factory
	Sessions    *sessions.CookieStore
	Collector   *metrics.Collector
	Heartbeat   *metrics.HeartbeatState
	Logger      *slog.Logger
	RequireAuth bool // mirrors the --auth CLI flag
	StartedAt   time.Time
}

const sessionName = "oj_session"

// NewRouter builds the gin engine with the full route surface.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/internal/status", statusHandler(d))
	r.POST("/internal/exit", func(c *gin.Context) {
		d.Service.Shutdown()
		c.Status(http.StatusNoContent)
	})

	jobs := r.Group("/jobs")
	{
		jobs.POST("", createJob(d))
		jobs.GET("", listJobs(d))
		jobs.GET("/:id", getJob(d))
		jobs.PUT("/:id", rerunJob(d))
		jobs.DELETE("/:id", cancelJob(d))
	}

	users := r.Group("/users")
	{
		users.GET("", listUsers(d))
		users.POST("", createOrUpdateUser(d))
		users.POST("/login", login(d))
	}

	contests := r.Group("/contests")
	{
		contests.GET("", listContests(d))
		contests.POST("", createOrUpdateContest(d))
		contests.GET("/:id", getContest(d))
		contests.GET("/:id/ranklist", getRanklist(d))
		contests.GET("/:id/problems", getContestProblems(d))
	}

	r.GET("/problems/:id", getProblem(d))

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Set("request_id", reqID)
		c.Next()
		logger.Info("request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
		)
	}
}

// respondError renders an apperr.Error (or wraps any other error as
// Internal) to the {code, reason, message} wire shape.
func respondError(c *gin.Context, err error) {
	e := apperr.As(err)
	c.JSON(e.Reason.Status(), e)
}

func statusHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		workerStatus := "unknown"
		if d.Heartbeat != nil {
			workerStatus = d.Heartbeat.Snapshot().Status
		}
		c.JSON(http.StatusOK, metrics.Collect(d.Service.QueueDepth(), workerStatus, d.StartedAt))
	}
}
