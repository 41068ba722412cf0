package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/studentlms/lms/internal/audit"
	"github.com/studentlms/lms/internal/auth"
	"github.com/studentlms/lms/internal/courses"
	"github.com/studentlms/lms/internal/observability"
	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
	"github.com/studentlms/lms/internal/students"
	"github.com/studentlms/lms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthMiddleware   auth.Middleware
	CourseHandler    *courses.Handler
	StudentHandler   *students.Handler
	JobHandler       *jobs.Handler
	Audit            *audit.Recorder
	Metrics          *observability.Metrics
	DisableAccessLog bool
}

// NewRouter constructs the chi.Router with LMS defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if !params.DisableAccessLog {
		r.Use(chimw.Logger)
	}

	started := time.Now()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
			"uptime":    time.Since(started).Seconds(),
		})
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}

	studentOnly := func(r chi.Router) {
		r.Use(params.AuthMiddleware.Authenticate)
		r.Use(params.AuthMiddleware.RequireStudent)
		if params.Audit != nil {
			r.Use(params.Audit.Middleware)
		}
	}
	if params.CourseHandler != nil {
		r.Route("/courses", func(r chi.Router) {
			studentOnly(r)
			params.CourseHandler.MountRoutes(r)
		})
	}
	if params.StudentHandler != nil {
		r.Route("/students", func(r chi.Router) {
			studentOnly(r)
			params.StudentHandler.MountRoutes(r)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, r, logger, shared.NewNotFoundError("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.RespondError(w, r, logger, shared.NewNotFoundError("Route not found"))
	})

	return r
}
