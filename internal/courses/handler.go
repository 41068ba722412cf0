package courses

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
)

// Handler exposes course endpoints. Routes expect an authenticated student
// principal on the request context.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a course handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers course routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/search", h.handleSearch)
	r.Put("/lessons/{lessonId}/progress", h.handleUpdateProgress)
	r.Get("/{id}", h.handleGetCourse)
	r.Get("/{id}/materials", h.handleGetMaterials)
	r.Get("/{id}/progress", h.handleGetProgress)
	r.Get("/{id}/prerequisites", h.handlePrerequisites)
}

type progressRequest struct {
	CompletionPercentage *float64 `json:"completionPercentage" validate:"required,gte=0,lte=100"`
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" || len(query) > 100 {
		httpx.RespondError(w, r, h.logger, shared.NewValidationError("Search query must be between 1 and 100 characters"))
		return
	}
	page, err := httpx.QueryInt(r, "page", 1, 1, 1<<20)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 20, 1, 100)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.service.SearchCourses(r.Context(), query, page, limit)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       result.Data,
		"pagination": result.Pagination,
	})
}

func (h *Handler) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	principal, courseID, ok := h.studentAndID(w, r, "id")
	if !ok {
		return
	}
	course, err := h.service.GetCourse(r.Context(), courseID, principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": course})
}

func (h *Handler) handleGetMaterials(w http.ResponseWriter, r *http.Request) {
	principal, courseID, ok := h.studentAndID(w, r, "id")
	if !ok {
		return
	}
	materials, err := h.service.GetCourseMaterials(r.Context(), courseID, principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": materials})
}

func (h *Handler) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	principal, courseID, ok := h.studentAndID(w, r, "id")
	if !ok {
		return
	}
	records, err := h.service.GetCourseProgress(r.Context(), courseID, principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": records})
}

func (h *Handler) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	principal, lessonID, ok := h.studentAndID(w, r, "lessonId")
	if !ok {
		return
	}
	var req progressRequest
	if err := httpx.DecodeAndValidate(r, h.validator, &req); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	progress, err := h.service.UpdateLessonProgress(r.Context(), lessonID, principal.ID, *req.CompletionPercentage)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    progress,
		"message": "Progress updated successfully",
	})
}

func (h *Handler) handlePrerequisites(w http.ResponseWriter, r *http.Request) {
	principal, courseID, ok := h.studentAndID(w, r, "id")
	if !ok {
		return
	}
	canEnroll, err := h.service.CheckPrerequisites(r.Context(), courseID, principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	message := "Prerequisites met"
	if !canEnroll {
		message = "Prerequisites not met"
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"canEnroll": canEnroll, "message": message},
	})
}

func (h *Handler) studentAndID(w http.ResponseWriter, r *http.Request, param string) (shared.Principal, string, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.NewAuthenticationError(""))
		return shared.Principal{}, "", false
	}
	id, err := httpx.PathUUID(r, param)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return shared.Principal{}, "", false
	}
	return principal, id, true
}
