package students

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
)

// Handler exposes the student self-service endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a student handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers student routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/profile", h.handleGetProfile)
	r.Put("/profile", h.handleUpdateProfile)
	r.Get("/courses", h.handleListCourses)
	r.Post("/courses/{courseId}/enroll", h.handleEnroll)
	r.Delete("/courses/{courseId}/enroll", h.handleUnenroll)
	r.Get("/gpa", h.handleGPA)
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(r.Context(), principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "data": profile})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var upd ProfileUpdate
	if err := httpx.DecodeAndValidate(r, h.validator, &upd); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	profile, err := h.service.UpdateProfile(r.Context(), principal.ID, upd)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    profile,
		"message": "Profile updated successfully",
	})
}

func (h *Handler) handleListCourses(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
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
	result, err := h.service.EnrolledCourses(r.Context(), principal.ID, page, limit)
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

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	courseID, err := httpx.PathUUID(r, "courseId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.Enroll(r.Context(), principal.ID, courseID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Successfully enrolled in course"})
}

func (h *Handler) handleUnenroll(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	courseID, err := httpx.PathUUID(r, "courseId")
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	if err := h.service.Unenroll(r.Context(), principal.ID, courseID); err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Successfully unenrolled from course"})
}

func (h *Handler) handleGPA(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	gpa, err := h.service.GPA(r.Context(), principal.ID)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"gpa": RoundGPA(gpa), "scale": GPAScale},
	})
}

func (h *Handler) principal(w http.ResponseWriter, r *http.Request) (shared.Principal, bool) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, r, h.logger, shared.NewAuthenticationError(""))
		return shared.Principal{}, false
	}
	return principal, true
}
