package httpx

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/studentlms/lms/internal/shared"
)

// PathUUID returns the named URL parameter when it is a well-formed UUID.
func PathUUID(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", shared.NewValidationError(fmt.Sprintf("%s must be a valid UUID", name))
	}
	return id.String(), nil
}

// QueryInt parses an optional integer query parameter bounded by [min, max].
func QueryInt(r *http.Request, name string, def, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, shared.NewValidationError(fmt.Sprintf("%s must be an integer between %d and %d", label(name), min, max))
	}
	return n, nil
}
