// Package httpx provides HTTP response utilities.
package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/studentlms/lms/internal/shared"
)

// ErrorBody is the uniform error envelope payload.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ErrorEnvelope wraps ErrorBody under the "error" key.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindAuthentication:
		return http.StatusUnauthorized
	case shared.KindAuthorization:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError is the single translation point from domain errors to the wire.
// 5xx responses are logged at error level with request context, 4xx at warn.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	err = shared.TranslatePgError(err)
	kind := shared.KindOf(err)
	status := StatusFor(kind)
	message := shared.UserSafeMessage(err)

	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		slog.Int("status", status),
		slog.String("code", string(kind)),
		slog.Any("error", err),
	}
	if r != nil {
		attrs = append(attrs,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}
	if status >= http.StatusInternalServerError {
		logger.Error("server error", attrs...)
	} else {
		logger.Warn("client error", attrs...)
	}

	JSON(w, status, ErrorEnvelope{Error: ErrorBody{
		Code:      string(kind),
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}})
}
