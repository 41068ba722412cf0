// Package audit records successful authenticated requests as background
// audit tasks.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studentlms/lms/internal/shared"
	"github.com/studentlms/lms/jobs"
)

const (
	redacted     = "[REDACTED]"
	maxBodyBytes = 64 << 10
)

var sensitiveKeys = []string{"password", "passwordHash", "token", "refreshToken", "secret", "key"}

// Enqueuer hands audit payloads to the job queue.
type Enqueuer interface {
	EnqueueAudit(ctx context.Context, payload jobs.AuditPayload) error
}

// DropRecorder counts audit records that never reached the queue.
type DropRecorder interface {
	AuditDropped()
}

// Recorder is the HTTP middleware that emits audit tasks.
type Recorder struct {
	queue   Enqueuer
	logger  *slog.Logger
	metrics DropRecorder
	now     func() time.Time
	// dispatch runs the enqueue off the request path.
	dispatch func(func())
}

// NewRecorder builds an audit Recorder. metrics may be nil.
func NewRecorder(queue Enqueuer, logger *slog.Logger, metrics DropRecorder) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		queue:    queue,
		logger:   logger,
		metrics:  metrics,
		now:      func() time.Time { return time.Now().UTC() },
		dispatch: func(fn func()) { go fn() },
	}
}

// Middleware enqueues an audit task once a 2xx response has been written for
// an authenticated principal.
func (a *Recorder) Middleware(next http.Handler) http.Handler {
	if a == nil || a.queue == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := captureBody(r)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 200 || status >= 300 {
			return
		}
		principal, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			return
		}
		payload := a.payload(r, principal, status, body)
		ctx := context.WithoutCancel(r.Context())
		a.dispatch(func() {
			if err := a.queue.EnqueueAudit(ctx, payload); err != nil {
				a.logger.Error("enqueue audit log", slog.String("action", payload.Action), slog.Any("error", err))
				if a.metrics != nil {
					a.metrics.AuditDropped()
				}
			}
		})
	})
}

func (a *Recorder) payload(r *http.Request, p shared.Principal, status int, body []byte) jobs.AuditPayload {
	route := r.URL.Path
	params := map[string]string{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			route = pattern
		}
		for i, k := range rctx.URLParams.Keys {
			if k == "*" || i >= len(rctx.URLParams.Values) {
				continue
			}
			params[k] = rctx.URLParams.Values[i]
		}
	}
	details := map[string]any{
		"method":     r.Method,
		"path":       r.URL.Path,
		"statusCode": status,
		"userAgent":  r.UserAgent(),
		"params":     params,
		"query":      r.URL.Query(),
	}
	if sanitized := SanitizeBody(body); sanitized != nil {
		details["body"] = sanitized
	}
	return jobs.AuditPayload{
		ActorID:    p.ID,
		ActorType:  p.Role,
		Action:     r.Method + " " + route,
		Resource:   ResourceFromPath(r.URL.Path),
		Details:    details,
		IPAddress:  clientIP(r.RemoteAddr),
		UserAgent:  r.UserAgent(),
		OccurredAt: a.now(),
	}
}

// captureBody copies at most maxBodyBytes for the audit record and leaves the
// full body readable by the handler. Oversized bodies are not audited.
func captureBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	orig := r.Body
	data, err := io.ReadAll(io.LimitReader(orig, maxBodyBytes+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), orig), orig}
	if err != nil || len(data) > maxBodyBytes {
		return nil
	}
	return data
}

// SanitizeBody decodes a JSON object body and masks credential-bearing keys.
// Non-object bodies yield nil.
func SanitizeBody(body []byte) map[string]any {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil
	}
	for _, key := range sensitiveKeys {
		if _, ok := fields[key]; ok {
			fields[key] = redacted
		}
	}
	return fields
}

// ResourceFromPath returns the first path segment after an optional "api"
// prefix, or "unknown".
func ResourceFromPath(path string) string {
	parts := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(parts) > 0 && parts[0] == "api" {
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return "unknown"
	}
	return parts[0]
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
