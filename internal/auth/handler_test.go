package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
	_ "github.com/studentlms/lms/testing"
)

func newTestRouter(t *testing.T) (http.Handler, serviceFixture) {
	t.Helper()
	f := newServiceFixture(t)
	r := chi.NewRouter()
	r.Route("/auth", NewHandler(nil, f.svc, 0).MountRoutes)

	mw := Middleware{Service: f.svc}
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate, mw.RequireStudent)
		r.Get("/students/ping", func(w http.ResponseWriter, r *http.Request) {
			p, _ := shared.PrincipalFromContext(r.Context())
			httpx.JSON(w, http.StatusOK, p)
		})
	})
	return r, f
}

func doJSON(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httpx.ErrorBody {
	t.Helper()
	var env httpx.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Error.Timestamp)
	return env.Error
}

func TestHandlerRegisterAndLogin(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/register/student",
		`{"email":"ada@example.com","password":"Secret@123","firstName":"Ada","lastName":"Lovelace","studentId":"STU12345"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var registered struct {
		Message string  `json:"message"`
		Student Summary `json:"student"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	assert.Equal(t, "Student registered successfully", registered.Message)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"Secret@123"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		Message string    `json:"message"`
		User    Summary   `json:"user"`
		Tokens  TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Equal(t, "Login successful", login.Message)
	assert.Equal(t, registered.Student.ID, login.User.ID)
	assert.NotEmpty(t, login.Tokens.AccessToken)

	rec = doJSON(t, h, http.MethodGet, "/auth/me", "", login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"student"`)

	rec = doJSON(t, h, http.MethodPost, "/auth/refresh", `{"refreshToken":"`+login.Tokens.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token refreshed successfully")

	rec = doJSON(t, h, http.MethodGet, "/students/ping", "", login.Tokens.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"studentId":"STU12345"`)
}

func TestHandlerValidationEnvelope(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/register/student",
		`{"email":"ada@example.com","password":"weakpassword","firstName":"Ada","lastName":"Lovelace","studentId":"STU12345"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "ValidationError", body.Code)
	assert.Contains(t, body.Message, "uppercase")

	rec = doJSON(t, h, http.MethodPost, "/auth/login", `{"email":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", decodeError(t, rec).Message)
}

func TestHandlerLoginFailureEnvelope(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"Secret@123"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "AuthenticationError", body.Code)
	assert.Equal(t, "Invalid credentials", body.Message)
}

func TestHandlerLogoutEndpoints(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/logout", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out successfully")

	rec = doJSON(t, h, http.MethodPost, "/auth/logout-all", "", "garbage")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Logged out from all devices successfully")
}

func TestMiddlewareRejections(t *testing.T) {
	h, f := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/students/ping", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "No token provided", decodeError(t, rec).Message)

	rec = doJSON(t, h, http.MethodGet, "/auth/me", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	f.repo.add(t, shared.RoleTeacher, "grace@example.com", "Secret@123", "TCH001", true)
	login, err := f.svc.Login(t.Context(), "grace@example.com", "Secret@123")
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodGet, "/students/ping", "", login.Tokens.AccessToken)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "AuthorizationError", body.Code)
	assert.Equal(t, "Student access required", body.Message)
}
