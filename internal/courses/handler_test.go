package courses

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentlms/lms/internal/platform/httpx"
	"github.com/studentlms/lms/internal/shared"
	_ "github.com/studentlms/lms/testing"
)

func newCourseRouter(repo *mockRepository, studentID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{ID: studentID, Role: shared.RoleStudent})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/courses", NewHandler(nil, NewService(repo, nil, nil)).MountRoutes)
	return r
}

func TestHandlerUpdateProgress(t *testing.T) {
	repo := newMockRepository()
	course, lessons := repo.addCourse(2)
	student := uuid.NewString()
	repo.enroll(student, course.ID, true)
	h := newCourseRouter(repo, student)

	req := httptest.NewRequest(http.MethodPut, "/courses/lessons/"+lessons[0].ID+"/progress", strings.NewReader(`{"completionPercentage":100}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool     `json:"success"`
		Data    Progress `json:"data"`
		Message string   `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Progress updated successfully", body.Message)
	assert.InDelta(t, 100.0, body.Data.CompletionPercentage, 1e-9)
	require.NotNil(t, body.Data.LessonID)
	assert.Equal(t, lessons[0].ID, *body.Data.LessonID)

	req = httptest.NewRequest(http.MethodGet, "/courses/"+course.ID+"/progress", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"completionPercentage":50`)
}

func TestHandlerUpdateProgressValidation(t *testing.T) {
	repo := newMockRepository()
	_, lessons := repo.addCourse(1)
	h := newCourseRouter(repo, uuid.NewString())

	cases := map[string]struct {
		path, body string
	}{
		"missing percentage": {"/courses/lessons/" + lessons[0].ID + "/progress", `{}`},
		"above range":        {"/courses/lessons/" + lessons[0].ID + "/progress", `{"completionPercentage":101}`},
		"malformed id":       {"/courses/lessons/not-a-uuid/progress", `{"completionPercentage":10}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			var env httpx.ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, "ValidationError", env.Error.Code)
		})
	}
}

func TestHandlerUpdateProgressNotEnrolled(t *testing.T) {
	repo := newMockRepository()
	_, lessons := repo.addCourse(1)
	h := newCourseRouter(repo, uuid.NewString())

	req := httptest.NewRequest(http.MethodPut, "/courses/lessons/"+lessons[0].ID+"/progress", strings.NewReader(`{"completionPercentage":10}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not enrolled in this course")
}

func TestHandlerSearchAndPrerequisites(t *testing.T) {
	repo := newMockRepository()
	course, _ := repo.addCourse(0)
	h := newCourseRouter(repo, uuid.NewString())

	req := httptest.NewRequest(http.MethodGet, "/courses/search?q=Course&limit=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalPages":1`)

	req = httptest.NewRequest(http.MethodGet, "/courses/search", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/courses/"+course.ID+"/prerequisites", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"canEnroll":true`)
}

func TestHandlerGetMaterials(t *testing.T) {
	repo := newMockRepository()
	course, lessons := repo.addCourse(1)
	student := uuid.NewString()
	url := "https://lms.example.com/slides.pdf"
	repo.materials[course.ID] = []Material{{
		ID: uuid.NewString(), LessonID: lessons[0].ID, Title: "Slides", Type: "document", URL: &url, Order: 1, IsActive: true,
	}}
	h := newCourseRouter(repo, student)

	req := httptest.NewRequest(http.MethodGet, "/courses/"+course.ID+"/materials", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	repo.enroll(student, course.ID, true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Success bool       `json:"success"`
		Data    []Material `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Slides", body.Data[0].Title)
	require.NotNil(t, body.Data[0].URL)
	assert.Equal(t, url, *body.Data[0].URL)
}
