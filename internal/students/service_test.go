package students

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentlms/lms/internal/courses"
	"github.com/studentlms/lms/internal/shared"
	_ "github.com/studentlms/lms/testing"
)

type mockRepository struct {
	mu          sync.Mutex
	profiles    map[string]Profile
	courses     map[string]courses.Course
	enrollments map[string]courses.Enrollment
	aggregates  map[string]courses.Progress
	grades      map[string][]Grade
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		profiles:    map[string]Profile{},
		courses:     map[string]courses.Course{},
		enrollments: map[string]courses.Enrollment{},
		aggregates:  map[string]courses.Progress{},
		grades:      map[string][]Grade{},
	}
}

func pairKey(studentID, courseID string) string { return studentID + "/" + courseID }

func (m *mockRepository) addStudent(email, externalID string) Profile {
	p := Profile{ID: uuid.NewString(), Email: email, FirstName: "Ada", LastName: "Lovelace", StudentID: externalID, IsActive: true, CreatedAt: time.Now()}
	m.profiles[p.ID] = p
	return p
}

func (m *mockRepository) addCourse(active bool) courses.Course {
	c := courses.Course{ID: uuid.NewString(), Title: "Algorithms", IsActive: active}
	m.courses[c.ID] = c
	return c
}

func (m *mockRepository) GetProfile(_ context.Context, id string) (Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return Profile{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *mockRepository) ProfileConflicts(_ context.Context, id, email, studentID string) (bool, bool, error) {
	var emailTaken, idTaken bool
	for _, p := range m.profiles {
		if p.ID == id {
			continue
		}
		if email != "" && p.Email == shared.NormalizeEmail(email) {
			emailTaken = true
		}
		if studentID != "" && p.StudentID == studentID {
			idTaken = true
		}
	}
	return emailTaken, idTaken, nil
}

func (m *mockRepository) UpdateProfile(_ context.Context, id string, upd ProfileUpdate) (Profile, error) {
	p := m.profiles[id]
	if upd.Email != nil {
		p.Email = shared.NormalizeEmail(*upd.Email)
	}
	if upd.FirstName != nil {
		p.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		p.LastName = *upd.LastName
	}
	if upd.StudentID != nil {
		p.StudentID = *upd.StudentID
	}
	p.UpdatedAt = time.Now()
	m.profiles[id] = p
	return p, nil
}

func (m *mockRepository) ListEnrolledCourses(_ context.Context, studentID string, limit, offset int) ([]EnrolledCourse, int, error) {
	var out []EnrolledCourse
	for _, e := range m.enrollments {
		if e.StudentID != studentID || !e.IsActive {
			continue
		}
		out = append(out, EnrolledCourse{
			Course:     m.courses[e.CourseID],
			Enrollment: EnrollmentInfo{EnrolledAt: e.EnrolledAt, IsActive: e.IsActive},
		})
	}
	total := len(out)
	if offset >= total {
		return []EnrolledCourse{}, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (m *mockRepository) CourseAggregate(_ context.Context, studentID, courseID string) (*courses.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.aggregates[pairKey(studentID, courseID)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockRepository) CourseActive(_ context.Context, courseID string) (bool, error) {
	c, ok := m.courses[courseID]
	if !ok {
		return false, shared.ErrNotFound
	}
	return c.IsActive, nil
}

func (m *mockRepository) ListGrades(_ context.Context, studentID string) ([]Grade, error) {
	return m.grades[studentID], nil
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) LockEnrollment(_ context.Context, studentID, courseID string) (courses.Enrollment, error) {
	e, ok := t.mock.enrollments[pairKey(studentID, courseID)]
	if !ok {
		return courses.Enrollment{}, shared.ErrNotFound
	}
	return e, nil
}

func (t *mockTxRepo) UpsertEnrollment(_ context.Context, studentID, courseID string, at time.Time) error {
	t.mock.enrollments[pairKey(studentID, courseID)] = courses.Enrollment{StudentID: studentID, CourseID: courseID, IsActive: true, EnrolledAt: at}
	return nil
}

func (t *mockTxRepo) InitCourseProgress(_ context.Context, studentID, courseID string, at time.Time) error {
	t.mock.mu.Lock()
	defer t.mock.mu.Unlock()
	key := pairKey(studentID, courseID)
	p, ok := t.mock.aggregates[key]
	if !ok {
		p = courses.Progress{ID: uuid.NewString(), StudentID: studentID, CourseID: courseID}
	}
	p.LastAccessed = at
	t.mock.aggregates[key] = p
	return nil
}

func (t *mockTxRepo) DeactivateEnrollment(_ context.Context, studentID, courseID string) error {
	key := pairKey(studentID, courseID)
	e := t.mock.enrollments[key]
	e.IsActive = false
	t.mock.enrollments[key] = e
	return nil
}

func strPtr(s string) *string { return &s }

func TestEnrollLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	student := repo.addStudent("ada@example.com", "STU12345")
	course := repo.addCourse(true)
	svc := NewService(repo, nil)

	require.NoError(t, svc.Enroll(ctx, student.ID, course.ID))
	agg, ok := repo.aggregates[pairKey(student.ID, course.ID)]
	require.True(t, ok)
	assert.Zero(t, agg.CompletionPercentage)

	err := svc.Enroll(ctx, student.ID, course.ID)
	assert.Equal(t, shared.KindConflict, shared.KindOf(err))
	assert.Equal(t, "Already enrolled in this course", shared.UserSafeMessage(err))

	require.NoError(t, svc.Unenroll(ctx, student.ID, course.ID))
	err = svc.Unenroll(ctx, student.ID, course.ID)
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
	assert.Equal(t, "Enrollment not found", shared.UserSafeMessage(err))

	require.NoError(t, svc.Enroll(ctx, student.ID, course.ID))
	assert.True(t, repo.enrollments[pairKey(student.ID, course.ID)].IsActive)
}

func TestEnrollRejectsMissingOrInactiveCourse(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	student := repo.addStudent("ada@example.com", "STU12345")
	closed := repo.addCourse(false)
	svc := NewService(repo, nil)

	for _, courseID := range []string{closed.ID, uuid.NewString()} {
		err := svc.Enroll(ctx, student.ID, courseID)
		assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
		assert.Equal(t, "Course not found or inactive", shared.UserSafeMessage(err))
	}
	assert.Empty(t, repo.enrollments)
}

func TestEnrolledCoursesAttachesAggregate(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	student := repo.addStudent("ada@example.com", "STU12345")
	svc := NewService(repo, nil)
	for i := 0; i < 3; i++ {
		c := repo.addCourse(true)
		require.NoError(t, svc.Enroll(ctx, student.ID, c.ID))
	}

	page, err := svc.EnrolledCourses(ctx, student.ID, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, shared.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2}, page.Pagination)
	for _, item := range page.Data {
		require.NotNil(t, item.Progress)
		assert.Equal(t, item.ID, item.Progress.CourseID)
	}
}

func TestUpdateProfileConflicts(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	ada := repo.addStudent("ada@example.com", "STU12345")
	repo.addStudent("grace@example.com", "STU99999")
	svc := NewService(repo, nil)

	_, err := svc.UpdateProfile(ctx, ada.ID, ProfileUpdate{Email: strPtr("grace@example.com")})
	assert.Equal(t, "Email already exists", shared.UserSafeMessage(err))

	_, err = svc.UpdateProfile(ctx, ada.ID, ProfileUpdate{StudentID: strPtr("STU99999")})
	assert.Equal(t, "Student ID already exists", shared.UserSafeMessage(err))

	updated, err := svc.UpdateProfile(ctx, ada.ID, ProfileUpdate{Email: strPtr("ADA@example.com"), FirstName: strPtr("Augusta")})
	require.NoError(t, err)
	assert.Equal(t, "Augusta", updated.FirstName)
	assert.Equal(t, "ada@example.com", updated.Email)

	_, err = svc.GetProfile(ctx, uuid.NewString())
	assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
}

func TestGPAEndpoint(t *testing.T) {
	repo := newMockRepository()
	student := repo.addStudent("ada@example.com", "STU12345")
	repo.grades[student.ID] = []Grade{
		{Points: 95, MaxPoints: 100, AssignmentMaxPoints: 100},
		{Points: 40, MaxPoints: 50, AssignmentMaxPoints: 50},
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{ID: student.ID, Role: shared.RoleStudent})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/students", NewHandler(nil, NewService(repo, nil)).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/students/gpa", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			GPA   float64 `json:"gpa"`
			Scale string  `json:"scale"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 3.23, body.Data.GPA)
	assert.Equal(t, "4.0", body.Data.Scale)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/students/profile", strings.NewReader(`{"studentId":"ab"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/students/courses/nope/enroll", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
