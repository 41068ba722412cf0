package courses

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/studentlms/lms/internal/shared"
)

const msgNotEnrolled = "Not enrolled in this course"

// ProgressRecorder receives progress update outcomes for metrics.
type ProgressRecorder interface {
	ProgressUpdate(outcome string)
}

// Service implements course browsing and the progress aggregator.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	metrics ProgressRecorder
	now     func() time.Time
}

// NewService constructs a course service. metrics may be nil.
func NewService(repo Repository, logger *slog.Logger, metrics ProgressRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, metrics: metrics, now: time.Now}
}

// CourseCompletion returns 100*completed/total. ok is false when the course
// has no active lessons, in which case no aggregate should be written.
func CourseCompletion(completed, total int) (pct float64, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return float64(completed) / float64(total) * 100, true
}

// UpdateLessonProgress records a student's progress on a lesson and refreshes
// the course aggregate in the same transaction.
func (s *Service) UpdateLessonProgress(ctx context.Context, lessonID, studentID string, pct float64) (Progress, error) {
	if pct < 0 || pct > 100 {
		return Progress{}, shared.NewValidationError("Completion percentage must be between 0 and 100")
	}

	lesson, err := s.repo.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.record("not_found")
			return Progress{}, shared.NewNotFoundError("Lesson not found")
		}
		return Progress{}, err
	}
	if err := s.requireEnrollment(ctx, studentID, lesson.CourseID); err != nil {
		s.record("forbidden")
		return Progress{}, err
	}

	now := s.now().UTC()
	var progress Progress
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		enrollment, err := tx.LockEnrollment(ctx, studentID, lesson.CourseID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err != nil || !enrollment.IsActive {
			return shared.NewAuthorizationError(msgNotEnrolled)
		}

		progress, err = tx.UpsertLessonProgress(ctx, studentID, lesson.CourseID, lesson.ID, pct, now)
		if err != nil {
			return err
		}

		total, err := tx.CountActiveLessons(ctx, lesson.CourseID)
		if err != nil {
			return err
		}
		completed, err := tx.CountCompletedLessons(ctx, studentID, lesson.CourseID)
		if err != nil {
			return err
		}
		overall, ok := CourseCompletion(completed, total)
		if !ok {
			return nil
		}
		return tx.UpsertCourseProgress(ctx, studentID, lesson.CourseID, overall, now)
	})
	if err != nil {
		s.record("error")
		return Progress{}, err
	}

	s.record("success")
	s.logger.Info("lesson progress updated",
		slog.String("student_id", studentID),
		slog.String("lesson_id", lesson.ID),
		slog.Float64("completion", pct))
	return progress, nil
}

// GetCourseProgress lists every progress record of an enrolled student.
func (s *Service) GetCourseProgress(ctx context.Context, courseID, studentID string) ([]Progress, error) {
	if err := s.requireEnrollment(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	records, err := s.repo.ListProgress(ctx, studentID, courseID)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Progress{}
	}
	return records, nil
}

// GetCourse returns an active course with its modules for an enrolled student.
func (s *Service) GetCourse(ctx context.Context, courseID, studentID string) (Course, error) {
	course, err := s.repo.GetCourse(ctx, courseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return Course{}, err
	}
	if err != nil || !course.IsActive {
		return Course{}, shared.NewNotFoundError("Course not found")
	}
	if err := s.requireEnrollment(ctx, studentID, courseID); err != nil {
		return Course{}, err
	}
	modules, err := s.repo.ListModules(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	if modules == nil {
		modules = []Module{}
	}
	course.Modules = modules
	return course, nil
}

// GetCourseMaterials lists the active materials of a course for an enrolled
// student.
func (s *Service) GetCourseMaterials(ctx context.Context, courseID, studentID string) ([]Material, error) {
	if err := s.requireEnrollment(ctx, studentID, courseID); err != nil {
		return nil, err
	}
	materials, err := s.repo.ListMaterials(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if materials == nil {
		materials = []Material{}
	}
	return materials, nil
}

// SearchCourses pages through active courses matching query.
func (s *Service) SearchCourses(ctx context.Context, query string, page, limit int) (SearchResult, error) {
	page, limit = shared.NormalizePage(page, limit)
	data, total, err := s.repo.SearchCourses(ctx, query, limit, shared.Offset(page, limit))
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Data: data, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// CheckPrerequisites reports whether the student may enroll. No prerequisite
// rules exist yet, so every student qualifies.
func (s *Service) CheckPrerequisites(ctx context.Context, courseID, studentID string) (bool, error) {
	return true, nil
}

func (s *Service) requireEnrollment(ctx context.Context, studentID, courseID string) error {
	enrollment, err := s.repo.GetEnrollment(ctx, studentID, courseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if err != nil || !enrollment.IsActive {
		return shared.NewAuthorizationError(msgNotEnrolled)
	}
	return nil
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.ProgressUpdate(outcome)
	}
}
