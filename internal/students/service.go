package students

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studentlms/lms/internal/shared"
)

const aggregateLookupConcurrency = 4

// Service implements student profile, enrollment and GPA operations.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a student service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// GetProfile returns the student's own profile.
func (s *Service) GetProfile(ctx context.Context, studentID string) (Profile, error) {
	profile, err := s.repo.GetProfile(ctx, studentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, shared.NewNotFoundError("Student profile not found")
		}
		return Profile{}, err
	}
	return profile, nil
}

// UpdateProfile applies changes after checking email and studentId uniqueness.
func (s *Service) UpdateProfile(ctx context.Context, studentID string, upd ProfileUpdate) (Profile, error) {
	existing, err := s.repo.GetProfile(ctx, studentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return Profile{}, shared.NewNotFoundError("Student not found")
		}
		return Profile{}, err
	}

	var email, externalID string
	if upd.Email != nil && shared.NormalizeEmail(*upd.Email) != existing.Email {
		email = *upd.Email
	}
	if upd.StudentID != nil && *upd.StudentID != existing.StudentID {
		externalID = *upd.StudentID
	}
	if email != "" || externalID != "" {
		emailTaken, idTaken, err := s.repo.ProfileConflicts(ctx, studentID, email, externalID)
		if err != nil {
			return Profile{}, err
		}
		if emailTaken {
			return Profile{}, shared.NewConflictError("Email already exists")
		}
		if idTaken {
			return Profile{}, shared.NewConflictError("Student ID already exists")
		}
	}

	updated, err := s.repo.UpdateProfile(ctx, studentID, upd)
	if err != nil {
		return Profile{}, err
	}
	s.logger.Info("student profile updated", slog.String("student_id", studentID))
	return updated, nil
}

// EnrolledCourses pages through the student's active enrollments, each with
// its course aggregate progress.
func (s *Service) EnrolledCourses(ctx context.Context, studentID string, page, limit int) (EnrolledPage, error) {
	page, limit = shared.NormalizePage(page, limit)
	items, total, err := s.repo.ListEnrolledCourses(ctx, studentID, limit, shared.Offset(page, limit))
	if err != nil {
		return EnrolledPage{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(aggregateLookupConcurrency)
	for i := range items {
		g.Go(func() error {
			progress, err := s.repo.CourseAggregate(gctx, studentID, items[i].ID)
			if err != nil {
				return err
			}
			items[i].Progress = progress
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return EnrolledPage{}, err
	}

	return EnrolledPage{Data: items, Pagination: shared.NewPagination(page, limit, total)}, nil
}

// Enroll creates or reactivates an enrollment and initialises the course
// aggregate at 0%.
func (s *Service) Enroll(ctx context.Context, studentID, courseID string) error {
	active, err := s.repo.CourseActive(ctx, courseID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return err
	}
	if err != nil || !active {
		return shared.NewNotFoundError("Course not found or inactive")
	}

	now := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.LockEnrollment(ctx, studentID, courseID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err == nil && existing.IsActive {
			return shared.NewConflictError("Already enrolled in this course")
		}
		if err := tx.UpsertEnrollment(ctx, studentID, courseID, now); err != nil {
			return err
		}
		return tx.InitCourseProgress(ctx, studentID, courseID, now)
	})
	if err != nil {
		return err
	}
	s.logger.Info("student enrolled", slog.String("student_id", studentID), slog.String("course_id", courseID))
	return nil
}

// Unenroll deactivates an active enrollment. Progress records are kept.
func (s *Service) Unenroll(ctx context.Context, studentID, courseID string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.LockEnrollment(ctx, studentID, courseID)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if err != nil || !existing.IsActive {
			return shared.NewNotFoundError("Enrollment not found")
		}
		return tx.DeactivateEnrollment(ctx, studentID, courseID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("student unenrolled", slog.String("student_id", studentID), slog.String("course_id", courseID))
	return nil
}

// GPA returns the unrounded weighted grade-point average of the student.
func (s *Service) GPA(ctx context.Context, studentID string) (float64, error) {
	grades, err := s.repo.ListGrades(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return CalculateGPA(grades), nil
}
