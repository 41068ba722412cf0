package students

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentlms/lms/internal/courses"
	"github.com/studentlms/lms/internal/platform/db"
	"github.com/studentlms/lms/internal/shared"
)

// Repository defines persistence for student-owned data.
type Repository interface {
	GetProfile(ctx context.Context, id string) (Profile, error)
	ProfileConflicts(ctx context.Context, id, email, studentID string) (emailTaken, studentIDTaken bool, err error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error)
	ListEnrolledCourses(ctx context.Context, studentID string, limit, offset int) ([]EnrolledCourse, int, error)
	CourseAggregate(ctx context.Context, studentID, courseID string) (*courses.Progress, error)
	CourseActive(ctx context.Context, courseID string) (bool, error)
	ListGrades(ctx context.Context, studentID string) ([]Grade, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes enrollment writes.
type TxRepository interface {
	LockEnrollment(ctx context.Context, studentID, courseID string) (courses.Enrollment, error)
	UpsertEnrollment(ctx context.Context, studentID, courseID string, at time.Time) error
	InitCourseProgress(ctx context.Context, studentID, courseID string, at time.Time) error
	DeactivateEnrollment(ctx context.Context, studentID, courseID string) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const profileColumns = `id::text, email, first_name, last_name, student_id, is_active, created_at, updated_at, last_login_at`

// GetProfile loads a student profile.
func (r *PGRepository) GetProfile(ctx context.Context, id string) (Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM students WHERE id = $1`, id))
}

// ProfileConflicts reports whether email or studentID belong to another student.
func (r *PGRepository) ProfileConflicts(ctx context.Context, id, email, studentID string) (bool, bool, error) {
	var emailTaken, idTaken bool
	err := r.pool.QueryRow(ctx, `
SELECT
	$2 <> '' AND EXISTS (SELECT 1 FROM students WHERE lower(email) = $2 AND id <> $1),
	$3 <> '' AND EXISTS (SELECT 1 FROM students WHERE student_id = $3 AND id <> $1)`,
		id, shared.NormalizeEmail(email), studentID).Scan(&emailTaken, &idTaken)
	return emailTaken, idTaken, err
}

// UpdateProfile applies the non-nil fields of upd.
func (r *PGRepository) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
	var email *string
	if upd.Email != nil {
		normalized := shared.NormalizeEmail(*upd.Email)
		email = &normalized
	}
	return scanProfile(r.pool.QueryRow(ctx, `
UPDATE students SET
	email = COALESCE($2, email),
	first_name = COALESCE($3, first_name),
	last_name = COALESCE($4, last_name),
	student_id = COALESCE($5, student_id),
	updated_at = now()
WHERE id = $1
RETURNING `+profileColumns, id, email, upd.FirstName, upd.LastName, upd.StudentID))
}

// ListEnrolledCourses pages through active enrollments, newest first.
func (r *PGRepository) ListEnrolledCourses(ctx context.Context, studentID string, limit, offset int) ([]EnrolledCourse, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM enrollments WHERE student_id = $1 AND is_active`, studentID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
SELECT c.id::text, c.title, c.description, c.course_code, c.start_date, c.end_date, c.is_active,
	c.teacher_id::text, t.first_name, t.last_name, c.created_at, e.enrolled_at, e.is_active
FROM enrollments e
JOIN courses c ON c.id = e.course_id
JOIN teachers t ON t.id = c.teacher_id
WHERE e.student_id = $1 AND e.is_active
ORDER BY e.enrolled_at DESC
LIMIT $2 OFFSET $3`, studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []EnrolledCourse{}
	for rows.Next() {
		var (
			ec          EnrolledCourse
			description pgtype.Text
			start, end  pgtype.Date
			teacher     courses.Teacher
		)
		if err := rows.Scan(&ec.ID, &ec.Title, &description, &ec.CourseCode, &start, &end, &ec.IsActive,
			&ec.TeacherID, &teacher.FirstName, &teacher.LastName, &ec.CreatedAt,
			&ec.Enrollment.EnrolledAt, &ec.Enrollment.IsActive); err != nil {
			return nil, 0, err
		}
		ec.Description = description.String
		ec.Teacher = &teacher
		if start.Valid {
			t := start.Time
			ec.StartDate = &t
		}
		if end.Valid {
			t := end.Time
			ec.EndDate = &t
		}
		out = append(out, ec)
	}
	return out, total, rows.Err()
}

// CourseAggregate returns the course-level progress record, or nil when none exists.
func (r *PGRepository) CourseAggregate(ctx context.Context, studentID, courseID string) (*courses.Progress, error) {
	var (
		p    courses.Progress
		done pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
SELECT id::text, student_id::text, course_id::text, completion_percentage, last_accessed, completed_at
FROM progress
WHERE student_id = $1 AND course_id = $2 AND lesson_id IS NULL`, studentID, courseID).
		Scan(&p.ID, &p.StudentID, &p.CourseID, &p.CompletionPercentage, &p.LastAccessed, &done)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if done.Valid {
		t := done.Time
		p.CompletedAt = &t
	}
	return &p, nil
}

// CourseActive reports whether the course is open for enrollment.
func (r *PGRepository) CourseActive(ctx context.Context, courseID string) (bool, error) {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT is_active FROM courses WHERE id = $1`, courseID).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return active, nil
}

// ListGrades returns every grade of the student with its assignment weight.
func (r *PGRepository) ListGrades(ctx context.Context, studentID string) ([]Grade, error) {
	rows, err := r.pool.Query(ctx, `
SELECT g.points, g.max_points, a.max_points
FROM grades g
JOIN assignments a ON a.id = g.assignment_id
WHERE g.student_id = $1`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []Grade
	for rows.Next() {
		var g Grade
		if err := rows.Scan(&g.Points, &g.MaxPoints, &g.AssignmentMaxPoints); err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

func (t *txRepo) LockEnrollment(ctx context.Context, studentID, courseID string) (courses.Enrollment, error) {
	var e courses.Enrollment
	err := t.tx.QueryRow(ctx, `
SELECT student_id::text, course_id::text, is_active, enrolled_at
FROM enrollments
WHERE student_id = $1 AND course_id = $2
FOR UPDATE`, studentID, courseID).Scan(&e.StudentID, &e.CourseID, &e.IsActive, &e.EnrolledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return courses.Enrollment{}, shared.ErrNotFound
		}
		return courses.Enrollment{}, err
	}
	return e, nil
}

func (t *txRepo) UpsertEnrollment(ctx context.Context, studentID, courseID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO enrollments (student_id, course_id, is_active, enrolled_at)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (student_id, course_id)
DO UPDATE SET is_active = TRUE, enrolled_at = EXCLUDED.enrolled_at`, studentID, courseID, at)
	return err
}

func (t *txRepo) InitCourseProgress(ctx context.Context, studentID, courseID string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO progress (student_id, course_id, lesson_id, completion_percentage, last_accessed)
VALUES ($1, $2, NULL, 0, $3)
ON CONFLICT (student_id, course_id) WHERE lesson_id IS NULL
DO UPDATE SET last_accessed = EXCLUDED.last_accessed`, studentID, courseID, at)
	return err
}

func (t *txRepo) DeactivateEnrollment(ctx context.Context, studentID, courseID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE enrollments SET is_active = FALSE WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	return err
}

func scanProfile(row pgx.Row) (Profile, error) {
	var (
		p         Profile
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName, &p.StudentID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		p.LastLoginAt = &t
	}
	return p, nil
}

var _ Repository = (*PGRepository)(nil)
