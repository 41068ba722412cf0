package courses

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentlms/lms/internal/platform/db"
	"github.com/studentlms/lms/internal/shared"
)

// Repository exposes the read side used by the course service.
type Repository interface {
	GetLesson(ctx context.Context, lessonID string) (Lesson, error)
	GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
	ListProgress(ctx context.Context, studentID, courseID string) ([]Progress, error)
	GetCourse(ctx context.Context, courseID string) (Course, error)
	ListModules(ctx context.Context, courseID string) ([]Module, error)
	ListMaterials(ctx context.Context, courseID string) ([]Material, error)
	SearchCourses(ctx context.Context, query string, limit, offset int) ([]Course, int, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations of the progress critical section.
type TxRepository interface {
	// LockEnrollment takes a row lock on the enrollment for the rest of the transaction.
	LockEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error)
	UpsertLessonProgress(ctx context.Context, studentID, courseID, lessonID string, pct float64, at time.Time) (Progress, error)
	CountActiveLessons(ctx context.Context, courseID string) (int, error)
	CountCompletedLessons(ctx context.Context, studentID, courseID string) (int, error)
	UpsertCourseProgress(ctx context.Context, studentID, courseID string, pct float64, at time.Time) error
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

// GetLesson returns a lesson together with its owning course.
func (r *PGRepository) GetLesson(ctx context.Context, lessonID string) (Lesson, error) {
	var (
		l        Lesson
		content  pgtype.Text
		duration pgtype.Int4
	)
	err := r.pool.QueryRow(ctx, `
SELECT l.id::text, l.module_id::text, m.course_id::text, l.title, l.content, l.sort_order, l.estimated_duration, l.is_active
FROM lessons l
JOIN modules m ON m.id = l.module_id
WHERE l.id = $1`, lessonID).Scan(&l.ID, &l.ModuleID, &l.CourseID, &l.Title, &content, &l.Order, &duration, &l.IsActive)
	if err != nil {
		return Lesson{}, notFound(err)
	}
	l.Content = content.String
	if duration.Valid {
		d := int(duration.Int32)
		l.EstimatedDuration = &d
	}
	return l, nil
}

// GetEnrollment returns the enrollment row regardless of its active flag.
func (r *PGRepository) GetEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return queryEnrollment(ctx, r.pool, studentID, courseID, "")
}

// ListProgress returns all records for the pair, most recently accessed first.
func (r *PGRepository) ListProgress(ctx context.Context, studentID, courseID string) ([]Progress, error) {
	rows, err := r.pool.Query(ctx, `
SELECT p.id::text, p.student_id::text, p.course_id::text, p.lesson_id::text, p.completion_percentage,
	p.last_accessed, p.completed_at, l.title, l.module_id::text
FROM progress p
LEFT JOIN lessons l ON l.id = p.lesson_id
WHERE p.student_id = $1 AND p.course_id = $2
ORDER BY p.last_accessed DESC`, studentID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Progress
	for rows.Next() {
		var (
			p        Progress
			lessonID pgtype.Text
			done     pgtype.Timestamptz
			title    pgtype.Text
			moduleID pgtype.Text
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &p.CourseID, &lessonID, &p.CompletionPercentage,
			&p.LastAccessed, &done, &title, &moduleID); err != nil {
			return nil, err
		}
		if lessonID.Valid {
			id := lessonID.String
			p.LessonID = &id
			p.Lesson = &LessonRef{Title: title.String, ModuleID: moduleID.String}
		}
		if done.Valid {
			t := done.Time
			p.CompletedAt = &t
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetCourse returns a course with its teacher and active enrollment count.
func (r *PGRepository) GetCourse(ctx context.Context, courseID string) (Course, error) {
	row := r.pool.QueryRow(ctx, courseSelect+` WHERE c.id = $1`, courseID)
	c, err := scanCourse(row)
	if err != nil {
		return Course{}, notFound(err)
	}
	return c, nil
}

// ListModules returns active modules with their active lessons, both in order.
func (r *PGRepository) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	rows, err := r.pool.Query(ctx, `
SELECT m.id::text, m.title, m.sort_order,
	l.id::text, l.title, l.content, l.sort_order, l.estimated_duration
FROM modules m
LEFT JOIN lessons l ON l.module_id = m.id AND l.is_active
WHERE m.course_id = $1 AND m.is_active
ORDER BY m.sort_order, m.id, l.sort_order`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var (
			moduleID, moduleTitle string
			moduleOrder           int
			lessonID, title       pgtype.Text
			content               pgtype.Text
			order, duration       pgtype.Int4
		)
		if err := rows.Scan(&moduleID, &moduleTitle, &moduleOrder, &lessonID, &title, &content, &order, &duration); err != nil {
			return nil, err
		}
		if n := len(modules); n == 0 || modules[n-1].ID != moduleID {
			modules = append(modules, Module{ID: moduleID, CourseID: courseID, Title: moduleTitle, Order: moduleOrder, Lessons: []Lesson{}})
		}
		if !lessonID.Valid {
			continue
		}
		lesson := Lesson{
			ID:       lessonID.String,
			ModuleID: moduleID,
			CourseID: courseID,
			Title:    title.String,
			Content:  content.String,
			Order:    int(order.Int32),
			IsActive: true,
		}
		if duration.Valid {
			d := int(duration.Int32)
			lesson.EstimatedDuration = &d
		}
		last := &modules[len(modules)-1]
		last.Lessons = append(last.Lessons, lesson)
	}
	return modules, rows.Err()
}

// ListMaterials returns the active materials of a course ordered by module,
// lesson, then material position.
func (r *PGRepository) ListMaterials(ctx context.Context, courseID string) ([]Material, error) {
	rows, err := r.pool.Query(ctx, `
SELECT mat.id::text, mat.lesson_id::text, mat.title, mat.type, mat.url, mat.file_path,
	mat.sort_order, mat.is_active, mat.created_at, l.title, m.title
FROM materials mat
JOIN lessons l ON l.id = mat.lesson_id
JOIN modules m ON m.id = l.module_id
WHERE m.course_id = $1 AND mat.is_active
ORDER BY m.sort_order, l.sort_order, mat.sort_order, mat.id`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Material{}
	for rows.Next() {
		var (
			mat       Material
			url, path pgtype.Text
		)
		if err := rows.Scan(&mat.ID, &mat.LessonID, &mat.Title, &mat.Type, &url, &path,
			&mat.Order, &mat.IsActive, &mat.CreatedAt, &mat.Lesson.Title, &mat.Lesson.Module.Title); err != nil {
			return nil, err
		}
		if url.Valid {
			s := url.String
			mat.URL = &s
		}
		if path.Valid {
			s := path.String
			mat.FilePath = &s
		}
		out = append(out, mat)
	}
	return out, rows.Err()
}

// SearchCourses matches active courses by title, description or code.
func (r *PGRepository) SearchCourses(ctx context.Context, query string, limit, offset int) ([]Course, int, error) {
	pattern := "%" + query + "%"
	const where = ` WHERE c.is_active AND (c.title ILIKE $1 OR c.description ILIKE $1 OR c.course_code ILIKE $1)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM courses c`+where, pattern).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, courseSelect+where+` ORDER BY c.title LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []Course{}
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

const courseSelect = `
SELECT c.id::text, c.title, c.description, c.course_code, c.start_date, c.end_date, c.is_active,
	c.teacher_id::text, t.first_name, t.last_name, c.created_at,
	(SELECT count(*) FROM enrollments e WHERE e.course_id = c.id AND e.is_active)
FROM courses c
JOIN teachers t ON t.id = c.teacher_id`

func scanCourse(row pgx.Row) (Course, error) {
	var (
		c           Course
		description pgtype.Text
		start, end  pgtype.Date
		teacher     Teacher
	)
	err := row.Scan(&c.ID, &c.Title, &description, &c.CourseCode, &start, &end, &c.IsActive,
		&c.TeacherID, &teacher.FirstName, &teacher.LastName, &c.CreatedAt, &c.EnrollmentCount)
	if err != nil {
		return Course{}, err
	}
	c.Description = description.String
	c.Teacher = &teacher
	if start.Valid {
		t := start.Time
		c.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		c.EndDate = &t
	}
	return c, nil
}

func (t *txRepo) LockEnrollment(ctx context.Context, studentID, courseID string) (Enrollment, error) {
	return queryEnrollment(ctx, t.tx, studentID, courseID, " FOR UPDATE")
}

func (t *txRepo) UpsertLessonProgress(ctx context.Context, studentID, courseID, lessonID string, pct float64, at time.Time) (Progress, error) {
	var (
		p      Progress
		lesson string
		done   pgtype.Timestamptz
	)
	err := t.tx.QueryRow(ctx, `
INSERT INTO progress (student_id, course_id, lesson_id, completion_percentage, last_accessed, completed_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id, course_id, lesson_id) WHERE lesson_id IS NOT NULL
DO UPDATE SET completion_percentage = EXCLUDED.completion_percentage,
	last_accessed = EXCLUDED.last_accessed,
	completed_at = EXCLUDED.completed_at,
	updated_at = EXCLUDED.last_accessed
RETURNING id::text, student_id::text, course_id::text, lesson_id::text, completion_percentage, last_accessed, completed_at`,
		studentID, courseID, lessonID, pct, at, completionTime(pct, at)).Scan(&p.ID, &p.StudentID, &p.CourseID, &lesson, &p.CompletionPercentage, &p.LastAccessed, &done)
	if err != nil {
		return Progress{}, err
	}
	p.LessonID = &lesson
	if done.Valid {
		ts := done.Time
		p.CompletedAt = &ts
	}
	return p, nil
}

func (t *txRepo) CountActiveLessons(ctx context.Context, courseID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
SELECT count(*)
FROM lessons l
JOIN modules m ON m.id = l.module_id
WHERE m.course_id = $1 AND l.is_active`, courseID).Scan(&n)
	return n, err
}

func (t *txRepo) CountCompletedLessons(ctx context.Context, studentID, courseID string) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
SELECT count(*)
FROM progress p
JOIN lessons l ON l.id = p.lesson_id
WHERE p.student_id = $1 AND p.course_id = $2 AND l.is_active AND p.completion_percentage >= 100`,
		studentID, courseID).Scan(&n)
	return n, err
}

func (t *txRepo) UpsertCourseProgress(ctx context.Context, studentID, courseID string, pct float64, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
INSERT INTO progress (student_id, course_id, lesson_id, completion_percentage, last_accessed, completed_at)
VALUES ($1, $2, NULL, $3, $4, $5)
ON CONFLICT (student_id, course_id) WHERE lesson_id IS NULL
DO UPDATE SET completion_percentage = EXCLUDED.completion_percentage,
	last_accessed = EXCLUDED.last_accessed,
	completed_at = EXCLUDED.completed_at,
	updated_at = EXCLUDED.last_accessed`,
		studentID, courseID, pct, at, completionTime(pct, at))
	return err
}

// completionTime is the completed_at value for a progress row: set once the
// percentage reaches 100, NULL otherwise.
func completionTime(pct float64, at time.Time) *time.Time {
	if pct >= 100 {
		return &at
	}
	return nil
}

const enrollmentSelect = `
SELECT student_id::text, course_id::text, is_active, enrolled_at
FROM enrollments
WHERE student_id = $1 AND course_id = $2`

func queryEnrollment(ctx context.Context, q db.Querier, studentID, courseID, suffix string) (Enrollment, error) {
	var e Enrollment
	err := q.QueryRow(ctx, enrollmentSelect+suffix, studentID, courseID).Scan(&e.StudentID, &e.CourseID, &e.IsActive, &e.EnrolledAt)
	if err != nil {
		return Enrollment{}, notFound(err)
	}
	return e, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

var _ Repository = (*PGRepository)(nil)
