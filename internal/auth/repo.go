package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studentlms/lms/internal/platform/db"
	"github.com/studentlms/lms/internal/shared"
)

// Repository defines persistence operations for the credential store.
type Repository interface {
	FindByEmail(ctx context.Context, role shared.Role, email string) (*Account, error)
	FindByID(ctx context.Context, role shared.Role, id string) (*Account, error)
	StudentConflicts(ctx context.Context, email, studentID string) (emailTaken, studentIDTaken bool, err error)
	CreateStudent(ctx context.Context, in NewStudent) (*Account, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const studentColumns = `id::text, email, first_name, last_name, student_id, password_hash, is_active, last_login_at, created_at, updated_at`

const teacherColumns = `id::text, email, first_name, last_name, teacher_id, password_hash, is_active, NULL::timestamptz, created_at, updated_at`

func selectAccount(role shared.Role, where string) (string, error) {
	switch role {
	case shared.RoleStudent:
		return `SELECT ` + studentColumns + ` FROM students WHERE ` + where, nil
	case shared.RoleTeacher:
		return `SELECT ` + teacherColumns + ` FROM teachers WHERE ` + where, nil
	default:
		return "", fmt.Errorf("auth: unknown role %q", role)
	}
}

// FindByEmail fetches an account of the given role by normalised email.
func (r *PGRepository) FindByEmail(ctx context.Context, role shared.Role, email string) (*Account, error) {
	query, err := selectAccount(role, `lower(email) = $1`)
	if err != nil {
		return nil, err
	}
	return scanAccount(r.pool.QueryRow(ctx, query, shared.NormalizeEmail(email)), role)
}

// FindByID fetches an account of the given role by id.
func (r *PGRepository) FindByID(ctx context.Context, role shared.Role, id string) (*Account, error) {
	query, err := selectAccount(role, `id = $1`)
	if err != nil {
		return nil, err
	}
	return scanAccount(r.pool.QueryRow(ctx, query, id), role)
}

// StudentConflicts reports which unique student fields are already taken.
func (r *PGRepository) StudentConflicts(ctx context.Context, email, studentID string) (bool, bool, error) {
	var emailTaken, idTaken bool
	err := r.pool.QueryRow(ctx, `
SELECT
	EXISTS (SELECT 1 FROM students WHERE lower(email) = $1),
	EXISTS (SELECT 1 FROM students WHERE student_id = $2)`,
		shared.NormalizeEmail(email), studentID).Scan(&emailTaken, &idTaken)
	if err != nil {
		return false, false, err
	}
	return emailTaken, idTaken, nil
}

// CreateStudent inserts a student together with default notification preferences.
func (r *PGRepository) CreateStudent(ctx context.Context, in NewStudent) (*Account, error) {
	var account *Account
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO students (email, first_name, last_name, student_id, password_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING `+studentColumns,
			shared.NormalizeEmail(in.Email), in.FirstName, in.LastName, in.StudentID, in.PasswordHash)
		created, err := scanAccount(row, shared.RoleStudent)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO notification_preferences (student_id) VALUES ($1)`, created.ID); err != nil {
			return err
		}
		account = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// TouchLastLogin records the time of a successful student login.
func (r *PGRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE students SET last_login_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	return err
}

func scanAccount(row pgx.Row, role shared.Role) (*Account, error) {
	var (
		a         Account
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.ExternalID, &a.PasswordHash,
		&a.IsActive, &lastLogin, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		a.LastLoginAt = &t
	}
	a.Role = role
	return &a, nil
}

var _ Repository = (*PGRepository)(nil)
