package shared

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgNotNullViolation    = "23502"
)

// constraintFields maps unique constraint names to the field reported to clients.
var constraintFields = map[string]string{
	"students_email_key":      "Email",
	"students_student_id_key": "Student ID",
	"teachers_email_key":      "Email",
	"teachers_teacher_id_key": "Teacher ID",
	"enrollments_pkey":        "Enrollment",
}

// TranslatePgError maps store-specific failures onto the error taxonomy.
// Unknown errors are returned unchanged.
func TranslatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return NewNotFoundError("Record not found")
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		field, ok := constraintFields[pgErr.ConstraintName]
		if !ok {
			field = fieldFromConstraint(pgErr.ConstraintName)
		}
		return &AppError{Kind: KindConflict, Message: field + " already exists", Err: err}
	case pgForeignKeyViolation:
		return &AppError{Kind: KindValidation, Message: "Invalid reference to related record", Err: err}
	case pgNotNullViolation:
		return &AppError{Kind: KindValidation, Message: "Required relation is missing", Err: err}
	default:
		return err
	}
}

func fieldFromConstraint(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.TrimSuffix(name, "_key")
	if idx := strings.Index(name, "_"); idx >= 0 {
		name = name[idx+1:]
	}
	return name
}
