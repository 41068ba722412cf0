package courses

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentlms/lms/internal/shared"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("scan arity mismatch")
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

type fakeQuerier struct {
	sql  string
	args []any
	row  fakeRow
}

func (q *fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	q.sql, q.args = sql, args
	return q.row
}

func TestQueryEnrollment(t *testing.T) {
	ctx := context.Background()
	enrolled := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	q := &fakeQuerier{row: fakeRow{values: []any{"stu-1", "crs-1", true, enrolled}}}

	got, err := queryEnrollment(ctx, q, "stu-1", "crs-1", "")
	require.NoError(t, err)
	assert.Equal(t, Enrollment{StudentID: "stu-1", CourseID: "crs-1", IsActive: true, EnrolledAt: enrolled}, got)
	assert.Equal(t, []any{"stu-1", "crs-1"}, q.args)
	assert.NotContains(t, q.sql, "FOR UPDATE")

	_, err = queryEnrollment(ctx, q, "stu-1", "crs-1", " FOR UPDATE")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(q.sql, "FOR UPDATE"))

	q.row = fakeRow{err: pgx.ErrNoRows}
	_, err = queryEnrollment(ctx, q, "stu-1", "crs-2", "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCompletionTime(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.Nil(t, completionTime(0, at))
	assert.Nil(t, completionTime(99.9, at))
	require.NotNil(t, completionTime(100, at))
	assert.Equal(t, at, *completionTime(100, at))
}
