package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/demoody/missed-call-responder/internal/apperrors"
	"github.com/demoody/missed-call-responder/pkg/logger"
)

// Note on SQL Query Matching in Tests:
// ----------------------------------
// GORM generates SQL with clauses like ORDER BY and parameterized LIMIT.
// With sqlmock.QueryMatcherEqual the expected SQL must be the exact
// statement GORM produces, collapsed to single spaces.

// Placeholder for AnyTime argument matcher
type AnyTime struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

// Placeholder for JSON fields like map[string]interface{}
type AnyJSON struct{}

// Match satisfies sqlmock.Argument interface
func (a AnyJSON) Match(v driver.Value) bool {
	switch v.(type) {
	case []byte, string, nil:
		return true
	default:
		return false
	}
}

// --- Test Helpers ---

// newTestRepo creates a mock-backed PostgresRepo for testing
func newTestRepo(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return &PostgresRepo{db: gormDB}, mock
}

// --- Test Cases ---

func TestIsTransientError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "Context deadline exceeded",
			err:      context.DeadlineExceeded,
			expected: true,
		},
		{
			name:     "Wrapped Context deadline exceeded",
			err:      fmt.Errorf("operation failed: %w", context.DeadlineExceeded),
			expected: true,
		},
		{
			name:     "GORM Record Not Found",
			err:      gorm.ErrRecordNotFound,
			expected: false, // Permanent error
		},
		{
			name:     "GORM Invalid Transaction",
			err:      gorm.ErrInvalidTransaction,
			expected: false, // Permanent error
		},
		{
			name:     "PG Error - Connection Exception (08000)",
			err:      &pgconn.PgError{Code: "08000"},
			expected: true,
		},
		{
			name:     "PG Error - Insufficient Resources (53100)",
			err:      &pgconn.PgError{Code: "53100"},
			expected: true,
		},
		{
			name:     "PG Error - Deadlock Detected (40P01)",
			err:      &pgconn.PgError{Code: "40P01"},
			expected: true,
		},
		{
			name:     "PG Error - Serialization Failure (40001)",
			err:      &pgconn.PgError{Code: "40001"},
			expected: true,
		},
		{
			name:     "PG Error - Other (e.g., Syntax Error 42601)",
			err:      &pgconn.PgError{Code: "42601"},
			expected: false, // Permanent error
		},
		{
			name:     "Network Error - Connection Refused",
			err:      errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"),
			expected: true,
		},
		{
			name:     "Network Error - I/O Timeout",
			err:      errors.New("read tcp 10.0.0.1:1234->10.0.0.2:5432: i/o timeout"),
			expected: true,
		},
		{
			name:     "Network Error - Broken Pipe",
			err:      errors.New("write: broken pipe"),
			expected: true,
		},
		{
			name:     "Network Error - DB Starting Up",
			err:      errors.New("pq: the database system is starting up"),
			expected: true,
		},
		{
			name:     "Generic Non-Transient Error",
			err:      errors.New("some other database error"),
			expected: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := isTransientError(tc.err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestRetryableOperation(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")

	t.Run("Transient error is retried until success", func(t *testing.T) {
		calls := 0
		policy := newRetryPolicy(context.Background(), readRetryMaxElapsedTime)
		err := retryableOperation(context.Background(), policy, "test_op", func() error {
			calls++
			if calls < 3 {
				return &pgconn.PgError{Code: "08006"} // connection_failure
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("Fatal error is not retried", func(t *testing.T) {
		calls := 0
		policy := newRetryPolicy(context.Background(), readRetryMaxElapsedTime)
		fatal := apperrors.NewFatal(errors.New("corrupt row"), "unrecoverable")
		err := retryableOperation(context.Background(), policy, "test_op", func() error {
			calls++
			return fatal
		})
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("Record not found is not retried", func(t *testing.T) {
		calls := 0
		policy := newRetryPolicy(context.Background(), readRetryMaxElapsedTime)
		err := retryableOperation(context.Background(), policy, "test_op", func() error {
			calls++
			return gorm.ErrRecordNotFound
		})
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("Exhausted retries surface a retryable error", func(t *testing.T) {
		calls := 0
		policy := newRetryPolicy(context.Background(), 200*time.Millisecond)
		transient := &pgconn.PgError{Code: "08006"}
		err := retryableOperation(context.Background(), policy, "test_op", func() error {
			calls++
			return transient
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsRetryable(err))
		assert.ErrorIs(t, err, transient)
		assert.Greater(t, calls, 1)
	})
}

func TestPostgresRepo_Close(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectClose() // Expect the underlying sql.DB's Close() to be called

		err := repo.Close(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Close Fails", func(t *testing.T) {
		repo, mock := newTestRepo(t)

		mock.ExpectClose().WillReturnError(errors.New("db close error"))

		err := repo.Close(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to close SQL DB")
		assert.Contains(t, err.Error(), "db close error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestCheckConstraintViolation(t *testing.T) {
	// Original errors for wrapping
	originalNotFound := gorm.ErrRecordNotFound
	originalUnique := &pgconn.PgError{Code: "23505", ConstraintName: "idx_scheduled_messages_pending_pair"}
	originalFK := &pgconn.PgError{Code: "23503", ConstraintName: "fk_messages_devices"}
	originalNotNull := &pgconn.PgError{Code: "23502", ColumnName: "phone_number"}
	originalCheck := &pgconn.PgError{Code: "23514", ConstraintName: "attempt_count_check"}
	originalTruncate := &pgconn.PgError{Code: "22001", ColumnName: "message_text"}
	originalInvalidText := &pgconn.PgError{Code: "22P02", DataTypeName: "integer"}
	originalDeadlock := &pgconn.PgError{Code: "40P01"}
	originalSerialization := &pgconn.PgError{Code: "40001"}
	originalResource := &pgconn.PgError{Code: "53200"}    // out_of_memory
	originalConnection := &pgconn.PgError{Code: "08003"}  // connection_does_not_exist
	originalUnhandledPg := &pgconn.PgError{Code: "XX000"} // internal_error
	originalGeneric := errors.New("some generic DB error")

	testCases := []struct {
		name            string
		inErr           error
		expectedStdErr  error
		checkMessage    bool
		originalMsgFrag string
	}{
		{
			name:           "Nil error",
			inErr:          nil,
			expectedStdErr: nil,
		},
		{
			name:            "GORM Record Not Found",
			inErr:           originalNotFound,
			expectedStdErr:  apperrors.ErrNotFound,
			checkMessage:    true,
			originalMsgFrag: "record not found",
		},
		{
			name:            "Wrapped GORM Record Not Found",
			inErr:           fmt.Errorf("wrapper: %w", originalNotFound),
			expectedStdErr:  apperrors.ErrNotFound,
			checkMessage:    true,
			originalMsgFrag: "record not found",
		},
		{
			name:            "PG Unique Violation (23505)",
			inErr:           originalUnique,
			expectedStdErr:  apperrors.ErrDuplicate,
			checkMessage:    true,
			originalMsgFrag: "idx_scheduled_messages_pending_pair",
		},
		{
			name:            "PG Foreign Key Violation (23503)",
			inErr:           originalFK,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "fk_messages_devices",
		},
		{
			name:            "PG Not Null Violation (23502)",
			inErr:           originalNotNull,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "phone_number",
		},
		{
			name:            "PG Check Violation (23514)",
			inErr:           originalCheck,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "attempt_count_check",
		},
		{
			name:            "PG String Truncation (22001)",
			inErr:           originalTruncate,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "message_text",
		},
		{
			name:            "PG Invalid Text Representation (22P02)",
			inErr:           originalInvalidText,
			expectedStdErr:  apperrors.ErrBadRequest,
			checkMessage:    true,
			originalMsgFrag: "integer",
		},
		{
			name:            "PG Deadlock Detected (40P01)",
			inErr:           originalDeadlock,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "40P01",
		},
		{
			name:            "PG Serialization Failure (40001)",
			inErr:           originalSerialization,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "40001",
		},
		{
			name:            "PG Insufficient Resources (53200)",
			inErr:           originalResource,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "53200",
		},
		{
			name:            "PG Connection Exception (08003)",
			inErr:           originalConnection,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "08003",
		},
		{
			name:            "PG Unhandled Code (XX000)",
			inErr:           originalUnhandledPg,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "XX000",
		},
		{
			name:            "Generic non-GORM, non-PgError",
			inErr:           originalGeneric,
			expectedStdErr:  apperrors.ErrDatabase,
			checkMessage:    true,
			originalMsgFrag: "some generic DB error",
		},
		{
			name:            "Wrapped PG Unique Violation",
			inErr:           fmt.Errorf("wrapper: %w", originalUnique),
			expectedStdErr:  apperrors.ErrDuplicate,
			checkMessage:    true,
			originalMsgFrag: "idx_scheduled_messages_pending_pair",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			outErr := checkConstraintViolation(tc.inErr)

			if tc.expectedStdErr == nil {
				assert.NoError(t, outErr)
			} else {
				assert.Error(t, outErr)
				assert.Truef(t, errors.Is(outErr, tc.expectedStdErr), "Expected error to wrap %v, but got %v", tc.expectedStdErr, outErr)
				if tc.checkMessage {
					assert.ErrorContains(t, outErr, tc.originalMsgFrag)
				}
				assert.Truef(t, errors.Is(outErr, tc.inErr), "Expected error to wrap original error %v, but got %v", tc.inErr, outErr)
			}
		})
	}
}
