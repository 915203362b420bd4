package ledger

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Mkrolick/co-streamer/internal/errors"
)

// handlePostgreSQLError converts PostgreSQL-specific errors to appropriate AppError codes.
// Ledger methods wrap the result in LEDGER_WRITE_FAILURE, so the code here
// only refines the cause.
func handlePostgreSQLError(err error, operation string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	// Check if it's a PostgreSQL error
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		// Not a PostgreSQL error, return generic internal error
		return apperrors.Wrap(err, apperrors.CodeInternal, operation)
	}

	// Map PostgreSQL error codes to AppError codes
	switch pgErr.Code {
	case "23505": // UNIQUE_VIOLATION
		return handleUniqueViolation(pgErr)

	case "23502": // NOT_NULL_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, "required field is missing")

	case "23514": // CHECK_VIOLATION
		return apperrors.Wrap(err, apperrors.CodeInvalidArg, "data violates check constraint")

	case "42P01": // UNDEFINED_TABLE
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "database schema error: table not found, run 'co-streamer ledger migrate'")

	case "42703": // UNDEFINED_COLUMN
		return apperrors.Wrap(err, apperrors.CodeConfiguration, "database schema error: column not found")

	case "08000", "08003", "08006", "57P01": // CONNECTION_EXCEPTION variants, ADMIN_SHUTDOWN
		return apperrors.Wrap(err, apperrors.CodeTransientNetwork, "database connection error")

	case "53300": // TOO_MANY_CONNECTIONS
		return apperrors.Wrap(err, apperrors.CodeTransientNetwork, "database connection limit reached")

	default:
		// Unknown PostgreSQL error, return with error code for debugging
		message := "database error (PostgreSQL code: " + pgErr.Code + ")"
		return apperrors.Wrap(err, apperrors.CodeInternal, message)
	}
}

// handleUniqueViolation provides specific error messages for different unique constraints
func handleUniqueViolation(pgErr *pgconn.PgError) *apperrors.AppError {
	if strings.Contains(pgErr.ConstraintName, "ledger_entries") {
		return apperrors.Wrap(pgErr, apperrors.CodeConflict, "ledger entry for this item already exists")
	}
	return apperrors.Wrap(pgErr, apperrors.CodeConflict, "resource already exists")
}
