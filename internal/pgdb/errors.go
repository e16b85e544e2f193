package pgdb

import (
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes surfaced to callers. Calling code is expected
// to handle the first two via its own retry logic.
const (
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeUndefinedFunction    = "42883"
)

// AcquisitionError means the pool was exhausted or unreachable after the
// configured retry attempts. It is fatal to the calling operation.
type AcquisitionError struct {
	Attempts  int
	Telemetry PoolTelemetry
	Err       error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire connection after %d attempts (total=%d idle=%d acquired=%d max=%d): %v",
		e.Attempts, e.Telemetry.TotalConns, e.Telemetry.IdleConns, e.Telemetry.AcquiredConns, e.Telemetry.MaxConns, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// QueryError means the store rejected a statement. Code carries the
// native PostgreSQL error code when one is available.
type QueryError struct {
	Code      string
	Statement string
	Location  string
	Cache     CacheSnapshot
	Telemetry *PoolTelemetry
	Err       error
}

func (e *QueryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("query failed at %s (code=%s): %v", e.Location, e.Code, e.Err)
	}
	return fmt.Sprintf("query failed at %s: %v", e.Location, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// pgCode extracts the native error code, if any.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// expectedCode reports whether the code describes a routine, recoverable
// condition that does not warrant an error log. Undefined-function is
// expected only in long-lived deployments, where it arises from
// concurrent schema migrations.
func expectedCode(code string, serverless bool) bool {
	switch code {
	case CodeUniqueViolation, CodeSerializationFailure:
		return true
	case CodeUndefinedFunction:
		return !serverless
	}
	return false
}

// isConnectionReset reports whether the error looks like the server
// dropped the connection mid-flight.
func isConnectionReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset")
}
