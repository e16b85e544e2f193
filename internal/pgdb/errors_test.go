package pgdb

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedCode(t *testing.T) {
	tests := []struct {
		name       string
		code       string
		serverless bool
		want       bool
	}{
		{"unique violation", CodeUniqueViolation, false, true},
		{"unique violation serverless", CodeUniqueViolation, true, true},
		{"serialization failure", CodeSerializationFailure, false, true},
		{"serialization failure serverless", CodeSerializationFailure, true, true},
		{"undefined function long-lived", CodeUndefinedFunction, false, true},
		{"undefined function serverless", CodeUndefinedFunction, true, false},
		{"syntax error", "42601", false, false},
		{"no code", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, expectedCode(tt.code, tt.serverless))
		})
	}
}

func TestPgCode(t *testing.T) {
	pgErr := &pgconn.PgError{Code: CodeUniqueViolation, Message: "duplicate key"}
	assert.Equal(t, CodeUniqueViolation, pgCode(pgErr))
	assert.Equal(t, CodeUniqueViolation, pgCode(fmt.Errorf("insert failed: %w", pgErr)))
	assert.Equal(t, "", pgCode(errors.New("plain error")))
	assert.Equal(t, "", pgCode(nil))
}

func TestAcquisitionError(t *testing.T) {
	cause := errors.New("pool timeout")
	err := &AcquisitionError{
		Attempts:  12,
		Telemetry: PoolTelemetry{TotalConns: 30, IdleConns: 0, AcquiredConns: 30, MaxConns: 30},
		Err:       cause,
	}

	assert.Contains(t, err.Error(), "12 attempts")
	assert.Contains(t, err.Error(), "acquired=30")
	require.ErrorIs(t, err, cause)
}

func TestQueryError(t *testing.T) {
	cause := &pgconn.PgError{Code: CodeSerializationFailure}
	err := &QueryError{
		Code:      CodeSerializationFailure,
		Statement: "UPDATE contents SET status = $1;",
		Location:  "pgdb.Executor.run.tx",
		Err:       cause,
	}

	assert.Contains(t, err.Error(), CodeSerializationFailure)
	assert.Contains(t, err.Error(), "pgdb.Executor.run.tx")

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
}

func TestIsConnectionReset(t *testing.T) {
	assert.True(t, isConnectionReset(syscall.ECONNRESET))
	assert.True(t, isConnectionReset(fmt.Errorf("read tcp: %w", syscall.ECONNRESET)))
	assert.True(t, isConnectionReset(errors.New("read: connection reset by peer")))
	assert.False(t, isConnectionReset(errors.New("connection refused")))
	assert.False(t, isConnectionReset(nil))
}
