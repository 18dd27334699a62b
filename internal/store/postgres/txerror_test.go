package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"glowpos/backend/internal/domain"
)

func TestMapTxErrorSerializationFailure(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "55P03"} {
		err := mapTxError(&pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, domain.ErrConcurrencyConflict, "code %s", code)
	}
}

func TestMapTxErrorUniqueViolation(t *testing.T) {
	err := mapTxError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, err, domain.ErrDuplicateTransactionID)
}

func TestMapTxErrorWrappedStatementError(t *testing.T) {
	// Statement errors come back wrapped by the driver; the mapping must
	// still see the pg error underneath.
	wrapped := fmt.Errorf("scanning stock row: %w", &pgconn.PgError{Code: "40001"})
	assert.ErrorIs(t, mapTxError(wrapped), domain.ErrConcurrencyConflict)
}

func TestMapTxErrorPassesThroughOtherErrors(t *testing.T) {
	plain := errors.New("connection refused")
	assert.Equal(t, plain, mapTxError(plain))

	pgErr := &pgconn.PgError{Code: "42P01"}
	assert.Equal(t, error(pgErr), mapTxError(pgErr))
}
