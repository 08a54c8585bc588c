package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableErr(t *testing.T) {
	assert.False(t, IsRetryableErr(nil))
	assert.True(t, IsRetryableErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsRetryableErr(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsRetryableErr(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40P01"})))
	assert.True(t, IsRetryableErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsRetryableErr(&pgconn.PgError{Code: "23505"}))
}
