package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestEnsureSchema(t *testing.T) {
	base, mock := setupMockDB(t)
	for range schema {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}
	assert.NoError(t, EnsureSchema(context.Background(), base.GetDB()))
}

func TestEnsureSchema_StopsOnError(t *testing.T) {
	base, mock := setupMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS accounts").WillReturnError(errors.New("permission denied"))

	err := EnsureSchema(context.Background(), base.GetDB())
	assert.ErrorContains(t, err, "statement 1")
}
