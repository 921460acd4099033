package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIsolation(t *testing.T) {
	cases := map[string]pgx.TxIsoLevel{
		"":                pgx.ReadCommitted,
		"read committed":  pgx.ReadCommitted,
		"REPEATABLE_READ": pgx.RepeatableRead,
		"repeatable-read": pgx.RepeatableRead,
		" Serializable ":  pgx.Serializable,
	}
	for in, want := range cases {
		got, err := ParseIsolation(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseIsolation("snapshot")
	assert.Error(t, err)
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsSerializationFailure(unique))

	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsSerializationFailure(&pgconn.PgError{Code: "40P01"}))

	assert.True(t, IsNotFound(pgx.ErrNoRows))
	assert.True(t, IsNotFound(&pgconn.PgError{Code: "22P02"}))
	assert.False(t, IsNotFound(fmt.Errorf("boom")))
}

func TestPgx5URL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/app", pgx5URL("postgres://u:p@localhost:5432/app"))
	assert.Equal(t, "pgx5://localhost/app", pgx5URL("postgresql://localhost/app"))
	assert.Equal(t, "pgx5://already", pgx5URL("pgx5://already"))
}

func TestUpScriptsAreOrdered(t *testing.T) {
	names, err := UpScripts()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "000001_init.up.sql", names[0])
}

func TestNewPoolRejectsEmptyConnString(t *testing.T) {
	_, err := NewPool(context.Background(), "", PoolOptions{})
	assert.EqualError(t, err, "db: empty connection string")
}
