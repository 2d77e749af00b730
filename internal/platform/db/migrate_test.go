package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/wms?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/wms?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/wms", migrateURL("postgresql://localhost/wms"))
	require.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestNullHelpers(t *testing.T) {
	require.Nil(t, NullInt(0))
	require.Equal(t, int64(7), NullInt(7))
	require.Nil(t, NullString(""))
	require.Equal(t, "x", NullString("x"))
}

func TestUnitsOfWorkReadCommitted(t *testing.T) {
	// Lock-then-read needs a fresh snapshot per statement.
	require.Equal(t, pgx.ReadCommitted, txOptions.IsoLevel)
	require.Error(t, WithTx(context.Background(), nil, func(pgx.Tx) error { return nil }))
}
