package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/weararcstarz/arcstar/internal/store/postgres"
)

func truncate(t *testing.T, dsn string) {
	t.Helper()
	db, err := postgres.Open(context.Background(), dsn)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.ExecContext(context.Background(), "TRUNCATE arcstarz_subscribers RESTART IDENTITY")
	require.NoError(t, err)
}
