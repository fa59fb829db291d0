package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newPostgresTestStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres store tests")
	}

	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.db.WithContext(ctx).Exec("TRUNCATE bugs").Error)

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPostgresStore_Contract(t *testing.T) {
	runContract(t, newPostgresTestStore)
}
