//go:build integration

package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("keystone_auth_test"),
		postgres.WithUsername("keystone"),
		postgres.WithPassword("keystone_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})
	return db
}

func TestSQLStore_Postgres(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	store, err := NewSQLStore(db, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, store.Migrate(ctx))

	sess, err := store.Create(ctx)
	require.NoError(t, err)
	sess.Set(KeyUserID, "u-1")
	sess.Set(KeyServicesRegion, "RegionOne")
	require.NoError(t, store.Save(ctx, sess))

	sess.Set(KeyServicesRegion, "RegionTwo")
	require.NoError(t, store.Save(ctx, sess))

	loaded, err := store.Get(ctx, sess.ID())
	require.NoError(t, err)
	assert.Equal(t, "u-1", GetString(loaded, KeyUserID))
	assert.Equal(t, "RegionTwo", GetString(loaded, KeyServicesRegion))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = store.Get(ctx, sess.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
