//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fileforge/fileforge/internal/testutil"
)

func TestIntegrationMigration_ApplyAllTables(t *testing.T) {
	ctx, pool, _ := newMigrationTestEnv(t)

	tables := []string{
		"accounts",
		"identities",
		"uploads",
		"conversions",
		"merge_tokens",
		"merge_jobs",
		"merge_items",
	}

	for _, table := range tables {
		t.Run(table, func(t *testing.T) {
			exists, err := tableExists(ctx, pool, table)
			if err != nil {
				t.Fatalf("tableExists failed: %v", err)
			}
			if !exists {
				t.Errorf("Table %q should exist after migrations", table)
			}
		})
	}
}

func TestIntegrationMigration_IdentitiesSchema(t *testing.T) {
	ctx, pool, _ := newMigrationTestEnv(t)

	for _, col := range []string{"id", "account_id", "provider", "provider_user_id", "email", "email_normalized", "profile", "created_at"} {
		exists, err := columnExists(ctx, pool, "identities", col)
		if err != nil {
			t.Fatalf("columnExists failed: %v", err)
		}
		if !exists {
			t.Errorf("Column %q should exist in identities table", col)
		}
	}
}

func TestIntegrationMigration_Constraints(t *testing.T) {
	ctx, pool, _ := newMigrationTestEnv(t)

	if _, err := pool.Exec(ctx, `INSERT INTO accounts (id, email) VALUES ('acc-c', 'c@example.com')`); err != nil {
		t.Fatalf("insert account: %v", err)
	}

	// Unknown provider
	_, err := pool.Exec(ctx, `
		INSERT INTO identities (id, account_id, provider, provider_user_id)
		VALUES ('id-1', 'acc-c', 'gitlab', '1')
	`)
	if err == nil {
		t.Error("Expected check constraint violation for unknown provider")
	}

	// Duplicate (provider, provider_user_id)
	if _, err := pool.Exec(ctx, `
		INSERT INTO identities (id, account_id, provider, provider_user_id)
		VALUES ('id-2', 'acc-c', 'github', '42')
	`); err != nil {
		t.Fatalf("insert identity: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO identities (id, account_id, provider, provider_user_id)
		VALUES ('id-3', 'acc-c', 'github', '42')
	`)
	if err == nil {
		t.Error("Expected unique violation for duplicate provider user")
	}

	// Second merge token for the same account
	if _, err := pool.Exec(ctx, `INSERT INTO merge_tokens (code_hash, account_id) VALUES ('h1', 'acc-c')`); err != nil {
		t.Fatalf("insert merge token: %v", err)
	}
	_, err = pool.Exec(ctx, `INSERT INTO merge_tokens (code_hash, account_id) VALUES ('h2', 'acc-c')`)
	if err == nil {
		t.Error("Expected unique violation for a second merge token of one account")
	}

	// Two open jobs for one source
	if _, err := pool.Exec(ctx, `
		INSERT INTO merge_jobs (id, source_account_id, target_account_id, status)
		VALUES ('job-1', 'src', 'dst', 'running')
	`); err != nil {
		t.Fatalf("insert merge job: %v", err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO merge_jobs (id, source_account_id, target_account_id, status)
		VALUES ('job-2', 'src', 'other', 'partial')
	`)
	if err == nil {
		t.Error("Expected unique violation for a second open job of one source")
	}
}

func TestIntegrationMigration_RollbackAndReapply(t *testing.T) {
	ctx, pool, dbURL := newMigrationTestEnv(t)

	if err := MigrateDown(dbURL); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	exists, err := tableExists(ctx, pool, "merge_jobs")
	if err != nil {
		t.Fatalf("tableExists failed: %v", err)
	}
	if exists {
		t.Error("merge_jobs table should not exist after rollback")
	}

	if err := MigrateUp(dbURL); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	version, dirty, err := MigrationVersion(dbURL)
	if err != nil {
		t.Fatalf("MigrationVersion failed: %v", err)
	}
	if version != 3 || dirty {
		t.Errorf("version = %d dirty = %v, want 3 clean", version, dirty)
	}

	// Already up to date is not an error.
	if err := MigrateUp(dbURL); err != nil {
		t.Errorf("second MigrateUp should be a no-op, got %v", err)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, tableName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)
	`, tableName).Scan(&exists)
	return exists, err
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	var exists bool
	err := pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		)
	`, tableName, columnName).Scan(&exists)
	return exists, err
}

// newMigrationTestEnv resets the schema and holds the DB lock for the test.
func newMigrationTestEnv(t *testing.T) (context.Context, *pgxpool.Pool, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)

	unlock, err := testutil.AcquireDBLock(ctx, pool)
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetSchema(dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return ctx, pool, dbURL
}
