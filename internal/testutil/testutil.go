// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 731_001

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// MigrationsDir returns the directory holding the SQL migrations.
func MigrationsDir() (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "internal", "repository", "migrations"), nil
}

func newMigrator(databaseURL string) (*migrate.Migrate, error) {
	dir, err := MigrationsDir()
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(os.DirFS(dir), ".")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// ResetSchema drops every table and re-applies all migrations.
func ResetSchema(databaseURL string) error {
	m, err := newMigrator(databaseURL)
	if err != nil {
		return err
	}
	dropErr := m.Drop()
	m.Close()
	if dropErr != nil {
		return fmt.Errorf("drop schema: %w", dropErr)
	}

	// Drop removes the version table too, so start from a fresh migrator.
	m, err = newMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// TruncateAll empties every application table, keeping the schema.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		TRUNCATE merge_items, merge_jobs, merge_tokens, conversions, uploads, identities, accounts
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// NewTestAccount creates an account with one GitHub identity whose profile
// carries email.
func NewTestAccount(t testing.TB, email string) (*model.Account, *model.Identity) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)

	account := &model.Account{
		ID:              uuid.NewString(),
		Email:           email,
		PrimaryProvider: model.ProviderGitHub,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	identity := &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      account.ID,
		Provider:       model.ProviderGitHub,
		ProviderUserID: UniqueID("gh"),
		Profile:        &model.GitHubProfile{Login: "octo", Email: email},
		CreatedAt:      now,
	}
	return account, identity
}

// NewTestDiscordIdentity creates a Discord identity for accountID.
func NewTestDiscordIdentity(t testing.TB, accountID, email string) *model.Identity {
	t.Helper()
	return &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      accountID,
		Provider:       model.ProviderDiscord,
		ProviderUserID: UniqueID("dc"),
		Profile:        &model.DiscordProfile{Username: "wumpus", Email: email, Verified: true},
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestUpload creates an upload owned by accountID stored under its prefix.
func NewTestUpload(t testing.TB, accountID, filename string) *model.Upload {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := ulid.Make().String()
	fileType := "application/octet-stream"
	if f, ok := formats.Lookup(formats.ExtFromFilename(filename)); ok {
		fileType = f.MIME
	}
	return &model.Upload{
		ID:               id,
		AccountID:        accountID,
		OriginalFilename: filename,
		FileSize:         1024,
		FileType:         fileType,
		StoragePath:      accountID + "/" + id + "-" + filename,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewTestConversion creates a pending conversion of upload.
func NewTestConversion(t testing.TB, upload *model.Upload, target string) *model.Conversion {
	t.Helper()
	return &model.Conversion{
		ID:             ulid.Make().String(),
		UploadID:       upload.ID,
		AccountID:      upload.AccountID,
		OriginalFormat: formats.ExtFromFilename(upload.OriginalFilename),
		TargetFormat:   target,
		Status:         model.ConversionPending,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
