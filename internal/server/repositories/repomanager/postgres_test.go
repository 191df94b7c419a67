package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authsync/internal/server/models"
	"github.com/dmitrijs2005/authsync/internal/server/repositories/accounts"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func TestManagers_ImplementInterface(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	var _ RepositoryManager = NewPostgresRepositoryManager(db)
	var _ RepositoryManager = NewInMemoryRepositoryManager()

	var _ accounts.Repository = NewPostgresRepositoryManager(db).Accounts()
}

func TestWithinTx_Commits(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO accounts`).
		WithArgs("alice@example.com", "Alice", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	mock.ExpectCommit()

	m := NewPostgresRepositoryManager(db)
	err := m.WithinTx(context.Background(), func(ctx context.Context, repo accounts.Repository) error {
		_, err := repo.Insert(ctx, &models.Account{Email: "alice@example.com", DisplayName: "Alice", PasswordHash: "hash"})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	db, mock := newDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := NewPostgresRepositoryManager(db)
	err := m.WithinTx(context.Background(), func(ctx context.Context, repo accounts.Repository) error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInMemoryWithinTx_PassesRepository(t *testing.T) {
	m := NewInMemoryRepositoryManager()

	err := m.WithinTx(context.Background(), func(ctx context.Context, repo accounts.Repository) error {
		_, err := repo.Insert(ctx, &models.Account{Email: "a@example.com", PasswordHash: "h"})
		return err
	})
	require.NoError(t, err)

	ok, err := m.Accounts().Exists(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, m.RunMigrations(context.Background()))
	assert.NoError(t, m.Close())
}

func TestRunMigrations_Success(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager(db)
	require.NoError(t, m.RunMigrations(context.Background()))
}

func TestRunMigrations_Error(t *testing.T) {
	db, _ := newDB(t)
	defer db.Close()

	orig := gooseUpContext
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	defer func() { gooseUpContext = orig }()

	m := NewPostgresRepositoryManager(db)
	err := m.RunMigrations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
